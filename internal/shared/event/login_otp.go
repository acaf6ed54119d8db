package event

const (
	LoginOTPRequestedDestination    string = "login_otp_requested"
	LoginOTPSendFailedDestination   string = "login_otp_send_failed"
	LoginOTPVerifiedDestination     string = "login_otp_verified"
	LoginOTPVerifyFailedDestination string = "login_otp_verify_failed"
)

// LoginOTPMessage is the body of every login_otp_* message. The phone number
// only travels masked or as a keyed digest.
type LoginOTPMessage struct {
	FlowID      string `json:"flow_id"`
	MaskedPhone string `json:"masked_phone,omitempty"`
	PhoneHash   string `json:"phone_hash,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	IsNewUser   bool   `json:"is_new_user,omitempty"`
	Reason      string `json:"reason,omitempty"`
	OccurredAt  int64  `json:"occurred_at"`
}

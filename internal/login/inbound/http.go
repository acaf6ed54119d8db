package inbound

import (
	"net/http"

	"github.com/shandysiswandi/otplogin/internal/pkg/router"
)

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	r.POST("/api/v1/login/flows", end.StartFlow)
	r.GET("/api/v1/login/flows/:flow_id", end.FlowState)
	r.DELETE("/api/v1/login/flows/:flow_id", end.CloseFlow)

	r.POST("/api/v1/login/flows/:flow_id/otp", end.RequestOTP)
	r.POST("/api/v1/login/flows/:flow_id/otp/verify", end.VerifyOTP)

	r.GETRaw("/api/v1/login/flows/:flow_id/events", http.HandlerFunc(end.StreamFlow))
}

package entity

// EventType names a view event delivered to the flow's client.
type EventType string

const (
	EventNotification EventType = "notification"
	EventCountdown    EventType = "countdown"
	EventSubmit       EventType = "submit"
	EventNavigate     EventType = "navigate"
	EventReload       EventType = "reload"
)

// Level is the severity of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// ViewEvent is a UI effect produced by the flow.
type ViewEvent struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Settles reports whether evt carries a state change a client must not miss:
// submit toggles, navigation, reload and the final countdown tick.
func (evt ViewEvent) Settles() bool {
	switch evt.Type {
	case EventSubmit, EventNavigate, EventReload:
		return true
	case EventCountdown:
		c, ok := evt.Data.(Cooldown)
		return ok && c.ResendAllowed
	default:
		return false
	}
}

type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

type Submit struct {
	Enabled bool `json:"enabled"`
}

type Navigate struct {
	Route string `json:"route"`
}

func NotificationEvent(level Level, msg string) ViewEvent {
	return ViewEvent{Type: EventNotification, Data: Notification{Level: level, Message: msg}}
}

func CountdownEvent(c Cooldown) ViewEvent {
	return ViewEvent{Type: EventCountdown, Data: c}
}

func SubmitEvent(enabled bool) ViewEvent {
	return ViewEvent{Type: EventSubmit, Data: Submit{Enabled: enabled}}
}

func NavigateEvent(route string) ViewEvent {
	return ViewEvent{Type: EventNavigate, Data: Navigate{Route: route}}
}

func ReloadEvent() ViewEvent {
	return ViewEvent{Type: EventReload, Data: struct{}{}}
}

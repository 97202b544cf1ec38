package notify

import "time"

type Type string

const (
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
	TypeDanger  Type = "danger"
	TypeSuccess Type = "success"
)

// MaxEntries bounds the log; older entries are dropped first.
const MaxEntries = 50

type Notification struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

package forwarder

import (
	"time"

	"github.com/nerrad567/relaylight/internal/executor"
)

// Status is the delivery outcome of a record.
type Status string

// Record statuses. A record leaves StatusPending exactly once.
const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Record is one requested actuation and its delivery outcome.
// JSON field names follow the document schema the writers use.
type Record struct {
	ID string `json:"id"`

	// ESPHost is the device base URL, e.g. https://device.example.
	ESPHost string `json:"espHost"`
	Action  string `json:"action"`
	Key     string `json:"-"`

	// Duration is in milliseconds; nil means the default.
	Duration *int `json:"duration,omitempty"`

	Status      Status     `json:"status"`
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// DurationMS returns the duration to send, defaulting to 1000.
func (r *Record) DurationMS() int {
	if r.Duration == nil {
		return int(executor.DefaultDuration / time.Millisecond)
	}
	return *r.Duration
}

// missingFields lists the delivery fields that are empty.
func (r *Record) missingFields() []string {
	var missing []string
	if r.ESPHost == "" {
		missing = append(missing, "espHost")
	}
	if r.Action == "" {
		missing = append(missing, "action")
	}
	if r.Key == "" {
		missing = append(missing, "key")
	}
	return missing
}

// Outcome is the terminal write applied to a record.
type Outcome struct {
	Status      Status
	Error       string
	ProcessedAt time.Time
}

// ListFilter narrows List results. Zero values mean no filter.
type ListFilter struct {
	Status Status
	Limit  int
}

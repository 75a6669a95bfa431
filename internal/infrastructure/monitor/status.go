package monitor

import "time"

// ComponentStatus is the last check result of one dependency.
type ComponentStatus struct {
	Online   bool   `json:"online"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
	// Size is set for queue-like components.
	Size *int `json:"size,omitempty"`
}

type Status struct {
	Healthy    bool                       `json:"healthy"`
	Components map[string]ComponentStatus `json:"components"`
	LastCheck  time.Time                  `json:"last_check"`
}

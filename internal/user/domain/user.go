package domain

// Status is the account status recorded by the user directory.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDisabled  Status = "disabled"
)

// IsActive reports whether the account may hold live credentials.
func (s Status) IsActive() bool { return s == StatusActive }

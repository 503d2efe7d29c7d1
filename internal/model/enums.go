package model

type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusFrozen     SessionStatus = "frozen"
	SessionStatusTerminated SessionStatus = "terminated"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusFrozen, SessionStatusTerminated:
		return true
	}
	return false
}

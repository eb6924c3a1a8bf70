package domain

import "fmt"

// Status is the lifecycle state of a ticket.
type Status uint8

const (
	StatusOpen Status = iota + 1
	StatusAssigned
	StatusInProgress
	StatusSubmitted
	StatusCompleted
	StatusDisputed
	StatusResolved
	StatusCancelled
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusOpen,
	StatusAssigned,
	StatusInProgress,
	StatusSubmitted,
	StatusCompleted,
	StatusDisputed,
	StatusResolved,
	StatusCancelled,
}

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusAssigned:
		return "assigned"
	case StatusInProgress:
		return "in_progress"
	case StatusSubmitted:
		return "submitted"
	case StatusCompleted:
		return "completed"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	case StatusCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// IsTerminal reports whether no lifecycle transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusResolved:
		return true
	case StatusOpen, StatusAssigned, StatusInProgress, StatusSubmitted, StatusDisputed:
		return false
	}
	panic(fmt.Sprintf("domain: unknown status %d", uint8(s)))
}

func (s Status) Valid() bool {
	return s >= StatusOpen && s <= StatusCancelled
}

// ParseStatus accepts the names produced by String.
func ParseStatus(v string) (Status, error) {
	for _, s := range AllStatuses {
		if s.String() == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", v)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Resolution is the binary outcome of a dispute.
type Resolution uint8

const (
	ResolutionClient     Resolution = 0
	ResolutionFreelancer Resolution = 1
)

// ParseResolution accepts exactly the two resolution codes.
func ParseResolution(code int) (Resolution, error) {
	switch code {
	case 0:
		return ResolutionClient, nil
	case 1:
		return ResolutionFreelancer, nil
	}
	return 0, fmt.Errorf("invalid resolution code %d", code)
}

func (r Resolution) String() string {
	if r == ResolutionFreelancer {
		return "freelancer"
	}
	return "client"
}

// Role is a platform-wide role held through a grant.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleResolver Role = "resolver"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleResolver
}

// IndexRole selects one of the per-user ticket lists.
type IndexRole string

const (
	IndexClient     IndexRole = "client"
	IndexFreelancer IndexRole = "freelancer"
)

func ParseIndexRole(v string) (IndexRole, error) {
	switch IndexRole(v) {
	case IndexClient, IndexFreelancer:
		return IndexRole(v), nil
	}
	return "", fmt.Errorf("role must be client or freelancer, got %q", v)
}

// EscrowStatus tracks whether escrowed funds are still held.
type EscrowStatus string

const (
	EscrowFunded   EscrowStatus = "funded"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

package engine

import (
	"errors"
	"fmt"

	"ticketline/internal/engine/auth"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation   = errors.New("validation")
	ErrUnauthorized = errors.New("unauthorized")
	ErrState        = errors.New("state")
	ErrNotFound     = errors.New("not found")
	ErrResource     = errors.New("resource")
)

// Error is a rejected operation. Nothing was written when it is returned.
type Error struct {
	Op       auth.Operation
	TicketID uint64
	Kind     error
	Msg      string
}

func (e *Error) Error() string {
	if e.TicketID > 0 {
		return fmt.Sprintf("%s ticket %d: %s", e.Op, e.TicketID, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func reject(op auth.Operation, id uint64, kind error, format string, args ...any) *Error {
	return &Error{Op: op, TicketID: id, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

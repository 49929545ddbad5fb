package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a TransactionStore when no record exists
	// for the requested id.
	ErrNotFound = errors.New("saga transaction not found")

	// ErrAlreadyExists is returned by TransactionStore.Create when the id
	// is already taken. Transaction ids are never reused.
	ErrAlreadyExists = errors.New("saga transaction already exists")
)

// DeclinedError reports that a participant ran a forward action and
// explicitly refused it (insufficient funds, out of stock, ...). Any other
// error coming out of a forward action is treated as the participant being
// unreachable; both trigger compensation, the distinction survives only in
// the transaction's error message.
type DeclinedError struct {
	Step   string
	Reason string
}

func (e *DeclinedError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("declined: %s", e.Reason)
	}
	return fmt.Sprintf("step %s declined: %s", e.Step, e.Reason)
}

// Declined builds a DeclinedError for the given reason.
func Declined(reason string) error {
	return &DeclinedError{Reason: reason}
}

// AsDeclined extracts a DeclinedError from err, if any.
func AsDeclined(err error) (*DeclinedError, bool) {
	var dec *DeclinedError
	if errors.As(err, &dec) {
		return dec, true
	}
	return nil, false
}

// DefinitionError reports a malformed saga definition. It is raised at
// construction time, before any transaction is created.
type DefinitionError struct {
	Definition string
	Reason     string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid saga definition %q: %s", e.Definition, e.Reason)
}

// TransitionError reports an attempt to drive a transaction through a
// transition its current state does not define.
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition from %s on %s", e.From, e.Event)
}

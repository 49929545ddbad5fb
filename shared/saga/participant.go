package saga

import (
	"context"

	"github.com/pkg/errors"
)

// ResultStatus is a participant's verdict on a command.
type ResultStatus string

const (
	ResultSuccess  ResultStatus = "success"
	ResultDeclined ResultStatus = "declined"
)

// Command is the request a saga step sends to a participant.
type Command struct {
	TransactionID string                 `json:"transaction_id"`
	Payload       map[string]interface{} `json:"payload"`
}

// Result is a participant's answer. A declined result is a business
// refusal, reported with a reason; transport and server failures surface
// as errors instead.
type Result struct {
	Status ResultStatus           `json:"status"`
	Reason string                 `json:"reason,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Declined reports whether the participant refused the command.
func (r Result) Declined() bool {
	return r.Status == ResultDeclined
}

// Participant is a remote service taking part in a saga. Execute runs the
// forward action for a step; Compensate undoes it. Both must be idempotent
// per transaction id, and Compensate must succeed when there is nothing to
// undo.
type Participant interface {
	Execute(ctx context.Context, cmd Command) (Result, error)
	Compensate(ctx context.Context, cmd Command) (Result, error)
}

// PayloadFunc builds a command payload from the transaction context.
type PayloadFunc func(sc *Context) map[string]interface{}

// ParticipantStep binds a participant to a StepSpec. The forward action
// sends the payload built by execPayload and converts a declined result
// into a DeclinedError; any transport error passes through untouched. When
// compPayload is nil the step has no compensation.
func ParticipantStep(name, compensationName string, p Participant, execPayload, compPayload PayloadFunc) StepSpec {
	spec := StepSpec{
		Name:             name,
		CompensationName: compensationName,
		Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
			res, err := p.Execute(ctx, command(sc, execPayload))
			if err != nil {
				return nil, err
			}
			if res.Declined() {
				return nil, &DeclinedError{Step: name, Reason: res.Reason}
			}
			return res.Data, nil
		},
	}

	if compPayload != nil {
		spec.Compensate = func(ctx context.Context, sc *Context) error {
			res, err := p.Compensate(ctx, command(sc, compPayload))
			if err != nil {
				return err
			}
			if res.Declined() {
				return errors.Errorf("compensation declined: %s", res.Reason)
			}
			return nil
		}
	}

	return spec
}

func command(sc *Context, build PayloadFunc) Command {
	cmd := Command{TransactionID: sc.TransactionID.String()}
	if build != nil {
		cmd.Payload = build(sc)
	}
	return cmd
}

package saga

import (
	"context"

	"github.com/orderflow/saga-system/shared/models"
)

// StepFunc is a step's forward action. It receives the accumulated
// transaction context and returns the step's output, which later steps and
// compensations can read. Returning a DeclinedError marks a domain decline;
// any other error marks the participant as unreachable.
type StepFunc func(ctx context.Context, sc *Context) (map[string]interface{}, error)

// CompensateFunc is a step's compensating action. It must be safe to invoke
// even if the forward action never ran cleanly to completion: compensating
// nothing is a success.
type CompensateFunc func(ctx context.Context, sc *Context) error

// StepSpec describes one step of a saga definition.
type StepSpec struct {
	// Name uniquely identifies the step within a definition and is the
	// entry recorded in ExecutedSteps.
	Name string

	// CompensationName is the entry recorded in CompensatedSteps once the
	// compensation has been attempted. Defaults to Name.
	CompensationName string

	Execute    StepFunc
	Compensate CompensateFunc
}

func (s StepSpec) compensationName() string {
	if s.CompensationName != "" {
		return s.CompensationName
	}
	return s.Name
}

// Definition is an immutable ordered list of steps for one business flow.
type Definition struct {
	id    string
	steps []StepSpec
}

// NewDefinition validates and builds a definition. A definition with zero
// steps is legal: executing it completes immediately.
func NewDefinition(id string, steps ...StepSpec) (*Definition, error) {
	if id == "" {
		return nil, &DefinitionError{Definition: id, Reason: "definition id is required"}
	}

	seen := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		if step.Name == "" {
			return nil, &DefinitionError{Definition: id, Reason: "step name is required"}
		}
		if step.Execute == nil {
			return nil, &DefinitionError{Definition: id, Reason: "step " + step.Name + " has no forward action"}
		}
		if _, dup := seen[step.Name]; dup {
			return nil, &DefinitionError{Definition: id, Reason: "duplicate step name " + step.Name}
		}
		seen[step.Name] = struct{}{}
	}

	owned := make([]StepSpec, len(steps))
	copy(owned, steps)

	return &Definition{id: id, steps: owned}, nil
}

// ID identifies the flow this definition describes.
func (d *Definition) ID() string {
	return d.id
}

// Steps returns the ordered step specs. The returned slice is a copy.
func (d *Definition) Steps() []StepSpec {
	steps := make([]StepSpec, len(d.steps))
	copy(steps, d.steps)
	return steps
}

// Len returns the number of steps.
func (d *Definition) Len() int {
	return len(d.steps)
}

// Context carries a transaction's input and the outputs of its executed
// steps. It is owned by the single engine invocation driving the
// transaction; steps run strictly sequentially so no locking is needed.
type Context struct {
	TransactionID models.ID
	Input         map[string]interface{}

	order   []string
	outputs map[string]map[string]interface{}
}

// NewContext builds the context handed to step actions.
func NewContext(transactionID models.ID, input map[string]interface{}) *Context {
	return &Context{
		TransactionID: transactionID,
		Input:         input,
		outputs:       make(map[string]map[string]interface{}),
	}
}

// Output returns the recorded output of a previously executed step.
func (c *Context) Output(step string) map[string]interface{} {
	return c.outputs[step]
}

// Value looks a key up in the step outputs, most recent step first, falling
// back to the transaction input.
func (c *Context) Value(key string) (interface{}, bool) {
	for i := len(c.order) - 1; i >= 0; i-- {
		if v, ok := c.outputs[c.order[i]][key]; ok {
			return v, true
		}
	}
	v, ok := c.Input[key]
	return v, ok
}

// String returns the value for key as a string, or "" when absent.
func (c *Context) String(key string) string {
	if v, ok := c.Value(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (c *Context) setOutput(step string, out map[string]interface{}) {
	if out == nil {
		out = map[string]interface{}{}
	}
	if _, exists := c.outputs[step]; !exists {
		c.order = append(c.order, step)
	}
	c.outputs[step] = out
}

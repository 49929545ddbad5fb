package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/saga-system/shared/models"
)

func noopStep(name string) StepSpec {
	return StepSpec{
		Name: name,
		Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
			return nil, nil
		},
	}
}

func TestNewDefinition(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		steps   []StepSpec
		wantErr string
	}{
		{
			name:  "valid definition",
			id:    "flow",
			steps: []StepSpec{noopStep("a"), noopStep("b")},
		},
		{
			name: "zero steps is legal",
			id:   "empty-flow",
		},
		{
			name:    "missing id",
			id:      "",
			wantErr: "definition id is required",
		},
		{
			name:    "missing step name",
			id:      "flow",
			steps:   []StepSpec{noopStep("")},
			wantErr: "step name is required",
		},
		{
			name:    "missing forward action",
			id:      "flow",
			steps:   []StepSpec{{Name: "a"}},
			wantErr: "no forward action",
		},
		{
			name:    "duplicate step name",
			id:      "flow",
			steps:   []StepSpec{noopStep("a"), noopStep("a")},
			wantErr: "duplicate step name a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := NewDefinition(tt.id, tt.steps...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.id, def.ID())
			assert.Equal(t, len(tt.steps), def.Len())
		})
	}
}

func TestDefinitionStepsReturnsCopy(t *testing.T) {
	def, err := NewDefinition("flow", noopStep("a"), noopStep("b"))
	require.NoError(t, err)

	steps := def.Steps()
	steps[0].Name = "mutated"

	assert.Equal(t, "a", def.Steps()[0].Name)
}

func TestStepSpecCompensationNameDefaultsToName(t *testing.T) {
	step := noopStep("a")
	assert.Equal(t, "a", step.compensationName())

	step.CompensationName = "undo-a"
	assert.Equal(t, "undo-a", step.compensationName())
}

func TestContextValueLookup(t *testing.T) {
	id := models.GenerateUUID()
	sc := NewContext(id, map[string]interface{}{
		"customer_id": "CUST001",
		"amount":      int64(500),
	})

	sc.setOutput("first", map[string]interface{}{"order_id": "ord-1"})
	sc.setOutput("second", map[string]interface{}{"order_id": "ord-2", "payment_id": "pay-1"})

	// Most recent step output wins over earlier ones and over input.
	assert.Equal(t, "ord-2", sc.String("order_id"))
	assert.Equal(t, "pay-1", sc.String("payment_id"))
	assert.Equal(t, "CUST001", sc.String("customer_id"))

	v, ok := sc.Value("amount")
	require.True(t, ok)
	assert.Equal(t, int64(500), v)

	_, ok = sc.Value("missing")
	assert.False(t, ok)
	assert.Equal(t, "", sc.String("missing"))

	assert.Equal(t, map[string]interface{}{"order_id": "ord-1"}, sc.Output("first"))
	assert.Nil(t, sc.Output("unknown"))
}

func TestContextSetOutputNilBecomesEmpty(t *testing.T) {
	sc := NewContext(models.GenerateUUID(), nil)
	sc.setOutput("a", nil)

	out := sc.Output("a")
	require.NotNil(t, out)
	assert.Empty(t, out)
}

package reconciler

import (
	"testing"

	"github.com/attrsync/attrsync/resolver"
	"github.com/attrsync/attrsync/types"
)

func found(value string) resolver.Resolution {
	return resolver.Resolution{Status: resolver.StatusFound, Value: value}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		res      resolver.Resolution
		expected types.Outcome
		newValue string
	}{
		{
			name:     "case-insensitive equality is a no-op",
			current:  "ABC",
			res:      found("abc"),
			expected: types.OutcomeNoOp,
		},
		{
			name:     "empty current forces update on first sync",
			current:  "",
			res:      found("Engineering"),
			expected: types.OutcomeUpdate,
			newValue: "Engineering",
		},
		{
			name:     "differing value updates",
			current:  "10.0.19045",
			res:      found("10.0.22631"),
			expected: types.OutcomeUpdate,
			newValue: "10.0.22631",
		},
		{
			name:     "no value and no default is unresolved, not a no-op",
			current:  "",
			res:      resolver.Resolution{Status: resolver.StatusNotFound},
			expected: types.OutcomeUnresolved,
		},
		{
			name:     "no value with existing current is still unresolved",
			current:  "stale",
			res:      resolver.Resolution{Status: resolver.StatusNotFound},
			expected: types.OutcomeUnresolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.current, tt.res)
			if d.Outcome != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, d.Outcome)
			}
			if d.NewValue != tt.newValue {
				t.Errorf("expected new value %q, got %q", tt.newValue, d.NewValue)
			}
		})
	}
}

package types

// Outcome categorizes the result of comparing a resolved value against
// the currently stored attribute value.
type Outcome string

const (
	// OutcomeNoOp means the stored value already matches.
	OutcomeNoOp Outcome = "noop"
	// OutcomeUpdate means the stored value must be replaced.
	OutcomeUpdate Outcome = "update"
	// OutcomeUnresolved means no value could be resolved and no default
	// applies. Distinct from a no-op: it counts as a mapping failure.
	OutcomeUnresolved Outcome = "unresolved"
)

// Decision is the result of one mapping evaluation for one device.
type Decision struct {
	Outcome  Outcome `json:"outcome"`
	NewValue string  `json:"new_value,omitempty"`
}

// NoOp returns a no-op decision.
func NoOp() Decision { return Decision{Outcome: OutcomeNoOp} }

// Update returns an update decision carrying the value to write.
func Update(value string) Decision {
	return Decision{Outcome: OutcomeUpdate, NewValue: value}
}

// Unresolved returns an unresolved decision.
func Unresolved() Decision { return Decision{Outcome: OutcomeUnresolved} }

// Package reconciler evaluates mappings per device and applies the
// write-backs they require.
package reconciler

import (
	"strings"

	"github.com/attrsync/attrsync/resolver"
	"github.com/attrsync/attrsync/types"
)

// Decide compares the currently stored attribute value against the
// resolved value. Comparison is case-insensitive; an empty current
// value never equals a non-empty resolved one, forcing an update on
// first sync. An empty resolved value (after default fallback) is
// unresolved, which is a mapping failure, not a no-op.
func Decide(currentValue string, res resolver.Resolution) types.Decision {
	if !res.Found() {
		return types.Unresolved()
	}
	if strings.EqualFold(currentValue, res.Value) {
		return types.NoOp()
	}
	return types.Update(res.Value)
}

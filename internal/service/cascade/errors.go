package cascade

import (
	"fmt"
	"strings"

	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// ExhaustedError means every candidate for a capability was denied. It is
// distinct from any single provider's denial because several reasons may
// have occurred along the cascade.
type ExhaustedError struct {
	Capability models.Capability
	Attempts   []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s/%s: %s", a.Provider, a.Model, a.Reason))
	}
	return fmt.Sprintf("all providers exhausted for %s [%s]", e.Capability, strings.Join(parts, "; "))
}

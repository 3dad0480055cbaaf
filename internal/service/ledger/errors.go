package ledger

import "fmt"

// UnknownServiceError is returned when a service has no configured budget.
// The ledger refuses such calls rather than granting unbounded spend.
type UnknownServiceError struct {
	Service string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("no budget configured for service %q", e.Service)
}

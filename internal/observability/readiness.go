package observability

import (
	"context"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// AllReady is ready when every checker is. Checkers run in order and the
// first failure is returned.
type AllReady []sharedobs.ReadinessChecker

// CheckReadiness implements sharedobs.ReadinessChecker.
func (a AllReady) CheckReadiness(ctx context.Context) error {
	for _, c := range a {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

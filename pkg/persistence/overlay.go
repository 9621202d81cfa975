package persistence

import "context"

type confirmationOverlay struct {
	Persistence

	confirmations ConfirmationRepository
}

// WithConfirmationStore serves confirmation requests from repo while
// delegating every other repository to base. Deployments where the API
// resolving confirmations runs apart from the engine awaiting them point
// repo at a shared store such as Redis.
func WithConfirmationStore(base Persistence, repo ConfirmationRepository) Persistence {
	return &confirmationOverlay{Persistence: base, confirmations: repo}
}

func (o *confirmationOverlay) ConfirmationRepository() ConfirmationRepository {
	return o.confirmations
}

func (o *confirmationOverlay) HealthCheck(ctx context.Context) error {
	if hc, ok := o.confirmations.(interface{ HealthCheck(context.Context) error }); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return err
		}
	}

	return o.Persistence.HealthCheck(ctx)
}

func (o *confirmationOverlay) Close(ctx context.Context) error {
	if c, ok := o.confirmations.(interface{ Close(context.Context) error }); ok {
		if err := c.Close(ctx); err != nil {
			return err
		}
	}

	return o.Persistence.Close(ctx)
}

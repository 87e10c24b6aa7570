package billing

import (
	"context"

	"github.com/volatiletech/null/v8"
)

// ListActive returns the active concepts ordered by kind then name.
// With a level, only global concepts and those scoped to that level are returned.
func (svc *Service) ListActive(ctx context.Context, levelID null.Int64) ([]Concept, error) {
	return svc.repo.ListActiveConcepts(ctx, levelID)
}

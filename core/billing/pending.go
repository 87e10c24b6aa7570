package billing

import (
	"context"

	"github.com/pkg/errors"
)

// FindPending returns every active student without a paid invoice issued in the queried month.
// Students with only pending invoices, or none at all, are reported. One row per student.
func (svc *Service) FindPending(ctx context.Context, query PendingQuery) ([]PendingRow, error) {
	if err := query.Validate(svc.validate); err != nil {
		return nil, err
	}
	rows, err := svc.repo.FindPending(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "finding pending payments for %s", query.PeriodKey())
	}
	return rows, nil
}

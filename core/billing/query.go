package billing

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
)

// InvoiceOrderings maps the public ordering fields to invoice columns.
var InvoiceOrderings = map[string]string{
	"id":         "id",
	"number":     "number",
	"issue_date": "issue_date",
	"due_date":   "due_date",
	"status":     "status",
	"total":      "total",
}

func (svc *Service) ListByParent(ctx context.Context, parentID int64, ordering []core.DBOrdering) ([]Invoice, error) {
	return svc.Query(ctx, InvoiceFilter{ParentID: null.Int64From(parentID)}, ordering)
}

// Query filters invoices. Unknown ordering fields are ignored; the default is most recent first.
func (svc *Service) Query(ctx context.Context, filter InvoiceFilter, ordering []core.DBOrdering) ([]Invoice, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "status", Error: invoiceStatusText})
	}
	ordering = core.MapOrderings(ordering, InvoiceOrderings)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "issue_date"}, {Field: "id"}}
	}
	return svc.repo.QueryInvoices(ctx, filter, ordering)
}

// Get returns the invoice header with its student, parent, grade and section display fields.
func (svc *Service) Get(ctx context.Context, id int64) (InvoiceView, error) {
	return svc.repo.GetInvoiceView(ctx, id)
}

// GetDetail returns the invoice lines with their concept names.
func (svc *Service) GetDetail(ctx context.Context, id int64) ([]InvoiceLineView, error) {
	if _, err := svc.repo.GetInvoice(ctx, id); err != nil {
		return nil, err
	}
	return svc.repo.QueryInvoiceLines(ctx, id)
}

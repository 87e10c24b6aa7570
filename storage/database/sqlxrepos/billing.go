package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	conceptColumns = []string{
		"id", "name", "description", "amount", "kind", "duration_months", "level_id", "grade_id", "active",
	}
	invoiceColumns = []string{
		"id", "parent_id", "student_id", "number", "issue_date", "due_date", "status", "subtotal", "discount", "total",
	}
	paymentColumns = []string{
		"id", "invoice_id", "paid_at", "amount", "method", "reference", "notes",
	}
)

type billingRepository struct {
	db   *sqlx.DB
	exec sqlx.ExtContext // db, or the transaction when inTx
	inTx bool
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(db *sqlx.DB) billing.Repository {
	return &billingRepository{db: db, exec: db}
}

func (repo *billingRepository) InTx(ctx context.Context, fn func(ctx context.Context, repo billing.Repository) error) error {
	if repo.inTx {
		return fn(ctx, repo)
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err = fn(ctx, &billingRepository{db: repo.db, exec: tx, inTx: true}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// mapError translates driver errors into billing errors.
func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Cause(err) == sql.ErrNoRows && notFound != nil {
		return notFound
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		switch pqErr.Code {
		case pqUniqueViolation:
			switch pqErr.Constraint {
			case "invoices_number_key":
				return billing.ErrDuplicateInvoiceNumber
			case "payments_reference_key":
				return billing.ErrDuplicateReference
			}
			return core.NewConflictError(pqErr.Message)
		case pqForeignKeyViolation:
			return core.NewConflictError(pqErr.Message)
		}
	}
	return err
}

func (repo *billingRepository) get(ctx context.Context, dest interface{}, q sq.Sqlizer, notFound error) error {
	query, args, err := q.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return mapError(sqlx.GetContext(ctx, repo.exec, dest, query, args...), notFound)
}

func (repo *billingRepository) selectAll(ctx context.Context, dest interface{}, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return mapError(sqlx.SelectContext(ctx, repo.exec, dest, query, args...), nil)
}

func (repo *billingRepository) exists(ctx context.Context, table string, id int64) (bool, error) {
	var found bool
	q := psql.Select("1").
		Prefix("SELECT EXISTS (").
		From(table).
		Where(sq.Eq{"id": id}).
		Suffix(")")
	if err := repo.get(ctx, &found, q, nil); err != nil {
		return false, errors.Wrapf(err, "looking up %s", table)
	}
	return found, nil
}

func (repo *billingRepository) StudentExists(ctx context.Context, id int64) (bool, error) {
	return repo.exists(ctx, "students", id)
}

func (repo *billingRepository) ParentExists(ctx context.Context, id int64) (bool, error) {
	return repo.exists(ctx, "parents", id)
}

func (repo *billingRepository) ListActiveConcepts(ctx context.Context, levelID null.Int64) ([]billing.Concept, error) {
	q := psql.Select(conceptColumns...).From("concepts").Where(sq.Eq{"active": true})
	if levelID.Valid {
		q = q.Where(sq.Or{sq.Eq{"level_id": nil}, sq.Eq{"level_id": levelID.Int64}})
	}
	q = q.OrderBy("kind", "name", "id")

	concepts := make([]billing.Concept, 0)
	if err := repo.selectAll(ctx, &concepts, q); err != nil {
		return nil, errors.Wrap(err, "selecting concepts")
	}
	return concepts, nil
}

func (repo *billingRepository) GetConcept(ctx context.Context, id int64) (billing.Concept, error) {
	var c billing.Concept
	q := psql.Select(conceptColumns...).From("concepts").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, &c, q, billing.ErrConceptNotFound); err != nil {
		return billing.Concept{}, err
	}
	return c, nil
}

func (repo *billingRepository) FindEnrollmentConcept(ctx context.Context, levelID int64) (billing.Concept, error) {
	var c billing.Concept
	q := psql.Select(conceptColumns...).
		From("concepts").
		Where(sq.Eq{"active": true, "kind": billing.KindEnrollment}).
		Where(sq.Or{sq.Eq{"level_id": levelID}, sq.Eq{"level_id": nil}}).
		OrderBy("level_id IS NULL", "id").
		Limit(1)
	if err := repo.get(ctx, &c, q, billing.ErrConceptNotFound); err != nil {
		return billing.Concept{}, err
	}
	return c, nil
}

func (repo *billingRepository) NextInvoiceSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := sqlx.GetContext(ctx, repo.exec, &seq, "SELECT nextval('invoice_number_seq')"); err != nil {
		return 0, errors.Wrap(err, "drawing invoice_number_seq")
	}
	return seq, nil
}

func (repo *billingRepository) CreateInvoice(ctx context.Context, inv billing.Invoice) (billing.Invoice, error) {
	q := psql.Insert("invoices").
		Columns(invoiceColumns[1:]...).
		Values(inv.ParentID, inv.StudentID, inv.Number, inv.IssueDate, inv.DueDate, inv.Status, inv.Subtotal, inv.Discount, inv.Total).
		Suffix("RETURNING id")
	if err := repo.get(ctx, &inv.ID, q, nil); err != nil {
		return billing.Invoice{}, errors.Wrap(err, "inserting invoice")
	}
	if len(inv.Lines) == 0 {
		return inv, nil
	}

	lq := psql.Insert("invoice_lines").Columns("invoice_id", "concept_id", "quantity", "unit_price", "subtotal")
	for _, line := range inv.Lines {
		lq = lq.Values(inv.ID, line.ConceptID, line.Quantity, line.UnitPrice, line.Subtotal)
	}
	lq = lq.Suffix("RETURNING id")

	ids := make([]int64, 0, len(inv.Lines))
	if err := repo.selectAll(ctx, &ids, lq); err != nil {
		return billing.Invoice{}, errors.Wrap(err, "inserting invoice lines")
	}
	if len(ids) != len(inv.Lines) {
		return billing.Invoice{}, errors.Errorf("inserting invoice lines: got %d ids for %d lines", len(ids), len(inv.Lines))
	}
	for i := range inv.Lines {
		inv.Lines[i].ID = ids[i]
		inv.Lines[i].InvoiceID = inv.ID
	}
	return inv, nil
}

func (repo *billingRepository) getInvoice(ctx context.Context, id int64, forUpdate bool) (billing.Invoice, error) {
	var inv billing.Invoice
	q := psql.Select(invoiceColumns...).From("invoices").Where(sq.Eq{"id": id})
	if forUpdate && repo.inTx {
		q = q.Suffix("FOR UPDATE")
	}
	if err := repo.get(ctx, &inv, q, billing.ErrInvoiceNotFound); err != nil {
		return billing.Invoice{}, err
	}
	return inv, nil
}

func (repo *billingRepository) GetInvoice(ctx context.Context, id int64) (billing.Invoice, error) {
	return repo.getInvoice(ctx, id, false)
}

func (repo *billingRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (billing.Invoice, error) {
	return repo.getInvoice(ctx, id, true)
}

func (repo *billingRepository) UpdateInvoiceStatus(ctx context.Context, id int64, status billing.Status) error {
	query, args, err := psql.Update("invoices").Set("status", status).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(mapError(err, nil), "updating invoice status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return billing.ErrInvoiceNotFound
	}
	return nil
}

func (repo *billingRepository) QueryInvoices(ctx context.Context, filter billing.InvoiceFilter, ordering []core.DBOrdering) ([]billing.Invoice, error) {
	q := psql.Select(invoiceColumns...).From("invoices")
	if filter.ParentID.Valid {
		q = q.Where(sq.Eq{"parent_id": filter.ParentID.Int64})
	}
	if filter.StudentID.Valid {
		q = q.Where(sq.Eq{"student_id": filter.StudentID.Int64})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if !filter.IssuedFrom.IsZero() {
		q = q.Where(sq.GtOrEq{"issue_date": filter.IssuedFrom})
	}
	if !filter.IssuedTo.IsZero() {
		q = q.Where(sq.LtOrEq{"issue_date": filter.IssuedTo})
	}
	for _, ord := range ordering {
		q = q.OrderBy(ord.String())
	}

	invoices := make([]billing.Invoice, 0)
	if err := repo.selectAll(ctx, &invoices, q); err != nil {
		return nil, errors.Wrap(err, "selecting invoices")
	}
	return invoices, nil
}

func (repo *billingRepository) GetInvoiceView(ctx context.Context, id int64) (billing.InvoiceView, error) {
	var view billing.InvoiceView
	q := psql.Select(
		"i.id", "i.parent_id", "i.student_id", "i.number", "i.issue_date", "i.due_date",
		"i.status", "i.subtotal", "i.discount", "i.total",
		"s.first_name || ' ' || s.last_name AS student_name",
		"p.name AS parent_name",
		"p.email AS parent_email",
		"g.name AS grade_name",
		"sec.name AS section_name",
	).
		From("invoices i").
		Join("students s ON s.id = i.student_id").
		LeftJoin("parents p ON p.id = i.parent_id").
		LeftJoin("grades g ON g.id = s.grade_id").
		LeftJoin("sections sec ON sec.id = s.section_id").
		Where(sq.Eq{"i.id": id})
	if err := repo.get(ctx, &view, q, billing.ErrInvoiceNotFound); err != nil {
		return billing.InvoiceView{}, err
	}
	return view, nil
}

func (repo *billingRepository) QueryInvoiceLines(ctx context.Context, invoiceID int64) ([]billing.InvoiceLineView, error) {
	q := psql.Select(
		"l.id", "l.invoice_id", "l.concept_id", "l.quantity", "l.unit_price", "l.subtotal",
		"c.name AS concept_name",
	).
		From("invoice_lines l").
		Join("concepts c ON c.id = l.concept_id").
		Where(sq.Eq{"l.invoice_id": invoiceID}).
		OrderBy("l.id")

	lines := make([]billing.InvoiceLineView, 0)
	if err := repo.selectAll(ctx, &lines, q); err != nil {
		return nil, errors.Wrap(err, "selecting invoice lines")
	}
	return lines, nil
}

func (repo *billingRepository) CreatePayment(ctx context.Context, p billing.Payment) (billing.Payment, error) {
	q := psql.Insert("payments").
		Columns(paymentColumns[1:]...).
		Values(p.InvoiceID, p.PaidAt, p.Amount, p.Method, p.Reference, p.Notes).
		Suffix("RETURNING id")
	if err := repo.get(ctx, &p.ID, q, nil); err != nil {
		return billing.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo *billingRepository) GetPaymentByReference(ctx context.Context, reference string) (billing.Payment, error) {
	var p billing.Payment
	q := psql.Select(paymentColumns...).From("payments").Where(sq.Eq{"reference": reference})
	if err := repo.get(ctx, &p, q, billing.ErrPaymentNotFound); err != nil {
		return billing.Payment{}, err
	}
	return p, nil
}

func (repo *billingRepository) QueryPayments(ctx context.Context, invoiceID int64) ([]billing.Payment, error) {
	q := psql.Select(paymentColumns...).
		From("payments").
		Where(sq.Eq{"invoice_id": invoiceID}).
		OrderBy("paid_at DESC", "id DESC")

	payments := make([]billing.Payment, 0)
	if err := repo.selectAll(ctx, &payments, q); err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}
	return payments, nil
}

// FindPending anti-joins active students against paid invoices issued in the queried month.
func (repo *billingRepository) FindPending(ctx context.Context, query billing.PendingQuery) ([]billing.PendingRow, error) {
	from, to := query.Bounds()
	paid, paidArgs, err := sq.Select("1").
		From("invoices i").
		Where("i.student_id = s.id").
		Where(sq.Eq{"i.status": billing.StatusPaid}).
		Where(sq.GtOrEq{"i.issue_date": from}).
		Where(sq.Lt{"i.issue_date": to}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building paid invoices subquery")
	}

	q := psql.Select(
		"s.id AS student_id",
		"s.first_name || ' ' || s.last_name AS student_name",
		"g.name AS grade_name",
		"l.name AS level_name",
		"p.name AS parent_name",
	).
		From("students s").
		LeftJoin("parents p ON p.id = s.parent_id").
		LeftJoin("grades g ON g.id = s.grade_id").
		LeftJoin("levels l ON l.id = s.level_id").
		Where(sq.Eq{"s.status": billing.StudentStatusActive}).
		Where(sq.Expr("NOT EXISTS ("+paid+")", paidArgs...))
	if query.LevelID.Valid {
		q = q.Where(sq.Eq{"s.level_id": query.LevelID.Int64})
	}
	if query.GradeID.Valid {
		q = q.Where(sq.Eq{"s.grade_id": query.GradeID.Int64})
	}
	q = q.OrderBy("l.name NULLS LAST", "g.name NULLS LAST", "s.last_name", "s.first_name", "s.id")

	rows := make([]billing.PendingRow, 0)
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting pending students")
	}
	return rows, nil
}

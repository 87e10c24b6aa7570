package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
)

const invoiceSeq = "invoice_number_seq"

type billingRepository struct {
	db *DB
	tx *txLog // nil outside a transaction
}

// txLog holds the inverse of every write made through a transaction.
// Rolling back replays it in reverse, so writes made outside the transaction survive.
// Sequences are not rolled back.
type txLog struct {
	undo []func(t tables)
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(db *DB) billing.Repository {
	return &billingRepository{db: db}
}

func (repo *billingRepository) InTx(ctx context.Context, fn func(ctx context.Context, repo billing.Repository) error) error {
	if repo.tx != nil {
		return fn(ctx, repo)
	}

	repo.db.txMutex.Lock()
	defer repo.db.txMutex.Unlock()

	tx := new(txLog)
	if err := fn(ctx, &billingRepository{db: repo.db, tx: tx}); err != nil {
		repo.db.mutex.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i](repo.db.data)
		}
		repo.db.mutex.Unlock()
		return err
	}
	return nil
}

// onRollback must be called with the write lock held.
func (repo *billingRepository) onRollback(undo func(t tables)) {
	if repo.tx != nil {
		repo.tx.undo = append(repo.tx.undo, undo)
	}
}

func (repo *billingRepository) StudentExists(_ context.Context, id int64) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	_, ok := repo.db.data.students[id]
	return ok, nil
}

func (repo *billingRepository) ParentExists(_ context.Context, id int64) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	_, ok := repo.db.data.parents[id]
	return ok, nil
}

func (repo *billingRepository) ListActiveConcepts(_ context.Context, levelID null.Int64) ([]billing.Concept, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	concepts := make([]billing.Concept, 0)
	for _, c := range repo.db.data.concepts {
		if !c.Active {
			continue
		}
		if levelID.Valid && c.LevelID.Valid && c.LevelID.Int64 != levelID.Int64 {
			continue
		}
		concepts = append(concepts, c)
	}
	sort.Slice(concepts, func(i, j int) bool {
		if concepts[i].Kind != concepts[j].Kind {
			return concepts[i].Kind < concepts[j].Kind
		}
		if concepts[i].Name != concepts[j].Name {
			return concepts[i].Name < concepts[j].Name
		}
		return concepts[i].ID < concepts[j].ID
	})
	return concepts, nil
}

func (repo *billingRepository) GetConcept(_ context.Context, id int64) (billing.Concept, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.data.concepts[id]; ok {
		return c, nil
	}
	return billing.Concept{}, billing.ErrConceptNotFound
}

func (repo *billingRepository) FindEnrollmentConcept(_ context.Context, levelID int64) (billing.Concept, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var found *billing.Concept
	for _, c := range repo.db.data.concepts {
		c := c
		if !c.Active || c.Kind != billing.KindEnrollment {
			continue
		}
		if c.LevelID.Valid && c.LevelID.Int64 != levelID {
			continue
		}
		switch {
		case found == nil:
			found = &c
		case c.LevelID.Valid && !found.LevelID.Valid:
			found = &c
		case c.LevelID.Valid == found.LevelID.Valid && c.ID < found.ID:
			found = &c
		}
	}
	if found == nil {
		return billing.Concept{}, billing.ErrConceptNotFound
	}
	return *found, nil
}

func (repo *billingRepository) NextInvoiceSeq(_ context.Context) (int64, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	return repo.db.nextID(invoiceSeq), nil
}

func (repo *billingRepository) CreateInvoice(_ context.Context, inv billing.Invoice) (billing.Invoice, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.data.invoices {
		if existing.Number == inv.Number {
			return billing.Invoice{}, billing.ErrDuplicateInvoiceNumber
		}
	}

	inv.ID = repo.db.nextID("invoices")
	lines := make([]billing.InvoiceLine, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		line.ID = repo.db.nextID("invoice_lines")
		line.InvoiceID = inv.ID
		repo.db.data.lines[line.ID] = line
		lines = append(lines, line)
	}
	header := inv
	header.Lines = nil
	repo.db.data.invoices[inv.ID] = header

	repo.onRollback(func(t tables) {
		delete(t.invoices, header.ID)
		for _, line := range lines {
			delete(t.lines, line.ID)
		}
	})

	inv.Lines = lines
	return inv, nil
}

func (repo *billingRepository) GetInvoice(_ context.Context, id int64) (billing.Invoice, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if inv, ok := repo.db.data.invoices[id]; ok {
		return inv, nil
	}
	return billing.Invoice{}, billing.ErrInvoiceNotFound
}

// GetInvoiceForUpdate needs no row lock: transactions are serialized.
func (repo *billingRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (billing.Invoice, error) {
	return repo.GetInvoice(ctx, id)
}

func (repo *billingRepository) UpdateInvoiceStatus(_ context.Context, id int64, status billing.Status) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	inv, ok := repo.db.data.invoices[id]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	prev := inv.Status
	inv.Status = status
	repo.db.data.invoices[id] = inv

	repo.onRollback(func(t tables) {
		if inv, ok := t.invoices[id]; ok {
			inv.Status = prev
			t.invoices[id] = inv
		}
	})
	return nil
}

func (repo *billingRepository) QueryInvoices(_ context.Context, filter billing.InvoiceFilter, ordering []core.DBOrdering) ([]billing.Invoice, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	invoices := make([]billing.Invoice, 0)
	for _, inv := range repo.db.data.invoices {
		if filter.ParentID.Valid && inv.ParentID != filter.ParentID.Int64 {
			continue
		}
		if filter.StudentID.Valid && inv.StudentID != filter.StudentID.Int64 {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if !filter.IssuedFrom.IsZero() && inv.IssueDate.Before(filter.IssuedFrom.Time) {
			continue
		}
		if !filter.IssuedTo.IsZero() && inv.IssueDate.After(filter.IssuedTo.Time) {
			continue
		}
		invoices = append(invoices, inv)
	}

	sort.SliceStable(invoices, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareInvoices(invoices[i], invoices[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return invoices[i].ID < invoices[j].ID
	})
	return invoices, nil
}

func compareInvoices(a, b billing.Invoice, column string) int {
	switch column {
	case "number":
		return strings.Compare(a.Number, b.Number)
	case "issue_date":
		return compareDates(a.IssueDate, b.IssueDate)
	case "due_date":
		return compareDates(a.DueDate, b.DueDate)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "total":
		return a.Total.Cmp(b.Total.Decimal)
	default:
		return compareInt64(a.ID, b.ID)
	}
}

func compareDates(a, b core.Date) int {
	switch {
	case a.Before(b.Time):
		return -1
	case a.After(b.Time):
		return 1
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (repo *billingRepository) GetInvoiceView(_ context.Context, id int64) (billing.InvoiceView, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	inv, ok := repo.db.data.invoices[id]
	if !ok {
		return billing.InvoiceView{}, billing.ErrInvoiceNotFound
	}

	// inner join on students
	s, ok := repo.db.data.students[inv.StudentID]
	if !ok {
		return billing.InvoiceView{}, billing.ErrInvoiceNotFound
	}

	view := billing.InvoiceView{Invoice: inv, StudentName: studentName(s)}
	if g, ok := repo.db.data.grades[s.GradeID.Int64]; ok && s.GradeID.Valid {
		view.GradeName = null.StringFrom(g.Name)
	}
	if sec, ok := repo.db.data.sections[s.SectionID.Int64]; ok && s.SectionID.Valid {
		view.SectionName = null.StringFrom(sec.Name)
	}
	if p, ok := repo.db.data.parents[inv.ParentID]; ok {
		view.ParentName = null.StringFrom(p.Name)
		view.ParentEmail = p.Email
	}
	return view, nil
}

func (repo *billingRepository) QueryInvoiceLines(_ context.Context, invoiceID int64) ([]billing.InvoiceLineView, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lines := make([]billing.InvoiceLineView, 0)
	for _, line := range repo.db.data.lines {
		if line.InvoiceID != invoiceID {
			continue
		}
		lines = append(lines, billing.InvoiceLineView{
			InvoiceLine: line,
			ConceptName: repo.db.data.concepts[line.ConceptID].Name,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

func (repo *billingRepository) CreatePayment(_ context.Context, p billing.Payment) (billing.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.data.invoices[p.InvoiceID]; !ok {
		return billing.Payment{}, billing.ErrInvoiceNotFound
	}
	if p.Reference.Valid {
		for _, existing := range repo.db.data.payments {
			if existing.Reference.Valid && existing.Reference.String == p.Reference.String {
				return billing.Payment{}, billing.ErrDuplicateReference
			}
		}
	}

	p.ID = repo.db.nextID("payments")
	repo.db.data.payments[p.ID] = p

	repo.onRollback(func(t tables) { delete(t.payments, p.ID) })
	return p, nil
}

func (repo *billingRepository) GetPaymentByReference(_ context.Context, reference string) (billing.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, p := range repo.db.data.payments {
		if p.Reference.Valid && p.Reference.String == reference {
			return p, nil
		}
	}
	return billing.Payment{}, billing.ErrPaymentNotFound
}

func (repo *billingRepository) QueryPayments(_ context.Context, invoiceID int64) ([]billing.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	payments := make([]billing.Payment, 0)
	for _, p := range repo.db.data.payments {
		if p.InvoiceID == invoiceID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		if c := compareDates(payments[i].PaidAt, payments[j].PaidAt); c != 0 {
			return c > 0
		}
		return payments[i].ID > payments[j].ID
	})
	return payments, nil
}

func (repo *billingRepository) FindPending(_ context.Context, query billing.PendingQuery) ([]billing.PendingRow, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	from, to := query.Bounds()
	paid := make(map[int64]bool)
	for _, inv := range repo.db.data.invoices {
		if inv.Status == billing.StatusPaid && !inv.IssueDate.Before(from.Time) && inv.IssueDate.Before(to.Time) {
			paid[inv.StudentID] = true
		}
	}

	type sortableRow struct {
		billing.PendingRow
		lastName, firstName string
	}
	rows := make([]sortableRow, 0)
	for _, s := range repo.db.data.students {
		if s.Status != billing.StudentStatusActive || paid[s.ID] {
			continue
		}
		if query.LevelID.Valid && (!s.LevelID.Valid || s.LevelID.Int64 != query.LevelID.Int64) {
			continue
		}
		if query.GradeID.Valid && (!s.GradeID.Valid || s.GradeID.Int64 != query.GradeID.Int64) {
			continue
		}

		row := billing.PendingRow{StudentID: s.ID, StudentName: studentName(s)}
		if g, ok := repo.db.data.grades[s.GradeID.Int64]; ok && s.GradeID.Valid {
			row.GradeName = null.StringFrom(g.Name)
		}
		if l, ok := repo.db.data.levels[s.LevelID.Int64]; ok && s.LevelID.Valid {
			row.LevelName = null.StringFrom(l.Name)
		}
		if p, ok := repo.db.data.parents[s.ParentID.Int64]; ok && s.ParentID.Valid {
			row.ParentName = null.StringFrom(p.Name)
		}
		rows = append(rows, sortableRow{PendingRow: row, lastName: s.LastName, firstName: s.FirstName})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := compareNullsLast(a.LevelName, b.LevelName); c != 0 {
			return c < 0
		}
		if c := compareNullsLast(a.GradeName, b.GradeName); c != 0 {
			return c < 0
		}
		if a.lastName != b.lastName {
			return a.lastName < b.lastName
		}
		if a.firstName != b.firstName {
			return a.firstName < b.firstName
		}
		return a.StudentID < b.StudentID
	})

	pending := make([]billing.PendingRow, 0, len(rows))
	for _, r := range rows {
		pending = append(pending, r.PendingRow)
	}
	return pending, nil
}

func compareNullsLast(a, b null.String) int {
	switch {
	case a.Valid && b.Valid:
		return strings.Compare(a.String, b.String)
	case a.Valid:
		return -1
	case b.Valid:
		return 1
	}
	return 0
}

func studentName(s Student) string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

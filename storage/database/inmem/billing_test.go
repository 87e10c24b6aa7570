package inmemdb_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
	inmemdb "github.com/trezcool/colegio/storage/database/inmem"
	"github.com/trezcool/colegio/tests"
)

func setup(t *testing.T) (billing.Repository, testutil.Roster) {
	db := inmemdb.NewDB()
	roster := testutil.Seed(db)
	return inmemdb.NewBillingRepository(db), roster
}

func TestBillingRepository_InTx(t *testing.T) {
	repo, r := setup(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(ctx context.Context, tx billing.Repository) error {
		inv := testutil.CreateInvoice(t, tx, billing.Invoice{ParentID: r.Garcia.ID, StudentID: r.Ana.ID, IssueDate: core.MustDate("2024-01-10")})
		if _, err := tx.CreatePayment(ctx, billing.Payment{InvoiceID: inv.ID, Amount: core.MustMoney("10"), Method: billing.MethodCash}); err != nil {
			return err
		}
		return boom
	})
	assert.Equal(t, boom, err)

	invoices, err := repo.QueryInvoices(ctx, billing.InvoiceFilter{}, nil)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	err = repo.InTx(ctx, func(ctx context.Context, tx billing.Repository) error {
		testutil.CreateInvoice(t, tx, billing.Invoice{ParentID: r.Garcia.ID, StudentID: r.Ana.ID, IssueDate: core.MustDate("2024-01-10")})
		return nil
	})
	require.NoError(t, err)

	invoices, err = repo.QueryInvoices(ctx, billing.InvoiceFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestBillingRepository_InTx_keepsOutsideWrites(t *testing.T) {
	repo, r := setup(t)
	ctx := context.Background()
	inv := testutil.CreateInvoice(t, repo, billing.Invoice{ParentID: r.Garcia.ID, StudentID: r.Ana.ID, IssueDate: core.MustDate("2024-01-10")})
	boom := errors.New("boom")

	var outside billing.Payment
	err := repo.InTx(ctx, func(ctx context.Context, tx billing.Repository) error {
		if _, err := tx.CreatePayment(ctx, billing.Payment{InvoiceID: inv.ID, Amount: core.MustMoney("5"), Method: billing.MethodCash}); err != nil {
			return err
		}
		var err error
		outside, err = repo.CreatePayment(ctx, billing.Payment{InvoiceID: inv.ID, Amount: core.MustMoney("10"), Method: billing.MethodCash})
		if err != nil {
			return err
		}
		return boom
	})
	assert.Equal(t, boom, err)

	payments, err := repo.QueryPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, outside.ID, payments[0].ID)
}

func TestBillingRepository_roster(t *testing.T) {
	repo, r := setup(t)
	ctx := context.Background()

	ok, err := repo.StudentExists(ctx, r.Ana.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.StudentExists(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ParentExists(ctx, r.Perez.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ParentExists(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBillingRepository_concepts(t *testing.T) {
	repo, r := setup(t)
	ctx := context.Background()

	t.Run("level scoped concepts", func(t *testing.T) {
		concepts, err := repo.ListActiveConcepts(ctx, null.Int64From(r.Primary.ID))
		require.NoError(t, err)
		names := make([]string, 0, len(concepts))
		for _, c := range concepts {
			names = append(names, c.Name)
		}
		// enrollment < material < monthly_fee
		assert.Equal(t, []string{"Matrícula", "Matrícula primaria", "Materiales", "Cuota mensual"}, names)
	})

	t.Run("enrollment prefers the level", func(t *testing.T) {
		c, err := repo.FindEnrollmentConcept(ctx, r.Primary.ID)
		require.NoError(t, err)
		assert.Equal(t, r.PrimaryEnrollment.ID, c.ID)

		c, err = repo.FindEnrollmentConcept(ctx, r.Secondary.ID)
		require.NoError(t, err)
		assert.Equal(t, r.Enrollment.ID, c.ID)
	})

	t.Run("unknown concept", func(t *testing.T) {
		_, err := repo.GetConcept(ctx, 999)
		assert.Equal(t, billing.ErrConceptNotFound, err)
	})
}

func TestBillingRepository_invoices(t *testing.T) {
	repo, r := setup(t)
	ctx := context.Background()

	inv := testutil.CreateInvoice(t, repo, billing.Invoice{
		ParentID: r.Garcia.ID, StudentID: r.Ana.ID, IssueDate: core.MustDate("2024-02-01"),
		Lines: []billing.InvoiceLine{
			{ConceptID: r.MonthlyFee.ID, Quantity: 1, UnitPrice: r.MonthlyFee.Amount, Subtotal: r.MonthlyFee.Amount},
			{ConceptID: r.Material.ID, Quantity: 1, UnitPrice: r.Material.Amount, Subtotal: r.Material.Amount},
		},
	})
	older := testutil.CreateInvoice(t, repo, billing.Invoice{ParentID: r.Garcia.ID, StudentID: r.Diego.ID, IssueDate: core.MustDate("2024-01-01")})

	t.Run("lines are stored apart from the header", func(t *testing.T) {
		require.Len(t, inv.Lines, 2)
		assert.Equal(t, inv.ID, inv.Lines[0].InvoiceID)

		header, err := repo.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		assert.Nil(t, header.Lines)

		lines, err := repo.QueryInvoiceLines(ctx, inv.ID)
		require.NoError(t, err)
		require.Len(t, lines, 2)
		assert.Equal(t, "Cuota mensual", lines[0].ConceptName)
		assert.Equal(t, "Materiales", lines[1].ConceptName)
	})

	t.Run("duplicate number", func(t *testing.T) {
		_, err := repo.CreateInvoice(ctx, billing.Invoice{Number: inv.Number, ParentID: r.Garcia.ID, StudentID: r.Ana.ID})
		assert.Equal(t, billing.ErrDuplicateInvoiceNumber, err)
	})

	t.Run("view", func(t *testing.T) {
		view, err := repo.GetInvoiceView(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ana García", view.StudentName)
		assert.Equal(t, null.StringFrom("maria.garcia@test.com"), view.ParentEmail)
		assert.Equal(t, null.StringFrom("1er grado"), view.GradeName)
	})

	t.Run("view without student", func(t *testing.T) {
		orphan := testutil.CreateInvoice(t, repo, billing.Invoice{ParentID: r.Perez.ID, StudentID: 999, IssueDate: core.MustDate("2023-12-01")})
		_, err := repo.GetInvoiceView(ctx, orphan.ID)
		assert.Equal(t, billing.ErrInvoiceNotFound, err)
	})

	t.Run("ordering", func(t *testing.T) {
		invoices, err := repo.QueryInvoices(ctx, billing.InvoiceFilter{ParentID: null.Int64From(r.Garcia.ID)}, []core.DBOrdering{{Field: "issue_date"}})
		require.NoError(t, err)
		require.Len(t, invoices, 2)
		assert.Equal(t, inv.ID, invoices[0].ID)
		assert.Equal(t, older.ID, invoices[1].ID)
	})

	t.Run("issued range", func(t *testing.T) {
		invoices, err := repo.QueryInvoices(ctx, billing.InvoiceFilter{
			IssuedFrom: core.MustDate("2024-01-01"), IssuedTo: core.MustDate("2024-01-31"),
		}, nil)
		require.NoError(t, err)
		require.Len(t, invoices, 1)
		assert.Equal(t, older.ID, invoices[0].ID)
	})

	t.Run("status update", func(t *testing.T) {
		require.NoError(t, repo.UpdateInvoiceStatus(ctx, older.ID, billing.StatusOverdue))
		assert.Equal(t, billing.ErrInvoiceNotFound, repo.UpdateInvoiceStatus(ctx, 999, billing.StatusOverdue))
	})
}

func TestBillingRepository_payments(t *testing.T) {
	repo, r := setup(t)
	ctx := context.Background()
	inv := testutil.CreateInvoice(t, repo, billing.Invoice{ParentID: r.Garcia.ID, StudentID: r.Ana.ID, IssueDate: core.MustDate("2024-01-10")})

	pay := func(date, ref string) (billing.Payment, error) {
		p := billing.Payment{InvoiceID: inv.ID, PaidAt: core.MustDate(date), Amount: core.MustMoney("10"), Method: billing.MethodCash}
		if ref != "" {
			p.Reference = null.StringFrom(ref)
		}
		return repo.CreatePayment(ctx, p)
	}

	first, err := pay("2024-01-11", "r-1")
	require.NoError(t, err)
	second, err := pay("2024-01-15", "")
	require.NoError(t, err)
	third, err := pay("2024-01-15", "")
	require.NoError(t, err)

	_, err = pay("2024-01-16", "r-1")
	assert.Equal(t, billing.ErrDuplicateReference, err)

	_, err = repo.CreatePayment(ctx, billing.Payment{InvoiceID: 999, Amount: core.MustMoney("1"), Method: billing.MethodCash})
	assert.Equal(t, billing.ErrInvoiceNotFound, err)

	got, err := repo.GetPaymentByReference(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	payments, err := repo.QueryPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.Equal(t, []int64{third.ID, second.ID, first.ID}, []int64{payments[0].ID, payments[1].ID, payments[2].ID})
}

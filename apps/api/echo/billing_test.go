package echoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
)

func Test_billingApi_concepts(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	all, err := app.repo.ListActiveConcepts(ctx, null.Int64{})
	require.NoError(t, err)
	secondary, err := app.repo.ListActiveConcepts(ctx, null.Int64From(app.roster.Secondary.ID))
	require.NoError(t, err)

	list := func(concepts []billing.Concept) []interface{} {
		objs := make([]interface{}, 0, len(concepts))
		for _, c := range concepts {
			objs = append(objs, c)
		}
		return objs
	}

	runHTTPTests(t, app, []httpTest{
		{name: "all", method: http.MethodGet, path: "/api/concepts", wantCode: http.StatusOK, wantData: marchallList(t, list(all)...)},
		{
			name:     "by level",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/api/concepts?level_id=%d", app.roster.Secondary.ID),
			wantCode: http.StatusOK,
			wantData: marchallList(t, list(secondary)...),
		},
		{
			name:     "invalid level",
			method:   http.MethodGet,
			path:     "/api/concepts?level_id=abc",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"level_id": errInvalidInteger}),
		},
	})
}

func Test_billingApi_createInvoice(t *testing.T) {
	app := setup(t)
	r := app.roster

	body := marchallObj(t, map[string]interface{}{
		"parent_id":  r.Garcia.ID,
		"student_id": r.Ana.ID,
		"items": []map[string]interface{}{
			{"concept_id": r.MonthlyFee.ID, "quantity": 1},
			{"concept_id": r.Material.ID, "quantity": 2},
		},
		"discount":   "20.00",
		"issue_date": "2024-03-01",
	})
	req, rec := newRequest(http.MethodPost, "/api/invoices", body)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "150.00", got["subtotal"])
	assert.Equal(t, "130.00", got["total"])
	assert.Equal(t, "2024-03-11", got["due_date"])
	assert.Equal(t, "pending", got["status"])
	assert.Len(t, got["lines"], 2)

	runHTTPTests(t, app, []httpTest{
		{
			name:   "discount above subtotal",
			method: http.MethodPost,
			path:   "/api/invoices",
			body: marchallObj(t, map[string]interface{}{
				"parent_id": r.Garcia.ID, "student_id": r.Ana.ID, "discount": "200",
				"items": []map[string]interface{}{{"concept_id": r.MonthlyFee.ID, "quantity": 1}},
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"discount": "discount cannot exceed the invoice subtotal"}),
		},
		{
			name:   "missing fields",
			method: http.MethodPost,
			path:   "/api/invoices",
			body:   []byte(`{"items": [{"concept_id": 1, "quantity": 0}]}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"parent_id":          "this field is required",
				"student_id":         "this field is required",
				"items[0].quantity": "quantity must be 1 or greater",
			}),
		},
		{
			name:   "unknown concept",
			method: http.MethodPost,
			path:   "/api/invoices",
			body: marchallObj(t, map[string]interface{}{
				"parent_id": r.Garcia.ID, "student_id": r.Ana.ID,
				"items": []map[string]interface{}{{"concept_id": 999, "quantity": 1}},
			}),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: billing.ErrConceptNotFound.Error()}),
		},
		{
			name:   "unknown student",
			method: http.MethodPost,
			path:   "/api/invoices",
			body: marchallObj(t, map[string]interface{}{
				"parent_id": r.Garcia.ID, "student_id": 8888,
				"items": []map[string]interface{}{{"concept_id": r.MonthlyFee.ID, "quantity": 1}},
			}),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: billing.ErrStudentNotFound.Error()}),
		},
		{
			name:     "malformed body",
			method:   http.MethodPost,
			path:     "/api/invoices",
			body:     []byte(`{"parent_id": "x"`),
			wantCode: http.StatusBadRequest,
		},
	})
}

func Test_billingApi_enrollment(t *testing.T) {
	app := setup(t)
	r := app.roster

	req, rec := newRequest(http.MethodPost, "/api/invoices/enrollment", marchallObj(t, map[string]int64{
		"student_id": r.Ana.ID, "parent_id": r.Garcia.ID, "level_id": r.Primary.ID,
	}))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got billing.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "120.00", got.Total.String())

	runHTTPTests(t, app, []httpTest{
		{
			name:     "missing level",
			method:   http.MethodPost,
			path:     "/api/invoices/enrollment",
			body:     marchallObj(t, map[string]int64{"student_id": r.Ana.ID, "parent_id": r.Garcia.ID}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"level_id": "this field is required"}),
		},
	})
}

func Test_billingApi_invoices(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	r := app.roster

	jan := app.invoice(t, billing.StatusPending, "100")
	paid := app.invoice(t, billing.StatusPaid, "50")
	view, err := app.repo.GetInvoiceView(ctx, jan.ID)
	require.NoError(t, err)
	janHeader, err := app.repo.GetInvoice(ctx, jan.ID)
	require.NoError(t, err)
	paidHeader, err := app.repo.GetInvoice(ctx, paid.ID)
	require.NoError(t, err)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "by parent",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/api/invoices?parent_id=%d&ordering=total", r.Garcia.ID),
			wantCode: http.StatusOK,
			wantData: marchallList(t, paidHeader, janHeader),
		},
		{
			name:     "by status",
			method:   http.MethodGet,
			path:     "/api/invoices?status=paid",
			wantCode: http.StatusOK,
			wantData: marchallList(t, paidHeader),
		},
		{
			name:     "no match",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/api/invoices?parent_id=%d", r.Lopez.ID),
			wantCode: http.StatusOK,
			wantData: marchallList(t),
		},
		{
			name:     "invalid status",
			method:   http.MethodGet,
			path:     "/api/invoices?status=lost",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid date",
			method:   http.MethodGet,
			path:     "/api/invoices?issued_from=01/01/2024",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"issued_from": errInvalidDate}),
		},
		{name: "retrieve", method: http.MethodGet, path: fmt.Sprintf("/api/invoices/%d", jan.ID), wantCode: http.StatusOK, wantData: marchallObj(t, view)},
		{
			name:     "retrieve unknown",
			method:   http.MethodGet,
			path:     "/api/invoices/999",
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: billing.ErrInvoiceNotFound.Error()}),
		},
		{name: "retrieve bad id", method: http.MethodGet, path: "/api/invoices/abc", wantCode: http.StatusNotFound},
	})
}

func Test_billingApi_detailAndPayments(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	r := app.roster

	req, rec := newRequest(http.MethodPost, "/api/invoices", marchallObj(t, map[string]interface{}{
		"parent_id": r.Garcia.ID, "student_id": r.Ana.ID,
		"items": []map[string]interface{}{
			{"concept_id": r.MonthlyFee.ID, "quantity": 1},
			{"concept_id": r.Material.ID, "quantity": 1},
		},
	}))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv billing.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))

	lines, err := app.repo.QueryInvoiceLines(ctx, inv.ID)
	require.NoError(t, err)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "detail",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/api/invoices/%d/detail", inv.ID),
			wantCode: http.StatusOK,
			wantData: marchallList(t, lines[0], lines[1]),
		},
		{
			name:     "no payments yet",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/api/invoices/%d/payments", inv.ID),
			wantCode: http.StatusOK,
			wantData: marchallList(t),
		},
		{
			name:     "record payment",
			method:   http.MethodPost,
			path:     fmt.Sprintf("/api/invoices/%d/payments", inv.ID),
			body:     []byte(`{"amount": "50.5", "method": "cash", "paid_at": "2024-01-12", "reference": "rc-1"}`),
			wantCode: http.StatusCreated,
			wantData: marchallObj(t, billing.Payment{
				ID:        1,
				InvoiceID: inv.ID,
				PaidAt:    core.MustDate("2024-01-12"),
				Amount:    core.MustMoney("50.50"),
				Method:    billing.MethodCash,
				Reference: null.StringFrom("rc-1"),
			}),
		},
		{
			name:     "duplicate reference",
			method:   http.MethodPost,
			path:     fmt.Sprintf("/api/invoices/%d/payments", inv.ID),
			body:     []byte(`{"amount": "10", "method": "cash", "reference": "rc-1"}`),
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: billing.ErrDuplicateReference.Error()}),
		},
		{
			name:     "invalid payment",
			method:   http.MethodPost,
			path:     fmt.Sprintf("/api/invoices/%d/payments", inv.ID),
			body:     []byte(`{"amount": "0", "method": "cheque"}`),
			wantCode: http.StatusBadRequest,
		},
		{name: "payments of unknown invoice", method: http.MethodGet, path: "/api/invoices/999/payments", wantCode: http.StatusNotFound},
		{name: "detail of unknown invoice", method: http.MethodGet, path: "/api/invoices/999/detail", wantCode: http.StatusNotFound},
	})
}

func Test_billingApi_updateStatus(t *testing.T) {
	app := setup(t)
	pending := app.invoice(t, billing.StatusPending, "100")
	paid := app.invoice(t, billing.StatusPaid, "100")

	path := func(inv billing.Invoice) string { return fmt.Sprintf("/api/invoices/%d/status", inv.ID) }

	tests := []httpTest{
		{name: "to overdue", method: http.MethodPut, path: path(pending), body: []byte(`{"status": "overdue"}`), wantCode: http.StatusOK},
		{name: "paid is terminal", method: http.MethodPut, path: path(paid), body: []byte(`{"status": "pending"}`), wantCode: http.StatusConflict},
		{name: "unknown status", method: http.MethodPut, path: path(pending), body: []byte(`{"status": "lost"}`), wantCode: http.StatusBadRequest},
		{name: "unknown invoice", method: http.MethodPut, path: "/api/invoices/999/status", body: []byte(`{"status": "paid"}`), wantCode: http.StatusNotFound},
	}
	runHTTPTests(t, app, tests)

	stored, err := app.repo.GetInvoice(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusOverdue, stored.Status)
}

func Test_billingApi_pending(t *testing.T) {
	app := setup(t)
	r := app.roster

	app.invoice(t, billing.StatusPaid, "100") // Ana, 2024-01-10

	req, rec := newRequest(http.MethodGet, fmt.Sprintf("/api/payments/pending?year=2024&month=1&level_id=%d", r.Primary.ID))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rows []billing.PendingRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, r.Bruno.ID, rows[0].StudentID)
	assert.Equal(t, r.Carla.ID, rows[1].StudentID)

	runHTTPTests(t, app, []httpTest{
		{name: "missing period", method: http.MethodGet, path: "/api/payments/pending", wantCode: http.StatusBadRequest},
		{
			name:     "non numeric month",
			method:   http.MethodGet,
			path:     "/api/payments/pending?year=2024&month=jan",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"month": errInvalidInteger}),
		},
		{name: "month out of range", method: http.MethodGet, path: "/api/payments/pending?year=2024&month=13", wantCode: http.StatusBadRequest},
	})
}

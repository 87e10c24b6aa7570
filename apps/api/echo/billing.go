package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core/billing"
)

type billingApi struct {
	svc      billing.ServiceInterface
	validate *validator.Validate
}

func registerBillingAPI(g *echo.Group, svc billing.ServiceInterface, validate *validator.Validate) {
	api := billingApi{
		svc:      svc,
		validate: validate,
	}

	g.GET("/concepts", api.listConcepts)
	g.GET("/payments/pending", api.pending)

	ig := g.Group("/invoices")
	ig.POST("", api.createInvoice)
	ig.POST("/enrollment", api.createEnrollmentInvoice)
	ig.GET("", api.queryInvoices)

	// detail endpoints
	dg := ig.Group("/:id")
	dg.GET("", api.retrieveInvoice)
	dg.GET("/detail", api.invoiceDetail)
	dg.GET("/payments", api.invoicePayments)
	dg.POST("/payments", api.recordPayment)
	dg.PUT("/status", api.updateStatus)
}

// Handlers

func (api *billingApi) listConcepts(ctx echo.Context) error {
	qb := newQueryBinder(ctx)
	levelID := qb.NullInt64("level_id")
	if err := qb.Err(); err != nil {
		return err
	}

	concepts, err := api.svc.ListActive(ctx.Request().Context(), levelID)
	if err != nil {
		return errors.Wrap(err, "listing concepts")
	}
	if concepts == nil {
		concepts = []billing.Concept{}
	}
	return ctx.JSON(http.StatusOK, concepts)
}

func (api *billingApi) pending(ctx echo.Context) error {
	qb := newQueryBinder(ctx)
	query := billing.PendingQuery{
		Year:    qb.Int("year"),
		Month:   qb.Int("month"),
		LevelID: qb.NullInt64("level_id"),
		GradeID: qb.NullInt64("grade_id"),
	}
	if err := qb.Err(); err != nil {
		return err
	}

	rows, err := api.svc.FindPending(ctx.Request().Context(), query)
	if err != nil {
		return errors.Wrap(err, "finding pending payments")
	}
	if rows == nil {
		rows = []billing.PendingRow{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *billingApi) createInvoice(ctx echo.Context) error {
	var data billing.NewInvoice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvoice")
	}

	inv, err := api.svc.CreateInvoice(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating invoice")
	}
	return ctx.JSON(http.StatusCreated, inv)
}

func (api *billingApi) createEnrollmentInvoice(ctx echo.Context) error {
	var data billing.NewEnrollmentInvoice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollmentInvoice")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	inv, err := api.svc.GenerateEnrollmentInvoice(ctx.Request().Context(), data.StudentID, data.ParentID, data.LevelID)
	if err != nil {
		return errors.Wrap(err, "generating enrollment invoice")
	}
	return ctx.JSON(http.StatusCreated, inv)
}

func (api *billingApi) queryInvoices(ctx echo.Context) error {
	qb := newQueryBinder(ctx)
	filter := billing.InvoiceFilter{
		ParentID:   qb.NullInt64("parent_id"),
		StudentID:  qb.NullInt64("student_id"),
		Status:     billing.Status(qb.String("status")),
		IssuedFrom: qb.Date("issued_from"),
		IssuedTo:   qb.Date("issued_to"),
	}
	if err := qb.Err(); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	invoices, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying invoices")
	}
	if invoices == nil {
		invoices = []billing.Invoice{}
	}
	return ctx.JSON(http.StatusOK, invoices)
}

func (api *billingApi) retrieveInvoice(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	inv, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "retrieving invoice")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *billingApi) invoiceDetail(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	lines, err := api.svc.GetDetail(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "retrieving invoice detail")
	}
	if lines == nil {
		lines = []billing.InvoiceLineView{}
	}
	return ctx.JSON(http.StatusOK, lines)
}

func (api *billingApi) invoicePayments(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	payments, err := api.svc.GetPayments(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "retrieving invoice payments")
	}
	if payments == nil {
		payments = []billing.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *billingApi) recordPayment(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	var data billing.NewPayment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	data.InvoiceID = id

	payment, err := api.svc.RecordPayment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, payment)
}

func (api *billingApi) updateStatus(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	var data billing.StatusUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}

	inv, err := api.svc.MarkInvoiceStatus(ctx.Request().Context(), id, data.Status)
	if err != nil {
		return errors.Wrap(err, "updating invoice status")
	}
	return ctx.JSON(http.StatusOK, inv)
}

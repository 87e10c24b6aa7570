package billing

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
)

var (
	// errors
	ErrStudentNotFound             = core.NewNotFoundError("student not found")
	ErrParentNotFound              = core.NewNotFoundError("parent not found")
	ErrConceptNotFound             = core.NewNotFoundError("concept not found")
	ErrNoEnrollmentConceptForLevel = core.NewNotFoundError("no active enrollment concept for this level")
	ErrInvoiceNotFound             = core.NewNotFoundError("invoice not found")
	ErrPaymentNotFound             = core.NewNotFoundError("payment not found")
	ErrInvalidTransition           = core.NewConflictError("invalid invoice status transition")
	ErrAlreadyPaid                 = core.NewConflictError("invoice already paid")
	ErrDuplicateReference          = core.NewConflictError("a payment with this reference already exists")
	ErrDuplicateInvoiceNumber      = core.NewConflictError("an invoice with this number already exists")

	errInvalidDiscount = "discount cannot exceed the invoice subtotal"
)

type (
	// Repository is the read/write contract over the billing tables (and the roster tables it reads).
	// Lookups return the package's NotFound errors; unique violations return ErrDuplicate*.
	Repository interface {
		// InTx runs fn against a Repository bound to a single transaction.
		// The transaction is committed when fn returns nil and rolled back otherwise.
		InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

		StudentExists(ctx context.Context, id int64) (bool, error)
		ParentExists(ctx context.Context, id int64) (bool, error)

		ListActiveConcepts(ctx context.Context, levelID null.Int64) ([]Concept, error)
		GetConcept(ctx context.Context, id int64) (Concept, error)
		// FindEnrollmentConcept prefers a concept scoped to levelID over a global one.
		FindEnrollmentConcept(ctx context.Context, levelID int64) (Concept, error)

		NextInvoiceSeq(ctx context.Context) (int64, error)
		// CreateInvoice writes the header and its lines.
		CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
		GetInvoice(ctx context.Context, id int64) (Invoice, error)
		// GetInvoiceForUpdate locks the invoice row until the surrounding transaction ends.
		GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
		UpdateInvoiceStatus(ctx context.Context, id int64, status Status) error
		QueryInvoices(ctx context.Context, filter InvoiceFilter, ordering []core.DBOrdering) ([]Invoice, error)
		GetInvoiceView(ctx context.Context, id int64) (InvoiceView, error)
		QueryInvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLineView, error)

		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		GetPaymentByReference(ctx context.Context, reference string) (Payment, error)
		// QueryPayments returns the invoice payments, most recent first.
		QueryPayments(ctx context.Context, invoiceID int64) ([]Payment, error)

		FindPending(ctx context.Context, query PendingQuery) ([]PendingRow, error)
	}

	ConceptCatalog interface {
		ListActive(ctx context.Context, levelID null.Int64) ([]Concept, error)
	}

	InvoiceGenerator interface {
		CreateInvoice(ctx context.Context, ni NewInvoice) (Invoice, error)
		GenerateEnrollmentInvoice(ctx context.Context, studentID, parentID, levelID int64) (Invoice, error)
	}

	PaymentLedger interface {
		RecordPayment(ctx context.Context, np NewPayment) (Payment, error)
		MarkInvoiceStatus(ctx context.Context, invoiceID int64, status Status) (Invoice, error)
		Confirm(ctx context.Context, c Confirmation) (ConfirmResult, error)
		GetPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	}

	PendingPaymentsResolver interface {
		FindPending(ctx context.Context, query PendingQuery) ([]PendingRow, error)
	}

	InvoiceQueryService interface {
		ListByParent(ctx context.Context, parentID int64, ordering []core.DBOrdering) ([]Invoice, error)
		Query(ctx context.Context, filter InvoiceFilter, ordering []core.DBOrdering) ([]Invoice, error)
		Get(ctx context.Context, id int64) (InvoiceView, error)
		GetDetail(ctx context.Context, id int64) ([]InvoiceLineView, error)
	}

	ServiceInterface interface {
		ConceptCatalog
		InvoiceGenerator
		PaymentLedger
		PendingPaymentsResolver
		InvoiceQueryService
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
		logger   core.Logger
		conf     *core.Config
		nowFunc  func() time.Time
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, validate *validator.Validate, logger core.Logger, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		validate: validate,
		logger:   logger,
		conf:     conf,
		nowFunc:  time.Now,
	}
}

func (svc *Service) today() core.Date {
	return core.DateOf(svc.nowFunc())
}

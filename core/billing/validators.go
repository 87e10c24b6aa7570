package billing

import (
	"fmt"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
)

var (
	invoiceStatusTag  = "invoice_status"
	invoiceStatusText = fmt.Sprintf("must be one of: %s", joinStatuses())

	paymentMethodTag  = "payment_method"
	paymentMethodText = fmt.Sprintf("must be one of: %s", joinMethods())

	dueBeforeIssueTag  = "due_before_issue"
	dueBeforeIssueText = "due date cannot be before the issue date"
)

// InitValidators registers the billing validations and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(invoiceStatusTag, func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, invoiceStatusTag, invoiceStatusText)

	_ = validate.RegisterValidation(paymentMethodTag, func(fl validator.FieldLevel) bool {
		return Method(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, paymentMethodTag, paymentMethodText)

	validate.RegisterStructValidation(newInvoiceStructValidation, NewInvoice{})
	core.RegisterCustomTranslation(validate, translator, dueBeforeIssueTag, dueBeforeIssueText)
}

func newInvoiceStructValidation(sl validator.StructLevel) {
	ni, ok := sl.Current().Interface().(NewInvoice)
	if !ok {
		return
	}
	if !ni.IssueDate.IsZero() && !ni.DueDate.IsZero() && ni.DueDate.Before(ni.IssueDate.Time) {
		sl.ReportError(ni.DueDate, "due_date", "DueDate", dueBeforeIssueTag, "")
	}
}

func joinStatuses() string {
	s := make([]string, 0, len(Statuses))
	for _, st := range Statuses {
		s = append(s, string(st))
	}
	return strings.Join(s, ", ")
}

func joinMethods() string {
	s := make([]string, 0, len(Methods))
	for _, m := range Methods {
		s = append(s, string(m))
	}
	return strings.Join(s, ", ")
}

type (
	NewInvoiceItem struct {
		ConceptID int64 `json:"concept_id" validate:"required"`
		Quantity  int   `json:"quantity" validate:"min=1"`
	}

	// NewInvoice defines what information may be provided to issue an Invoice.
	// IssueDate defaults to today and DueDate to IssueDate + the configured due days.
	NewInvoice struct {
		ParentID  int64            `json:"parent_id" validate:"required"`
		StudentID int64            `json:"student_id" validate:"required"`
		Items     []NewInvoiceItem `json:"items" validate:"required,min=1,dive"`
		Discount  core.Money       `json:"discount" validate:"gte=0"`
		IssueDate core.Date        `json:"issue_date"`
		DueDate   core.Date        `json:"due_date"`
	}

	NewEnrollmentInvoice struct {
		StudentID int64 `json:"student_id" validate:"required"`
		ParentID  int64 `json:"parent_id" validate:"required"`
		LevelID   int64 `json:"level_id" validate:"required"`
	}

	// NewPayment defines a payment to append to an invoice's ledger. PaidAt defaults to today.
	NewPayment struct {
		InvoiceID int64       `json:"invoice_id" validate:"required"`
		Amount    core.Money  `json:"amount" validate:"gt=0"`
		Method    Method      `json:"method" validate:"required,payment_method"`
		PaidAt    core.Date   `json:"paid_at"`
		Reference null.String `json:"reference"`
		Notes     null.String `json:"notes"`
	}

	StatusUpdate struct {
		Status Status `json:"status" validate:"required,invoice_status"`
	}

	// Confirmation is an external "this invoice is paid" event.
	// Reference is the idempotency key: the same reference is never recorded twice.
	Confirmation struct {
		InvoiceID int64      `json:"invoice_id" validate:"required"`
		Amount    core.Money `json:"amount" validate:"gt=0"`
		Method    Method     `json:"method" validate:"required,payment_method"`
		PaidAt    core.Date  `json:"paid_at"`
		Reference string     `json:"reference" validate:"required"`
		Notes     string     `json:"notes"`
	}

	// PendingQuery selects the calendar month (and optionally level / grade) to resolve.
	PendingQuery struct {
		Year    int        `json:"year" validate:"min=2000,max=9999"`
		Month   int        `json:"month" validate:"min=1,max=12"`
		LevelID null.Int64 `json:"level_id"`
		GradeID null.Int64 `json:"grade_id"`
	}

	InvoiceFilter struct {
		ParentID   null.Int64
		StudentID  null.Int64
		Status     Status
		IssuedFrom core.Date
		IssuedTo   core.Date
	}
)

func (ni *NewInvoice) Validate(validate *validator.Validate) error {
	return validate.Struct(ni)
}

func (ne NewEnrollmentInvoice) Validate(validate *validator.Validate) error {
	return validate.Struct(ne)
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.Method = Method(core.CleanString(string(np.Method), true /* lower */))
	if np.Reference.Valid {
		np.Reference.String = core.CleanString(np.Reference.String)
		np.Reference.Valid = np.Reference.String != ""
	}
	return validate.Struct(np)
}

func (su *StatusUpdate) Validate(validate *validator.Validate) error {
	su.Status = Status(core.CleanString(string(su.Status), true /* lower */))
	return validate.Struct(su)
}

func (c *Confirmation) Validate(validate *validator.Validate) error {
	c.Reference = core.CleanString(c.Reference)
	return validate.Struct(c)
}

func (q PendingQuery) Validate(validate *validator.Validate) error {
	return validate.Struct(q)
}

// PeriodKey returns the `YYYY-MM` key of the queried month.
func (q PendingQuery) PeriodKey() string {
	return fmt.Sprintf("%04d-%02d", q.Year, q.Month)
}

// Bounds returns the first day of the queried month and the first day of the next one.
func (q PendingQuery) Bounds() (from, to core.Date) {
	from = core.NewDate(q.Year, time.Month(q.Month), 1)
	return from, core.DateOf(from.AddDate(0, 1, 0))
}

func (f InvoiceFilter) IsEmpty() bool {
	return !f.ParentID.Valid && !f.StudentID.Valid && f.Status == "" && f.IssuedFrom.IsZero() && f.IssuedTo.IsZero()
}

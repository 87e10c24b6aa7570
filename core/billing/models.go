package billing

import (
	"fmt"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
)

// Concept kinds
const (
	KindEnrollment Kind = "enrollment"
	KindMonthlyFee Kind = "monthly_fee"
	KindMaterial   Kind = "material"
	KindActivity   Kind = "activity"
	KindOther      Kind = "other"
)

// Invoice statuses
const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Payment methods
const (
	MethodCash     Method = "cash"
	MethodCard     Method = "card"
	MethodTransfer Method = "transfer"
	MethodGateway  Method = "gateway"
)

// StudentStatusActive is the roster status of an enrolled student.
const StudentStatusActive = "active"

var (
	Kinds    = []Kind{KindEnrollment, KindMonthlyFee, KindMaterial, KindActivity, KindOther}
	Statuses = []Status{StatusPending, StatusPaid, StatusOverdue, StatusCancelled}
	Methods  = []Method{MethodCash, MethodCard, MethodTransfer, MethodGateway}
)

type (
	Kind   string
	Status string
	Method string

	Concept struct {
		ID             int64      `db:"id" json:"id"`
		Name           string     `db:"name" json:"name"`
		Description    string     `db:"description" json:"description"`
		Amount         core.Money `db:"amount" json:"amount"`
		Kind           Kind       `db:"kind" json:"kind"`
		DurationMonths null.Int   `db:"duration_months" json:"duration_months"` // informational, set on monthly fees
		LevelID        null.Int64 `db:"level_id" json:"level_id"`
		GradeID        null.Int64 `db:"grade_id" json:"grade_id"`
		Active         bool       `db:"active" json:"active"`
	}

	Invoice struct {
		ID        int64         `db:"id" json:"id"`
		ParentID  int64         `db:"parent_id" json:"parent_id"`
		StudentID int64         `db:"student_id" json:"student_id"`
		Number    string        `db:"number" json:"number"`
		IssueDate core.Date     `db:"issue_date" json:"issue_date"`
		DueDate   core.Date     `db:"due_date" json:"due_date"`
		Status    Status        `db:"status" json:"status"`
		Subtotal  core.Money    `db:"subtotal" json:"subtotal"`
		Discount  core.Money    `db:"discount" json:"discount"`
		Total     core.Money    `db:"total" json:"total"`
		Lines     []InvoiceLine `db:"-" json:"lines,omitempty"`
	}

	InvoiceLine struct {
		ID        int64      `db:"id" json:"id"`
		InvoiceID int64      `db:"invoice_id" json:"invoice_id"`
		ConceptID int64      `db:"concept_id" json:"concept_id"`
		Quantity  int        `db:"quantity" json:"quantity"`
		UnitPrice core.Money `db:"unit_price" json:"unit_price"`
		Subtotal  core.Money `db:"subtotal" json:"subtotal"`
	}

	Payment struct {
		ID        int64       `db:"id" json:"id"`
		InvoiceID int64       `db:"invoice_id" json:"invoice_id"`
		PaidAt    core.Date   `db:"paid_at" json:"paid_at"`
		Amount    core.Money  `db:"amount" json:"amount"`
		Method    Method      `db:"method" json:"method"`
		Reference null.String `db:"reference" json:"reference"`
		Notes     null.String `db:"notes" json:"notes"`
	}

	// InvoiceView is an invoice header joined with its roster display fields.
	InvoiceView struct {
		Invoice
		StudentName string      `db:"student_name" json:"student_name"`
		ParentName  null.String `db:"parent_name" json:"parent_name"`
		ParentEmail null.String `db:"parent_email" json:"parent_email"`
		GradeName   null.String `db:"grade_name" json:"grade_name"`
		SectionName null.String `db:"section_name" json:"section_name"`
	}

	InvoiceLineView struct {
		InvoiceLine
		ConceptName string `db:"concept_name" json:"concept_name"`
	}

	PendingRow struct {
		StudentID   int64       `db:"student_id" json:"student_id"`
		StudentName string      `db:"student_name" json:"student_name"`
		GradeName   null.String `db:"grade_name" json:"grade_name"`
		LevelName   null.String `db:"level_name" json:"level_name"`
		ParentName  null.String `db:"parent_name" json:"parent_name"`
	}

	// AmountMismatch is reported when an invoice is confirmed as paid
	// but its recorded payments do not add up to its total.
	AmountMismatch struct {
		InvoiceID int64      `json:"invoice_id"`
		Total     core.Money `json:"total"`
		Paid      core.Money `json:"paid"`
	}

	ConfirmResult struct {
		Invoice        Invoice         `json:"invoice"`
		Payment        Payment         `json:"payment"`
		Duplicate      bool            `json:"duplicate"`
		AmountMismatch *AmountMismatch `json:"amount_mismatch,omitempty"`
	}
)

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

func (m Method) Valid() bool {
	for _, mt := range Methods {
		if m == mt {
			return true
		}
	}
	return false
}

func (w AmountMismatch) String() string {
	return fmt.Sprintf("invoice %d: paid %s of %s", w.InvoiceID, w.Paid, w.Total)
}

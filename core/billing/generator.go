package billing

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/colegio/core"
)

// FormatInvoiceNumber renders `{PREFIX}-{year}-{seq:06d}`.
func FormatInvoiceNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}

// CreateInvoice issues a pending invoice from concepts.
// The number is drawn from the store sequence and the header and lines are written in one transaction.
func (svc *Service) CreateInvoice(ctx context.Context, ni NewInvoice) (Invoice, error) {
	if err := ni.Validate(svc.validate); err != nil {
		return Invoice{}, err
	}

	issueDate := ni.IssueDate
	if issueDate.IsZero() {
		issueDate = svc.today()
	}
	dueDate := ni.DueDate
	if dueDate.IsZero() {
		dueDate = issueDate.AddDays(svc.conf.Billing.DueDays)
	}

	var inv Invoice
	err := svc.repo.InTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := checkRoster(ctx, repo, ni.StudentID, ni.ParentID); err != nil {
			return err
		}

		lines := make([]InvoiceLine, 0, len(ni.Items))
		subtotal := decimal.Zero
		for _, item := range ni.Items {
			concept, err := repo.GetConcept(ctx, item.ConceptID)
			if err != nil {
				return err
			}
			if !concept.Active {
				return ErrConceptNotFound
			}
			lineTotal := concept.Amount.Mul(decimal.NewFromInt(int64(item.Quantity)))
			subtotal = subtotal.Add(lineTotal)
			lines = append(lines, InvoiceLine{
				ConceptID: concept.ID,
				Quantity:  item.Quantity,
				UnitPrice: concept.Amount,
				Subtotal:  core.NewMoney(lineTotal),
			})
		}

		total := subtotal.Sub(ni.Discount.Decimal)
		if total.IsNegative() {
			return core.NewValidationError(nil, core.FieldError{Field: "discount", Error: errInvalidDiscount})
		}

		seq, err := repo.NextInvoiceSeq(ctx)
		if err != nil {
			return errors.Wrap(err, "drawing invoice sequence")
		}

		inv, err = repo.CreateInvoice(ctx, Invoice{
			ParentID:  ni.ParentID,
			StudentID: ni.StudentID,
			Number:    FormatInvoiceNumber(svc.conf.Billing.InvoicePrefix, issueDate.Year(), seq),
			IssueDate: issueDate,
			DueDate:   dueDate,
			Status:    StatusPending,
			Subtotal:  core.NewMoney(subtotal),
			Discount:  core.NewMoney(ni.Discount.Decimal),
			Total:     core.NewMoney(total),
			Lines:     lines,
		})
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func checkRoster(ctx context.Context, repo Repository, studentID, parentID int64) error {
	ok, err := repo.StudentExists(ctx, studentID)
	if err != nil {
		return errors.Wrap(err, "looking up student")
	}
	if !ok {
		return ErrStudentNotFound
	}

	ok, err = repo.ParentExists(ctx, parentID)
	if err != nil {
		return errors.Wrap(err, "looking up parent")
	}
	if !ok {
		return ErrParentNotFound
	}
	return nil
}

// GenerateEnrollmentInvoice issues an invoice for the level's enrollment concept, quantity 1.
func (svc *Service) GenerateEnrollmentInvoice(ctx context.Context, studentID, parentID, levelID int64) (Invoice, error) {
	ne := NewEnrollmentInvoice{StudentID: studentID, ParentID: parentID, LevelID: levelID}
	if err := ne.Validate(svc.validate); err != nil {
		return Invoice{}, err
	}

	concept, err := svc.repo.FindEnrollmentConcept(ctx, levelID)
	if err != nil {
		if errors.Cause(err) == ErrConceptNotFound {
			return Invoice{}, ErrNoEnrollmentConceptForLevel
		}
		return Invoice{}, errors.Wrap(err, "finding enrollment concept")
	}

	return svc.CreateInvoice(ctx, NewInvoice{
		ParentID:  parentID,
		StudentID: studentID,
		Items:     []NewInvoiceItem{{ConceptID: concept.ID, Quantity: 1}},
	})
}

package billing

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
)

// transitions lists the statuses reachable from each status. Paid and cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue: {StatusPaid, StatusCancelled},
}

// CanTransition reports whether an invoice in status `from` may move to `to`.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, st := range transitions[from] {
		if st == to {
			return true
		}
	}
	return false
}

// RecordPayment appends a payment to the invoice ledger. It never changes the invoice status.
func (svc *Service) RecordPayment(ctx context.Context, np NewPayment) (Payment, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Payment{}, err
	}
	if np.PaidAt.IsZero() {
		np.PaidAt = svc.today()
	}

	if _, err := svc.repo.GetInvoice(ctx, np.InvoiceID); err != nil {
		return Payment{}, err
	}
	return svc.repo.CreatePayment(ctx, Payment{
		InvoiceID: np.InvoiceID,
		PaidAt:    np.PaidAt,
		Amount:    np.Amount,
		Method:    np.Method,
		Reference: np.Reference,
		Notes:     np.Notes,
	})
}

// MarkInvoiceStatus moves the invoice to status following the invoice state machine.
func (svc *Service) MarkInvoiceStatus(ctx context.Context, invoiceID int64, status Status) (Invoice, error) {
	su := StatusUpdate{Status: status}
	if err := su.Validate(svc.validate); err != nil {
		return Invoice{}, err
	}

	var inv Invoice
	err := svc.repo.InTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		if inv, err = repo.GetInvoiceForUpdate(ctx, invoiceID); err != nil {
			return err
		}
		if inv.Status == su.Status {
			return nil
		}
		if !CanTransition(inv.Status, su.Status) {
			return errors.Wrapf(ErrInvalidTransition, "%s -> %s", inv.Status, su.Status)
		}
		if err = repo.UpdateInvoiceStatus(ctx, invoiceID, su.Status); err != nil {
			return err
		}
		inv.Status = su.Status
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// Confirm records an external payment confirmation and marks the invoice paid, atomically.
// A confirmation whose reference was already recorded is a no-op reported with Duplicate set.
// The caller decides the invoice is paid: a payment total that differs from the invoice total
// is reported through AmountMismatch, not rejected.
func (svc *Service) Confirm(ctx context.Context, c Confirmation) (ConfirmResult, error) {
	if err := c.Validate(svc.validate); err != nil {
		return ConfirmResult{}, err
	}
	if c.PaidAt.IsZero() {
		c.PaidAt = svc.today()
	}

	var res ConfirmResult
	err := svc.repo.InTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.GetInvoiceForUpdate(ctx, c.InvoiceID)
		if err != nil {
			return err
		}

		existing, err := repo.GetPaymentByReference(ctx, c.Reference)
		switch {
		case err == nil:
			if existing.InvoiceID != inv.ID {
				return errors.Wrapf(ErrDuplicateReference, "reference %q", c.Reference)
			}
			res = ConfirmResult{Invoice: inv, Payment: existing, Duplicate: true}
			return nil
		case errors.Cause(err) != ErrPaymentNotFound:
			return errors.Wrap(err, "looking up payment reference")
		}

		if inv.Status == StatusPaid {
			return ErrAlreadyPaid
		}
		if !CanTransition(inv.Status, StatusPaid) {
			return errors.Wrapf(ErrInvalidTransition, "%s -> %s", inv.Status, StatusPaid)
		}

		notes := null.NewString(c.Notes, c.Notes != "")
		pmt, err := repo.CreatePayment(ctx, Payment{
			InvoiceID: inv.ID,
			PaidAt:    c.PaidAt,
			Amount:    c.Amount,
			Method:    c.Method,
			Reference: null.StringFrom(c.Reference),
			Notes:     notes,
		})
		if err != nil {
			return err
		}
		if err = repo.UpdateInvoiceStatus(ctx, inv.ID, StatusPaid); err != nil {
			return err
		}
		inv.Status = StatusPaid

		payments, err := repo.QueryPayments(ctx, inv.ID)
		if err != nil {
			return errors.Wrap(err, "querying payments")
		}
		paid := decimal.Zero
		for _, p := range payments {
			paid = paid.Add(p.Amount.Decimal)
		}

		res = ConfirmResult{Invoice: inv, Payment: pmt}
		if !paid.Equal(inv.Total.Decimal) {
			res.AmountMismatch = &AmountMismatch{InvoiceID: inv.ID, Total: inv.Total, Paid: core.NewMoney(paid)}
		}
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	if res.AmountMismatch != nil {
		svc.logger.Warn(fmt.Sprintf("amount mismatch on confirmation: %s", res.AmountMismatch), res.Invoice)
	}
	return res, nil
}

// GetPayments returns the invoice payments, most recent first.
func (svc *Service) GetPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := svc.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return svc.repo.QueryPayments(ctx, invoiceID)
}

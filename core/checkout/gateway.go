package checkout

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
)

// CreatePreference opens a gateway checkout for the invoice total.
// The access token falls back to the configured one.
func (svc *Service) CreatePreference(ctx context.Context, pr PreferenceRequest) (PreferenceResult, error) {
	if err := svc.validate.Struct(pr); err != nil {
		return PreferenceResult{}, err
	}
	token := svc.accessToken(pr.AccessToken)
	if token == "" {
		return PreferenceResult{}, core.NewValidationError(nil, core.FieldError{Field: "access_token", Error: errAccessTokenRequired})
	}

	inv, err := svc.billing.Get(ctx, pr.InvoiceID)
	if err != nil {
		return PreferenceResult{}, err
	}
	if err = payable(inv.Invoice); err != nil {
		return PreferenceResult{}, err
	}

	pref := Preference{
		ExternalReference: strconv.FormatInt(inv.ID, 10),
		Items: []PreferenceItem{{
			Title:      fmt.Sprintf("Factura %s - %s", inv.Number, inv.StudentName),
			Quantity:   1,
			UnitPrice:  inv.Total,
			CurrencyID: svc.conf.Billing.Currency,
		}},
		PayerEmail:      inv.ParentEmail.String,
		SuccessURL:      svc.conf.Gateway.SuccessURL,
		FailureURL:      svc.conf.Gateway.FailureURL,
		NotificationURL: svc.conf.Gateway.WebhookURL,
	}
	res, err := svc.gateway.CreatePreference(ctx, token, pref)
	if err != nil {
		return PreferenceResult{}, errors.Wrap(err, "creating gateway preference")
	}
	return res, nil
}

// HandleGatewayNotification fetches the notified payment and confirms its invoice when approved.
func (svc *Service) HandleGatewayNotification(ctx context.Context, paymentID string) (CallbackResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return CallbackResult{}, core.NewValidationError(nil, core.FieldError{Field: "id", Error: "payment id is required"})
	}
	token := svc.accessToken("")
	if token == "" {
		return CallbackResult{}, core.NewValidationError(nil, core.FieldError{Field: "access_token", Error: errAccessTokenRequired})
	}

	gp, err := svc.gateway.GetPayment(ctx, token, paymentID)
	if err != nil {
		return CallbackResult{}, errors.Wrap(err, "fetching gateway payment")
	}
	if gp.Status != StatusApproved {
		svc.logger.Info(fmt.Sprintf("gateway payment %s is %q: nothing to confirm", paymentID, gp.Status))
		return CallbackResult{Status: gp.Status}, nil
	}

	invoiceID, err := strconv.ParseInt(strings.TrimSpace(gp.ExternalReference), 10, 64)
	if err != nil {
		return CallbackResult{}, core.NewValidationError(err, core.FieldError{
			Field: "external_reference",
			Error: fmt.Sprintf("gateway payment %s has no invoice reference", paymentID),
		})
	}

	confirmation := billing.Confirmation{
		InvoiceID: invoiceID,
		Amount:    gp.Amount,
		Method:    billing.MethodGateway,
		Reference: "gw-" + paymentID,
		Notes:     svc.conf.Gateway.Name,
	}
	if !gp.ApprovedAt.IsZero() {
		confirmation.PaidAt = core.DateOf(gp.ApprovedAt)
	}

	res, err := svc.billing.Confirm(ctx, confirmation)
	if err != nil {
		return CallbackResult{}, err
	}
	if !res.Duplicate {
		svc.sendReceipt(ctx, res)
	}
	return CallbackResult{Status: StatusApproved, ConfirmResult: &res}, nil
}

func (svc *Service) accessToken(token string) string {
	if token = strings.TrimSpace(token); token != "" {
		return token
	}
	return svc.conf.Gateway.AccessToken
}

// Package checkout drives the two payment confirmation paths, the demo card flow and the
// external gateway, into billing's single Confirm funnel.
package checkout

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/card"
)

const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

var errAccessTokenRequired = "a gateway access token is required"

type (
	// Gateway is the external payment processor.
	Gateway interface {
		CreatePreference(ctx context.Context, accessToken string, pref Preference) (PreferenceResult, error)
		GetPayment(ctx context.Context, accessToken, paymentID string) (GatewayPayment, error)
	}

	PreferenceItem struct {
		Title      string     `json:"title"`
		Quantity   int        `json:"quantity"`
		UnitPrice  core.Money `json:"unit_price"`
		CurrencyID string     `json:"currency_id"`
	}

	// Preference is the gateway checkout session for one invoice.
	Preference struct {
		ExternalReference string           `json:"external_reference"`
		Items             []PreferenceItem `json:"items"`
		PayerEmail        string           `json:"payer_email,omitempty"`
		SuccessURL        string           `json:"success_url"`
		FailureURL        string           `json:"failure_url"`
		NotificationURL   string           `json:"notification_url,omitempty"`
	}

	PreferenceResult struct {
		PreferenceID string `json:"preference_id"`
		RedirectURL  string `json:"redirect_url"`
	}

	GatewayPayment struct {
		ID                string
		Status            string
		ExternalReference string
		Amount            core.Money
		ApprovedAt        time.Time
	}

	DemoCheckout struct {
		InvoiceID int64      `json:"invoice_id" validate:"required"`
		Card      *card.Card `json:"card"`
	}

	DemoSession struct {
		RedirectURL string `json:"redirect_url"`
		Token       string `json:"token"`
	}

	DemoCallback struct {
		InvoiceID int64  `json:"invoice_id" validate:"required"`
		Status    string `json:"status" validate:"required"`
		Token     string `json:"token"`
	}

	PreferenceRequest struct {
		InvoiceID   int64  `json:"invoice_id" validate:"required"`
		AccessToken string `json:"access_token"`
	}

	// CallbackResult carries the confirmation when the payment was approved.
	CallbackResult struct {
		Status string `json:"status"`
		*billing.ConfirmResult
	}

	ServiceInterface interface {
		StartDemo(ctx context.Context, dc DemoCheckout) (DemoSession, error)
		DemoCallback(ctx context.Context, cb DemoCallback) (CallbackResult, error)
		CreatePreference(ctx context.Context, pr PreferenceRequest) (PreferenceResult, error)
		HandleGatewayNotification(ctx context.Context, paymentID string) (CallbackResult, error)
	}

	Service struct {
		billing  billing.ServiceInterface
		gateway  Gateway
		mailSvc  core.EmailService
		validate *validator.Validate
		logger   core.Logger
		conf     *core.Config
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	billingSvc billing.ServiceInterface,
	gateway Gateway,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(billingSvc, "billingSvc"),
		vala.IsNotNil(gateway, "gateway"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
		vala.StringNotEmpty(conf.SecretKey, "conf.SecretKey"),
	).CheckAndPanic()

	return &Service{
		billing:  billingSvc,
		gateway:  gateway,
		mailSvc:  mailSvc,
		validate: validate,
		logger:   logger,
		conf:     conf,
	}
}

// payable fails unless the invoice can still be paid.
func payable(inv billing.Invoice) error {
	switch inv.Status {
	case billing.StatusPending, billing.StatusOverdue:
		return nil
	case billing.StatusPaid:
		return billing.ErrAlreadyPaid
	default:
		return billing.ErrInvalidTransition
	}
}

package checkout

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
)

const receiptTemplate = "payment_receipt"

type receiptData struct {
	ParentName  string
	StudentName string
	Number      string
	Currency    string
	Amount      string
	PaidAt      string
	Method      string
	Reference   string
}

// sendReceipt emails the parent on file. Failures are logged: the payment is already recorded.
func (svc *Service) sendReceipt(ctx context.Context, res billing.ConfirmResult) {
	inv, err := svc.billing.Get(ctx, res.Invoice.ID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("loading invoice %d for receipt: %v", res.Invoice.ID, err), err)
		return
	}
	if !inv.ParentEmail.Valid || inv.ParentEmail.String == "" {
		return
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: inv.ParentName.String, Address: inv.ParentEmail.String}},
		Subject:      "Comprobante de pago " + inv.Number,
		TemplateName: receiptTemplate,
		TemplateData: receiptData{
			ParentName:  inv.ParentName.String,
			StudentName: inv.StudentName,
			Number:      inv.Number,
			Currency:    svc.conf.Billing.Currency,
			Amount:      res.Payment.Amount.String(),
			PaidAt:      res.Payment.PaidAt.String(),
			Method:      string(res.Payment.Method),
			Reference:   res.Payment.Reference.String,
		},
	})
}

package checkout

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/card"
)

const demoAudience = "demo-checkout"

var errInvalidDemoToken = "invalid or expired checkout token"

// demoClaims identify one demo checkout attempt. Id (jti) is the transaction id.
type demoClaims struct {
	jwt.StandardClaims
	InvoiceID int64  `json:"invoice_id"`
	Amount    string `json:"amount"`
}

// StartDemo validates the card, when given, before anything else and opens a demo checkout for a payable invoice.
func (svc *Service) StartDemo(ctx context.Context, dc DemoCheckout) (DemoSession, error) {
	if err := svc.validate.Struct(dc); err != nil {
		return DemoSession{}, err
	}
	if dc.Card != nil {
		if res := card.Validate(*dc.Card); !res.Valid {
			return DemoSession{}, core.NewValidationError(nil, core.FieldError{Field: "card." + res.Field, Error: res.Message})
		}
	}

	inv, err := svc.billing.Get(ctx, dc.InvoiceID)
	if err != nil {
		return DemoSession{}, err
	}
	if err = payable(inv.Invoice); err != nil {
		return DemoSession{}, err
	}

	token, err := svc.newDemoToken(inv.Invoice)
	if err != nil {
		return DemoSession{}, errors.Wrap(err, "generating demo token")
	}

	redirect, err := url.Parse(svc.conf.Demo.CheckoutURL)
	if err != nil {
		return DemoSession{}, errors.Wrap(err, "parsing demo checkout URL")
	}
	q := redirect.Query()
	q.Set("invoice_id", strconv.FormatInt(inv.ID, 10))
	q.Set("token", token)
	redirect.RawQuery = q.Encode()

	return DemoSession{RedirectURL: redirect.String(), Token: token}, nil
}

// DemoCallback confirms an approved demo payment. Any other status is reported as rejected without writes.
// Without a token the invoice id is the idempotency key, so repeated approvals are recorded once.
func (svc *Service) DemoCallback(ctx context.Context, cb DemoCallback) (CallbackResult, error) {
	if err := svc.validate.Struct(cb); err != nil {
		return CallbackResult{}, err
	}

	var claims *demoClaims
	if cb.Token != "" {
		var err error
		if claims, err = svc.parseDemoToken(cb.Token); err != nil {
			return CallbackResult{}, core.NewValidationError(err, core.FieldError{Field: "token", Error: errInvalidDemoToken})
		}
		if claims.InvoiceID != cb.InvoiceID {
			return CallbackResult{}, core.NewValidationError(nil, core.FieldError{Field: "token", Error: "token does not match the invoice"})
		}
	}

	if !strings.EqualFold(strings.TrimSpace(cb.Status), StatusApproved) {
		return CallbackResult{Status: StatusRejected}, nil
	}

	var confirmation billing.Confirmation
	if claims != nil {
		amount, err := decimal.NewFromString(claims.Amount)
		if err != nil {
			return CallbackResult{}, core.NewValidationError(err, core.FieldError{Field: "token", Error: errInvalidDemoToken})
		}
		confirmation = billing.Confirmation{
			InvoiceID: cb.InvoiceID,
			Amount:    core.NewMoney(amount),
			Reference: "demo-" + claims.Id,
		}
	} else {
		inv, err := svc.billing.Get(ctx, cb.InvoiceID)
		if err != nil {
			return CallbackResult{}, err
		}
		confirmation = billing.Confirmation{
			InvoiceID: cb.InvoiceID,
			Amount:    inv.Total,
			Reference: "demo-" + strconv.FormatInt(cb.InvoiceID, 10),
		}
	}
	confirmation.Method = billing.MethodCard
	confirmation.Notes = "demo checkout"

	res, err := svc.billing.Confirm(ctx, confirmation)
	if err != nil {
		return CallbackResult{}, err
	}
	if !res.Duplicate {
		svc.sendReceipt(ctx, res)
	}
	return CallbackResult{Status: StatusApproved, ConfirmResult: &res}, nil
}

func (svc *Service) newDemoToken(inv billing.Invoice) (string, error) {
	now := time.Now()
	claims := demoClaims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Issuer:    svc.conf.AppName,
			Subject:   strconv.FormatInt(inv.ID, 10),
			Audience:  demoAudience,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(svc.conf.Demo.TokenTTL).Unix(),
		},
		InvoiceID: inv.ID,
		Amount:    inv.Total.String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(svc.conf.SecretKey))
}

func (svc *Service) parseDemoToken(tokenStr string) (*demoClaims, error) {
	claims := new(demoClaims)
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(svc.conf.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !claims.VerifyAudience(demoAudience, true) || claims.Id == "" {
		return nil, errors.New("not a demo checkout token")
	}
	return claims, nil
}

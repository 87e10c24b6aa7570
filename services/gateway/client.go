package gatewaysvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/shopspring/decimal"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/checkout"
)

const (
	preferencesEndpoint = "/checkout/preferences"
	paymentsEndpoint    = "/v1/payments/"
)

type (
	itemBody struct {
		Title      string  `json:"title"`
		Quantity   int     `json:"quantity"`
		UnitPrice  float64 `json:"unit_price"`
		CurrencyID string  `json:"currency_id,omitempty"`
	}

	payerBody struct {
		Email string `json:"email"`
	}

	backURLsBody struct {
		Success string `json:"success"`
		Failure string `json:"failure"`
		Pending string `json:"pending"`
	}

	preferenceBody struct {
		Items             []itemBody   `json:"items"`
		ExternalReference string       `json:"external_reference"`
		Payer             *payerBody   `json:"payer,omitempty"`
		BackURLs          backURLsBody `json:"back_urls"`
		AutoReturn        string       `json:"auto_return,omitempty"`
		NotificationURL   string       `json:"notification_url,omitempty"`
	}

	preferenceResponse struct {
		ID               string `json:"id"`
		InitPoint        string `json:"init_point"`
		SandboxInitPoint string `json:"sandbox_init_point"`
	}

	paymentResponse struct {
		ID                json.Number     `json:"id"`
		Status            string          `json:"status"`
		ExternalReference string          `json:"external_reference"`
		TransactionAmount decimal.Decimal `json:"transaction_amount"`
		DateApproved      *time.Time      `json:"date_approved"`
	}

	errorResponse struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
)

// Client talks to a Mercado Pago style checkout API.
type Client struct {
	name    string
	baseURL string
	sandbox bool
	http    *rest.Client
}

var _ checkout.Gateway = (*Client)(nil)

func NewClient(conf *core.Config) *Client {
	return &Client{
		name:    conf.Gateway.Name,
		baseURL: strings.TrimRight(conf.Gateway.BaseURL, "/"),
		sandbox: conf.Debug,
		http:    &rest.Client{HTTPClient: &http.Client{Timeout: conf.Gateway.Timeout}},
	}
}

func (c *Client) request(method rest.Method, endpoint, accessToken string, body []byte) rest.Request {
	req := rest.Request{
		Method:  method,
		BaseURL: c.baseURL + endpoint,
		Headers: map[string]string{
			"Authorization": "Bearer " + accessToken,
			"Accept":        "application/json",
		},
	}
	if body != nil {
		req.Headers["Content-Type"] = "application/json"
		req.Body = body
	}
	return req
}

func (c *Client) send(ctx context.Context, req rest.Request, dest interface{}) error {
	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return errors.Wrap(err, "building gateway request")
	}
	httpRes, err := c.http.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return core.NewExternalServiceError(c.name, 0, "", err)
	}
	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return core.NewExternalServiceError(c.name, httpRes.StatusCode, "unreadable response", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return c.upstreamError(res)
	}
	if err = json.Unmarshal([]byte(res.Body), dest); err != nil {
		return core.NewExternalServiceError(c.name, res.StatusCode, "unreadable response", err)
	}
	return nil
}

func (c *Client) upstreamError(res *rest.Response) error {
	var body errorResponse
	_ = json.Unmarshal([]byte(res.Body), &body)

	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(res.StatusCode)
	}
	return core.NewExternalServiceError(c.name, res.StatusCode, msg, nil)
}

func (c *Client) CreatePreference(ctx context.Context, accessToken string, pref checkout.Preference) (checkout.PreferenceResult, error) {
	body := preferenceBody{
		ExternalReference: pref.ExternalReference,
		BackURLs: backURLsBody{
			Success: pref.SuccessURL,
			Failure: pref.FailureURL,
			Pending: pref.FailureURL,
		},
		AutoReturn:      "approved",
		NotificationURL: pref.NotificationURL,
	}
	for _, item := range pref.Items {
		price, _ := item.UnitPrice.Float64()
		body.Items = append(body.Items, itemBody{
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  price,
			CurrencyID: item.CurrencyID,
		})
	}
	if pref.PayerEmail != "" {
		body.Payer = &payerBody{Email: pref.PayerEmail}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return checkout.PreferenceResult{}, errors.Wrap(err, "encoding preference")
	}

	var res preferenceResponse
	if err = c.send(ctx, c.request(rest.Post, preferencesEndpoint, accessToken, data), &res); err != nil {
		return checkout.PreferenceResult{}, err
	}

	redirect := res.InitPoint
	if c.sandbox && res.SandboxInitPoint != "" {
		redirect = res.SandboxInitPoint
	}
	return checkout.PreferenceResult{PreferenceID: res.ID, RedirectURL: redirect}, nil
}

func (c *Client) GetPayment(ctx context.Context, accessToken, paymentID string) (checkout.GatewayPayment, error) {
	var res paymentResponse
	req := c.request(rest.Get, paymentsEndpoint+url.PathEscape(paymentID), accessToken, nil)
	if err := c.send(ctx, req, &res); err != nil {
		return checkout.GatewayPayment{}, err
	}

	gp := checkout.GatewayPayment{
		ID:                res.ID.String(),
		Status:            res.Status,
		ExternalReference: res.ExternalReference,
		Amount:            core.NewMoney(res.TransactionAmount),
	}
	if res.DateApproved != nil {
		gp.ApprovedAt = *res.DateApproved
	}
	return gp, nil
}

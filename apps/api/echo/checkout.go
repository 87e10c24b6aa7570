package echoapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core/card"
	"github.com/trezcool/colegio/core/checkout"
)

const paymentTopic = "payment"

type (
	checkoutApi struct {
		svc checkout.ServiceInterface
	}

	// GatewayNotification is the webhook body sent by the gateway.
	// Older notifications only carry the `topic` and `id` query params.
	GatewayNotification struct {
		Type string `json:"type"`
		Data struct {
			ID json.Number `json:"id"`
		} `json:"data"`
	}
)

func registerCheckoutAPI(g *echo.Group, svc checkout.ServiceInterface) {
	api := checkoutApi{svc: svc}

	dg := g.Group("/payments/demo")
	dg.POST("/validate-card", api.validateCard)
	dg.POST("/checkout", api.startDemo)
	dg.POST("/callback", api.demoCallback)

	gg := g.Group("/payments/gateway")
	gg.POST("/preference", api.createPreference)
	gg.POST("/webhook", api.webhook)
}

// Handlers

func (api *checkoutApi) validateCard(ctx echo.Context) error {
	var data card.Card
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Card")
	}
	return ctx.JSON(http.StatusOK, card.Validate(data))
}

func (api *checkoutApi) startDemo(ctx echo.Context) error {
	var data checkout.DemoCheckout
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DemoCheckout")
	}

	session, err := api.svc.StartDemo(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "starting demo checkout")
	}
	return ctx.JSON(http.StatusOK, session)
}

func (api *checkoutApi) demoCallback(ctx echo.Context) error {
	var data checkout.DemoCallback
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DemoCallback")
	}

	res, err := api.svc.DemoCallback(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "confirming demo payment")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *checkoutApi) createPreference(ctx echo.Context) error {
	var data checkout.PreferenceRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PreferenceRequest")
	}

	res, err := api.svc.CreatePreference(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating preference")
	}
	return ctx.JSON(http.StatusOK, res)
}

// webhook acknowledges every notification; only payment ones are processed.
func (api *checkoutApi) webhook(ctx echo.Context) error {
	topic := strings.TrimSpace(ctx.QueryParam("topic"))
	paymentID := strings.TrimSpace(ctx.QueryParam("id"))

	if paymentID == "" {
		var data GatewayNotification
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to GatewayNotification")
		}
		topic = data.Type
		paymentID = data.Data.ID.String()
	}
	if topic != paymentTopic || paymentID == "" {
		return ctx.JSON(http.StatusOK, checkout.CallbackResult{Status: "ignored"})
	}

	res, err := api.svc.HandleGatewayNotification(ctx.Request().Context(), paymentID)
	if err != nil {
		return errors.Wrap(err, "handling gateway notification")
	}
	return ctx.JSON(http.StatusOK, res)
}

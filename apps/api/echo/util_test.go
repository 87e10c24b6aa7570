package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/checkout"
	emailsvc "github.com/trezcool/colegio/services/email"
	inmemdb "github.com/trezcool/colegio/storage/database/inmem"
	"github.com/trezcool/colegio/tests"
)

type testApp struct {
	server  *Server
	repo    billing.Repository
	roster  testutil.Roster
	gateway *fakeGateway
	logger  *testutil.Logger
}

func setup(t *testing.T) testApp {
	// set up DB & repos
	db := inmemdb.NewDB()
	roster := testutil.Seed(db)
	repo := inmemdb.NewBillingRepository(db)

	// set up services
	conf := testutil.NewConfig()
	conf.Gateway.AccessToken = "conf-token"
	validate, translator := testutil.NewValidator()
	logger := new(testutil.Logger)
	gw := &fakeGateway{payments: make(map[string]checkout.GatewayPayment)}
	billingSvc := billing.NewService(repo, validate, logger, conf)
	checkoutSvc := checkout.NewService(billingSvc, gw, emailsvc.NewConsoleServiceMock(conf), validate, logger, conf)

	// set up server
	server := NewServer(
		ServerDeps{
			Conf:        conf,
			Logger:      logger,
			BillingSvc:  billingSvc,
			CheckoutSvc: checkoutSvc,
			Validate:    validate,
			Translator:  translator,
		},
	)
	return testApp{server: server, repo: repo, roster: roster, gateway: gw, logger: logger}
}

func (app testApp) invoice(t *testing.T, status billing.Status, total string) billing.Invoice {
	return testutil.CreateInvoice(t, app.repo, billing.Invoice{
		ParentID:  app.roster.Garcia.ID,
		StudentID: app.roster.Ana.ID,
		IssueDate: core.MustDate("2024-01-10"),
		Status:    status,
		Subtotal:  core.MustMoney(total),
		Total:     core.MustMoney(total),
	})
}

type fakeGateway struct {
	payments map[string]checkout.GatewayPayment
	err      error
}

func (gw *fakeGateway) CreatePreference(_ context.Context, _ string, pref checkout.Preference) (checkout.PreferenceResult, error) {
	if gw.err != nil {
		return checkout.PreferenceResult{}, gw.err
	}
	return checkout.PreferenceResult{PreferenceID: "pref-" + pref.ExternalReference, RedirectURL: "https://gw.test/pay"}, nil
}

func (gw *fakeGateway) GetPayment(_ context.Context, _, paymentID string) (checkout.GatewayPayment, error) {
	if gw.err != nil {
		return checkout.GatewayPayment{}, gw.err
	}
	return gw.payments[paymentID], nil
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
	extra    interface{}
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

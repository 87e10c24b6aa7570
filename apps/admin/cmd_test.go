package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/checkout"
	emailsvc "github.com/trezcool/colegio/services/email"
	inmemdb "github.com/trezcool/colegio/storage/database/inmem"
	"github.com/trezcool/colegio/tests"
)

type fakeGateway struct {
	token string
}

func (gw *fakeGateway) CreatePreference(_ context.Context, accessToken string, pref checkout.Preference) (checkout.PreferenceResult, error) {
	gw.token = accessToken
	return checkout.PreferenceResult{PreferenceID: "pref-" + pref.ExternalReference, RedirectURL: "https://gw.test/pay"}, nil
}

func (gw *fakeGateway) GetPayment(context.Context, string, string) (checkout.GatewayPayment, error) {
	return checkout.GatewayPayment{}, nil
}

type testCLI struct {
	*commandLine
	out     *bytes.Buffer
	repo    billing.Repository
	roster  testutil.Roster
	gateway *fakeGateway
}

func setup(t *testing.T) testCLI {
	// set up DB & repos
	db := inmemdb.NewDB()
	roster := testutil.Seed(db)
	repo := inmemdb.NewBillingRepository(db)

	// set up services
	conf := testutil.NewConfig()
	conf.Gateway.AccessToken = "conf-token"
	validate, _ := testutil.NewValidator()
	logger := new(testutil.Logger)
	gw := new(fakeGateway)
	billingSvc := billing.NewService(repo, validate, logger, conf)
	checkoutSvc := checkout.NewService(billingSvc, gw, emailsvc.NewConsoleServiceMock(conf), validate, logger, conf)

	// start CLI
	out := new(bytes.Buffer)
	return testCLI{
		commandLine: &commandLine{
			billingSvc:  billingSvc,
			checkoutSvc: checkoutSvc,
			out:         out,
		},
		out:     out,
		repo:    repo,
		roster:  roster,
		gateway: gw,
	}
}

func (cli testCLI) invoice(t *testing.T, status billing.Status) billing.Invoice {
	return testutil.CreateInvoice(t, cli.repo, billing.Invoice{
		ParentID:  cli.roster.Garcia.ID,
		StudentID: cli.roster.Ana.ID,
		IssueDate: core.MustDate("2024-01-10"),
		Status:    status,
		Subtotal:  core.MustMoney("100"),
		Total:     core.MustMoney("100"),
	})
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli testCLI, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if errors.Cause(err) != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_pending(t *testing.T) {
	cli := setup(t)
	r := cli.roster
	cli.invoice(t, billing.StatusPaid) // Ana, 2024-01

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"pending"}, wantErr: errHelp},
		{name: "no month", args: []string{"pending", "-year", "2024"}, wantErr: errHelp},
	})

	t.Run("piped", func(t *testing.T) {
		isTerminalFunc = func() bool { return false }
		cli.out.Reset()

		require.NoError(t, cli.run([]string{"admin", "pending", "-year", "2024", "-month", "1"}))
		lines := strings.Split(strings.TrimSpace(cli.out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, fmt.Sprintf("%d\tBruno López\tPrimaria\t1er grado\tJuan López", r.Bruno.ID), lines[0])
		assert.Equal(t, fmt.Sprintf("%d\tCarla Pérez\tPrimaria\t1er grado\tLaura Pérez", r.Carla.ID), lines[1])
		assert.Equal(t, fmt.Sprintf("%d\tDiego García\tSecundaria\t1er año\tMaría García", r.Diego.ID), lines[2])
	})

	t.Run("terminal", func(t *testing.T) {
		isTerminalFunc = func() bool { return true }
		cli.out.Reset()

		args := []string{"admin", "pending", "-year", "2024", "-month", "1", "-level", strconv.FormatInt(r.Secondary.ID, 10)}
		require.NoError(t, cli.run(args))
		out := cli.out.String()
		assert.True(t, strings.HasPrefix(out, "ID"))
		assert.Contains(t, out, "Diego García")
		assert.NotContains(t, out, "Bruno López")
		assert.Contains(t, out, "1 pending for 2024-01")
	})

	t.Run("invalid month", func(t *testing.T) {
		err := cli.run([]string{"admin", "pending", "-year", "2024", "-month", "13"})
		assert.Error(t, err)
	})
}

func Test_commandLine_setStatus(t *testing.T) {
	cli := setup(t)
	pending := cli.invoice(t, billing.StatusPending)
	paid := cli.invoice(t, billing.StatusPaid)

	id := func(inv billing.Invoice) string { return strconv.FormatInt(inv.ID, 10) }

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"setstatus"}, wantErr: errHelp},
		{name: "no status", args: []string{"setstatus", "-invoice", id(pending)}, wantErr: errHelp},
		{name: "invoice not found", args: []string{"setstatus", "-invoice", "999", "-status", "paid"}, wantErr: billing.ErrInvoiceNotFound},
		{name: "paid is terminal", args: []string{"setstatus", "-invoice", id(paid), "-status", "pending"}, wantErr: billing.ErrInvalidTransition},
		{name: "to overdue", args: []string{"setstatus", "-invoice", id(pending), "-status", "Overdue"}},
	})

	stored, err := cli.repo.GetInvoice(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusOverdue, stored.Status)
	assert.Contains(t, cli.out.String(), pending.Number+": overdue")
}

func Test_commandLine_pay(t *testing.T) {
	cli := setup(t)
	inv := cli.invoice(t, billing.StatusPending)
	id := strconv.FormatInt(inv.ID, 10)

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"pay"}, wantErr: errHelp},
		{name: "no method", args: []string{"pay", "-invoice", id, "-amount", "10"}, wantErr: errHelp},
		{name: "bad amount", args: []string{"pay", "-invoice", id, "-amount", "ten", "-method", "cash"}, wantErrStr: `invalid amount "ten"`},
		{name: "bad date", args: []string{"pay", "-invoice", id, "-amount", "10", "-method", "cash", "-date", "10/01/2024"}, wantErrStr: `invalid date "10/01/2024", want YYYY-MM-DD`},
		{name: "invoice not found", args: []string{"pay", "-invoice", "999", "-amount", "10", "-method", "cash"}, wantErr: billing.ErrInvoiceNotFound},
		{name: "record", args: []string{"pay", "-invoice", id, "-amount", "40", "-method", "cash", "-reference", "rc-9", "-date", "2024-01-15"}},
		{name: "duplicate reference", args: []string{"pay", "-invoice", id, "-amount", "40", "-method", "cash", "-reference", "rc-9"}, wantErr: billing.ErrDuplicateReference},
	})

	payments, err := cli.billingSvc.GetPayments(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "40.00", payments[0].Amount.String())
	assert.Equal(t, "2024-01-15", payments[0].PaidAt.String())

	stored, err := cli.repo.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPending, stored.Status)
}

func Test_commandLine_preference(t *testing.T) {
	cli := setup(t)
	inv := cli.invoice(t, billing.StatusPending)
	id := strconv.FormatInt(inv.ID, 10)

	type extra struct {
		token string
	}
	tests := []struct {
		cliTest
		wantToken string
	}{
		{cliTest: cliTest{name: "no args", args: []string{"preference"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "invoice not found", args: []string{"preference", "-invoice", "999"}, wantErr: billing.ErrInvoiceNotFound}},
		{cliTest: cliTest{name: "configured token", args: []string{"preference", "-invoice", id}}, wantToken: "conf-token"},
		{cliTest: cliTest{name: "prompted token", args: []string{"preference", "-invoice", id}, extra: extra{token: "prompted"}}, wantToken: "prompted"},
	}
	for _, tt := range tests {
		tt := tt
		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.token), nil
			}
			return nil, nil
		}
		runCLITests(t, cli, []cliTest{tt.cliTest})
		if tt.wantToken != "" {
			assert.Equal(t, tt.wantToken, cli.gateway.token)
			assert.Contains(t, cli.out.String(), "pref-"+id)
		}
	}
}

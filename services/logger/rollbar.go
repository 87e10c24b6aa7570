package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, billing.Invoice | billing.InvoiceView | billing.Payment | *billing.AmountMismatch
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	extras := make(map[string]interface{})
	newArgs := make([]interface{}, 0, len(args)+2)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch v := arg.(type) {
		case billing.Invoice:
			addInvoice(extras, v)
		case billing.InvoiceView:
			addInvoice(extras, v.Invoice)
			extras["student_name"] = v.StudentName
		case billing.Payment:
			extras["payment_id"] = v.ID
			extras["payment_method"] = string(v.Method)
			extras["payment_amount"] = v.Amount.String()
			if v.Reference.Valid {
				extras["payment_reference"] = v.Reference.String
			}
		case *billing.AmountMismatch:
			if v != nil {
				extras["mismatch_total"] = v.Total.String()
				extras["mismatch_paid"] = v.Paid.String()
			}
		case map[string]interface{}:
			for k, val := range v {
				extras[k] = val
			}
		default:
			newArgs = append(newArgs, arg)
		}
	}
	if len(extras) > 0 {
		newArgs = append(newArgs, extras)
	}
	return newArgs
}

func addInvoice(extras map[string]interface{}, inv billing.Invoice) {
	extras["invoice_id"] = inv.ID
	extras["invoice_number"] = inv.Number
	extras["invoice_status"] = string(inv.Status)
	extras["invoice_total"] = inv.Total.String()
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print(msg, args)
	l.std.Fatal(msg)
}

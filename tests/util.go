package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/storage/database"
	inmemdb "github.com/trezcool/colegio/storage/database/inmem"
)

// NewConfig returns the configuration used by tests. It does not read the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:             "TEST",
		Build:           "test",
		TestMode:        true,
		AppName:         "Colegio",
		SecretKey:       "test-secret",
		WorkDir:         core.Getwd(),
		FrontendBaseURL: "http://localhost:3000",
		Server: core.ServerConfig{
			Host:            ":0",
			ShutdownTimeout: time.Second,
			DisableReqLogs:  true,
		},
		Database: core.DatabaseConfig{
			Engine:     "postgres",
			Host:       "localhost",
			Port:       "5432",
			Name:       "colegio_test",
			User:       "colegio",
			Password:   "colegio",
			DisableTLS: true,
		},
		Billing: core.BillingConfig{InvoicePrefix: "FAC", DueDays: 10, Currency: "ARS"},
		Demo:    core.DemoConfig{CheckoutURL: "http://localhost:3000/pagos/demo", TokenTTL: 30 * time.Minute},
		Gateway: core.GatewayConfig{
			Name:       "testgw",
			BaseURL:    "http://gateway.test",
			WebhookURL: "http://localhost:8000/api/payments/gateway/webhook",
			SuccessURL: "http://localhost:3000/pagos/exito",
			FailureURL: "http://localhost:3000/pagos/error",
			Timeout:    time.Second,
		},
	}
}

// NewValidator returns a validator with the core and billing validations registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	billing.InitValidators(validate, translator)
	return validate, translator
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log entries instead of printing them.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { panic(fmt.Sprintf("fatal: %s", msg)) }

func (l *Logger) Level(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var entries []LogEntry
	for _, e := range l.Entries {
		if e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}

// Roster is a small school: two levels, one grade each, a few families.
type Roster struct {
	Primary, Secondary   inmemdb.Level
	FirstGrade, Year1    inmemdb.Grade
	SectionA             inmemdb.Section
	Garcia, Lopez, Perez inmemdb.Parent

	Ana, Bruno, Carla, Diego inmemdb.Student

	Enrollment, PrimaryEnrollment, MonthlyFee, Material billing.Concept
	Inactive                                            billing.Concept
}

// Seed fills db with a Roster. Ana, Bruno and Carla are in primary, Diego in secondary.
func Seed(db *inmemdb.DB) Roster {
	var r Roster
	r.Primary = db.AddLevel("Primaria")
	r.Secondary = db.AddLevel("Secundaria")
	r.FirstGrade = db.AddGrade(r.Primary.ID, "1er grado")
	r.Year1 = db.AddGrade(r.Secondary.ID, "1er año")
	r.SectionA = db.AddSection(r.FirstGrade.ID, "A")

	r.Garcia = db.AddParent("María García", "maria.garcia@test.com")
	r.Lopez = db.AddParent("Juan López", "juan.lopez@test.com")
	r.Perez = db.AddParent("Laura Pérez", "")

	student := func(first, last string, parent inmemdb.Parent, lvl inmemdb.Level, grd inmemdb.Grade) inmemdb.Student {
		return db.AddStudent(inmemdb.Student{
			FirstName: first,
			LastName:  last,
			ParentID:  nullID(parent.ID),
			LevelID:   nullID(lvl.ID),
			GradeID:   nullID(grd.ID),
		})
	}
	r.Ana = student("Ana", "García", r.Garcia, r.Primary, r.FirstGrade)
	r.Bruno = student("Bruno", "López", r.Lopez, r.Primary, r.FirstGrade)
	r.Carla = student("Carla", "Pérez", r.Perez, r.Primary, r.FirstGrade)
	r.Diego = student("Diego", "García", r.Garcia, r.Secondary, r.Year1)

	r.Enrollment = db.AddConcept(billing.Concept{
		Name: "Matrícula", Amount: core.MustMoney("100.00"), Kind: billing.KindEnrollment, Active: true,
	})
	r.PrimaryEnrollment = db.AddConcept(billing.Concept{
		Name: "Matrícula primaria", Amount: core.MustMoney("120.00"), Kind: billing.KindEnrollment,
		LevelID: nullID(r.Primary.ID), Active: true,
	})
	r.MonthlyFee = db.AddConcept(billing.Concept{
		Name: "Cuota mensual", Amount: core.MustMoney("100.00"), Kind: billing.KindMonthlyFee,
		DurationMonths: nullInt(1), Active: true,
	})
	r.Material = db.AddConcept(billing.Concept{
		Name: "Materiales", Amount: core.MustMoney("25.00"), Kind: billing.KindMaterial, Active: true,
	})
	r.Inactive = db.AddConcept(billing.Concept{
		Name: "Campamento", Amount: core.MustMoney("300.00"), Kind: billing.KindActivity,
		LevelID: nullID(r.Secondary.ID),
	})
	return r
}

// CreateInvoice issues an invoice through repo, failing the test on error.
func CreateInvoice(t *testing.T, repo billing.Repository, inv billing.Invoice) billing.Invoice {
	t.Helper()
	if inv.Status == "" {
		inv.Status = billing.StatusPending
	}
	if inv.Number == "" {
		seq, err := repo.NextInvoiceSeq(context.Background())
		if err != nil {
			t.Fatalf("NextInvoiceSeq() failed: %v", err)
		}
		inv.Number = billing.FormatInvoiceNumber("FAC", inv.IssueDate.Year(), seq)
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.IssueDate.AddDays(10)
	}
	inv, err := repo.CreateInvoice(context.Background(), inv)
	if err != nil {
		t.Fatalf("CreateInvoice() failed: %v", err)
	}
	return inv
}

// PrepareDB opens a migrated test database. The test is skipped unless TEST_DATABASE_HOST is set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("TEST_DATABASE_HOST not set")
	}

	conf := NewConfig()
	conf.Database.Host = host
	if port := os.Getenv("TEST_DATABASE_PORT"); port != "" {
		conf.Database.Port = port
	}
	conf.Database.AdminUser = os.Getenv("TEST_DATABASE_ADMINUSER")
	conf.Database.AdminPassword = os.Getenv("TEST_DATABASE_ADMINPASSWORD")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Setup(ctx, conf)
	if err != nil {
		t.Fatalf("database.Setup() failed: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Exec("TRUNCATE payments, invoice_lines, invoices, concepts, students, parents, sections, grades, levels RESTART IDENTITY CASCADE")
		_ = db.Close()
	})
	return db
}

func nullID(id int64) null.Int64 {
	return null.NewInt64(id, id != 0)
}

func nullInt(i int) null.Int {
	return null.IntFrom(i)
}

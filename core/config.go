package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env             string
		Build           string
		Debug           bool
		TestMode        bool
		AppName         string
		SecretKey       string
		WorkDir         string
		FrontendBaseURL string
		RollbarToken    string
		SendgridApiKey  string

		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Billing  BillingConfig
		Demo     DemoConfig
		Gateway  GatewayConfig
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	BillingConfig struct {
		InvoicePrefix string
		DueDays       int
		Currency      string
	}

	DemoConfig struct {
		CheckoutURL string
		TokenTTL    time.Duration
	}

	GatewayConfig struct {
		Name        string
		BaseURL     string
		AccessToken string
		WebhookURL  string
		SuccessURL  string
		FailureURL  string
		Timeout     time.Duration
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: conf.defaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = conf.AppName
	}
	return *addr
}

// NewConfig loads the configuration from the environment (optionally seeded by `config/.env.<env>`).
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "Colegio")
	v.SetDefault("secretKey", "k3j9-q1&ad0(vz!bn6)p$w+4r=8e#tm^h2y@x5c7u_s-lf")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "colegio")
	v.SetDefault("database.user", "colegio")
	v.SetDefault("database.password", "colegio")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("billing.invoicePrefix", "FAC")
	v.SetDefault("billing.dueDays", 10)
	v.SetDefault("billing.currency", "ARS")

	v.SetDefault("demo.checkoutURL", "http://localhost:3000/pagos/demo")
	v.SetDefault("demo.tokenTTL", 30*time.Minute)

	v.SetDefault("gateway.name", "mercadopago")
	v.SetDefault("gateway.baseURL", "https://api.mercadopago.com")
	v.SetDefault("gateway.accessToken", "")
	v.SetDefault("gateway.webhookURL", "")
	v.SetDefault("gateway.successURL", "http://localhost:3000/pagos/exito")
	v.SetDefault("gateway.failureURL", "http://localhost:3000/pagos/error")
	v.SetDefault("gateway.timeout", 10*time.Second)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// DEV_DATABASE_HOST -> database.host
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          workDir,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Billing: BillingConfig{
			InvoicePrefix: strings.ToUpper(CleanString(v.GetString("billing.invoicePrefix"))),
			DueDays:       v.GetInt("billing.dueDays"),
			Currency:      v.GetString("billing.currency"),
		},
		Demo: DemoConfig{
			CheckoutURL: v.GetString("demo.checkoutURL"),
			TokenTTL:    v.GetDuration("demo.tokenTTL"),
		},
		Gateway: GatewayConfig{
			Name:        v.GetString("gateway.name"),
			BaseURL:     v.GetString("gateway.baseURL"),
			AccessToken: v.GetString("gateway.accessToken"),
			WebhookURL:  v.GetString("gateway.webhookURL"),
			SuccessURL:  v.GetString("gateway.successURL"),
			FailureURL:  v.GetString("gateway.failureURL"),
			Timeout:     v.GetDuration("gateway.timeout"),
		},
	}
	if conf.Billing.InvoicePrefix == "" {
		log.Fatal(errors.New("config: billing.invoicePrefix cannot be blank"))
	}
	return conf
}

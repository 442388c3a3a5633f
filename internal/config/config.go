package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`

	JWT struct {
		Secret string `yaml:"secret"`
		TTL    int    `yaml:"ttl"` // hours
	} `yaml:"jwt"`

	Mpesa struct {
		BaseURL        string `yaml:"base_url"`
		ConsumerKey    string `yaml:"consumer_key"`
		ConsumerSecret string `yaml:"consumer_secret"`
		Shortcode      string `yaml:"shortcode"`
		Passkey        string `yaml:"passkey"`
		CallbackURL    string `yaml:"callback_url"`
		MaxAmount      int64  `yaml:"max_amount"`     // provider ceiling, KES
		PollInterval   int    `yaml:"poll_interval"`  // seconds between status queries
		PollAttempts   int    `yaml:"poll_attempts"`  // attempt budget
		PendingMaxAge  int    `yaml:"pending_max_age"` // minutes before the timeout sweep kicks in
	} `yaml:"mpesa"`

	Paystack struct {
		BaseURL     string `yaml:"base_url"`
		SecretKey   string `yaml:"secret_key"`
		CallbackURL string `yaml:"callback_url"`
	} `yaml:"paystack"`

	Webhook struct {
		SigningSecret string `yaml:"signing_secret"`
		RateLimit     int    `yaml:"rate_limit"`     // attempts per window per reference
		RateWindow    int    `yaml:"rate_window"`    // seconds
	} `yaml:"webhook"`

	Subscription struct {
		SchoolSlots   int `yaml:"school_slots"`
		SweepInterval int `yaml:"sweep_interval"` // minutes
	} `yaml:"subscription"`

	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUsername string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
		FromName     string `yaml:"from_name"`
	} `yaml:"email"`

	Admin struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"admin"`
}

var AppConfig *Config

// LoadConfig reads config.yaml and applies environment variable overrides.
// Secrets (provider credentials, signing keys) are expected from the
// environment in production; the YAML file carries non-secret defaults.
func LoadConfig() {
	var cfg Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if f, err := os.Open(configPath); err == nil {
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			log.Fatalf("Failed to parse config file at %s: %v", configPath, err)
		}
		f.Close()
	} else {
		log.Printf("Config file %s not found, relying on environment variables", configPath)
	}

	// Environment overrides
	overrideString(&cfg.Database.DSN, "DATABASE_URL")
	overrideString(&cfg.Server.Env, "SERVER_ENV")
	overrideInt(&cfg.Server.Port, "SERVER_PORT")
	overrideString(&cfg.JWT.Secret, "JWT_SECRET")
	overrideString(&cfg.Mpesa.ConsumerKey, "MPESA_CONSUMER_KEY")
	overrideString(&cfg.Mpesa.ConsumerSecret, "MPESA_CONSUMER_SECRET")
	overrideString(&cfg.Mpesa.Shortcode, "MPESA_SHORTCODE")
	overrideString(&cfg.Mpesa.Passkey, "MPESA_PASSKEY")
	overrideString(&cfg.Mpesa.CallbackURL, "MPESA_CALLBACK_URL")
	overrideString(&cfg.Paystack.SecretKey, "PAYSTACK_SECRET_KEY")
	overrideString(&cfg.Webhook.SigningSecret, "WEBHOOK_SIGNING_SECRET")
	overrideString(&cfg.Admin.Email, "ADMIN_EMAIL")
	overrideString(&cfg.Admin.Password, "ADMIN_PASSWORD")

	applyDefaults(&cfg)

	AppConfig = &cfg
}

// GetConfig returns the loaded configuration.
func GetConfig() *Config {
	if AppConfig == nil {
		LoadConfig()
	}
	return AppConfig
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 72
	}
	if cfg.Mpesa.BaseURL == "" {
		cfg.Mpesa.BaseURL = "https://sandbox.safaricom.co.ke"
	}
	if cfg.Mpesa.MaxAmount == 0 {
		cfg.Mpesa.MaxAmount = 150000
	}
	if cfg.Mpesa.PollInterval == 0 {
		cfg.Mpesa.PollInterval = 2
	}
	if cfg.Mpesa.PollAttempts == 0 {
		cfg.Mpesa.PollAttempts = 30
	}
	if cfg.Mpesa.PendingMaxAge == 0 {
		cfg.Mpesa.PendingMaxAge = 15
	}
	if cfg.Paystack.BaseURL == "" {
		cfg.Paystack.BaseURL = "https://api.paystack.co"
	}
	if cfg.Webhook.RateLimit == 0 {
		cfg.Webhook.RateLimit = 5
	}
	if cfg.Webhook.RateWindow == 0 {
		cfg.Webhook.RateWindow = 60
	}
	if cfg.Subscription.SchoolSlots == 0 {
		cfg.Subscription.SchoolSlots = 20
	}
	if cfg.Subscription.SweepInterval == 0 {
		cfg.Subscription.SweepInterval = 60
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// BuildAPIKey is the encoded Firebase API key injected at build time:
//
//	go build -ldflags "-X impresos-uribe/cotizaciones/internal/app/config.BuildAPIKey=<encoded>"
//
// The encoding only keeps the key from showing up as a plain literal.
var BuildAPIKey string

const (
	BackendLocal     = "local"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"

	KVFile  = "file"
	KVRedis = "redis"

	ChannelEmailJS  = "emailjs"
	ChannelTelegram = "telegram"
)

type Config struct {
	HTTPAddr           string   `envconfig:"HTTP_ADDR" default:":8080"`
	APIToken           string   `envconfig:"API_TOKEN"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogFile   string `envconfig:"LOG_FILE"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"local"`
	KVDriver     string `envconfig:"KV_DRIVER" default:"file"`
	DataDir      string `envconfig:"DATA_DIR" default:"data"`
	RedisURL     string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	FirestoreProjectID  string `envconfig:"FIRESTORE_PROJECT_ID"`
	FirestoreCollection string `envconfig:"FIRESTORE_COLLECTION" default:"quotes"`
	FirebaseAPIKeyEnc   string `envconfig:"FIREBASE_API_KEY_ENC"`
	FirebaseAuthURL     string `envconfig:"FIREBASE_AUTH_URL" default:"https://identitytoolkit.googleapis.com"`
	FirebaseTokenURL    string `envconfig:"FIREBASE_TOKEN_URL" default:"https://securetoken.googleapis.com"`
	AnonymousAuth       bool   `envconfig:"ANONYMOUS_AUTH" default:"true"`

	// FirebaseAPIKey is decoded from FirebaseAPIKeyEnc or BuildAPIKey by Load.
	FirebaseAPIKey string `ignored:"true"`

	LogoURL               string        `envconfig:"LOGO_URL" default:"https://fileuk.netlify.app/logotipo.png"`
	FontRegular           string        `envconfig:"FONT_REGULAR"`
	FontBold              string        `envconfig:"FONT_BOLD"`
	FontItalic            string        `envconfig:"FONT_ITALIC"`
	ExportSettleDelay     time.Duration `envconfig:"EXPORT_SETTLE_DELAY" default:"500ms"`
	AttachmentBudgetBytes int           `envconfig:"ATTACHMENT_BUDGET_BYTES" default:"51200"`

	NotifyChannel     string `envconfig:"NOTIFY_CHANNEL" default:"emailjs"`
	EmailJSURL        string `envconfig:"EMAILJS_URL" default:"https://api.emailjs.com/api/v1.0/email/send"`
	EmailJSServiceID  string `envconfig:"EMAILJS_SERVICE_ID"`
	EmailJSTemplateID string `envconfig:"EMAILJS_TEMPLATE_ID"`
	EmailJSPublicKey  string `envconfig:"EMAILJS_PUBLIC_KEY"`
	EmailJSPrivateKey string `envconfig:"EMAILJS_PRIVATE_KEY"`
	TelegramBotToken  string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramBaseURL   string `envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`

	CompanyName    string `envconfig:"COMPANY_NAME" default:"IMPRESOS URIBE"`
	CompanyTagline string `envconfig:"COMPANY_TAGLINE" default:"Servicios de Impresión Profesional"`
	CompanyContact string `envconfig:"COMPANY_CONTACT" default:"Francisco Rodríguez Uribe"`
	CompanyPhone   string `envconfig:"COMPANY_PHONE" default:"55 3208 5670"`
	CompanyEmail   string `envconfig:"COMPANY_EMAIL" default:"fru_27@hotmail.com"`
}

// Load reads .env (when present) and the environment once. The result is
// meant to be built at startup and passed around by pointer.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	enc := cfg.FirebaseAPIKeyEnc
	if enc == "" {
		enc = BuildAPIKey
	}
	if enc != "" {
		key, err := DecodeKey(enc)
		if err != nil {
			return nil, fmt.Errorf("config: FIREBASE_API_KEY_ENC: %w", err)
		}
		cfg.FirebaseAPIKey = key
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendLocal:
		if c.KVDriver != KVFile && c.KVDriver != KVRedis {
			errs = append(errs, fmt.Errorf("KV_DRIVER must be %q or %q, got %q", KVFile, KVRedis, c.KVDriver))
		}
	case BackendFirestore:
		if c.FirestoreProjectID == "" {
			errs = append(errs, errors.New("FIRESTORE_PROJECT_ID is required for the firestore backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	switch c.NotifyChannel {
	case ChannelEmailJS, ChannelTelegram:
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFY_CHANNEL %q", c.NotifyChannel))
	}
	if c.AttachmentBudgetBytes <= 0 {
		errs = append(errs, errors.New("ATTACHMENT_BUDGET_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// EncodeKey produces the value expected in FIREBASE_API_KEY_ENC.
func EncodeKey(key string) string {
	return reverse(base64.StdEncoding.EncodeToString([]byte(key)))
}

func DecodeKey(enc string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(reverse(strings.TrimSpace(enc)))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cast"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	ServiceName        string
	PublicBaseURL      string
	LogFormat          string
	LogLevel           string
	RedisURL           string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64

	WorkbookPath   string
	SheetOrders    string
	SheetRequests  string
	SheetCatalogue string
	SheetTeam      string
	SheetEvents    string

	BrandName   string
	ThankYouURL string
	CancelURL   string

	PayPal  PayPalConfig
	PayFast PayFastConfig
	EFT     EFTConfig
	Acy     AcyConfig

	AdminJWTSecret string
	AdminJWTIssuer string

	OutboundTimeout         time.Duration
	WebhookReplayTTL        time.Duration
	CatalogCacheTTL         time.Duration
	LockTTL                 time.Duration
	IdempotencyTTL          time.Duration
	RateLimitCreateMax      int
	RateLimitCreateWindow   time.Duration
	RateLimitCallbackMax    int
	RateLimitCallbackWindow time.Duration
	ShutdownGrace           time.Duration
	WorkerConcurrency       int

	Obs ObsConfig
}

// ObsConfig switches the process-level observability features.
type ObsConfig struct {
	Version           string
	MetricsEnabled    bool
	MetricsNamespace  string
	HTTPBucketsMS     string
	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	SamplingRatio     float64
	PprofEnabled      bool
	PprofUser         string
	PprofPass         string
	ReadyStoreTimeout time.Duration
	ReadyRedisTimeout time.Duration
}

// PayPalConfig configures the hosted checkout gateway.
type PayPalConfig struct {
	APIBase         string
	ClientID        string
	Secret          string
	WebhookID       string
	FallbackEnabled bool
}

// PayFastConfig configures the redirect gateway.
type PayFastConfig struct {
	Mode        string
	MerchantID  string
	MerchantKey string
	Passphrase  string
}

// EFTConfig carries the bank details shown for manual transfers.
type EFTConfig struct {
	AccountName   string
	BankName      string
	AccountNumber string
	BranchCode    string
	Swift         string
}

// AcyConfig configures the mailing list subscriber.
type AcyConfig struct {
	URL    string
	APIKey string
	ListID string
}

// Load reads the process environment, after merging an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	k, err := fromEnv()
	if err != nil {
		return nil, err
	}
	return build(vars{k})
}

// LoadForTests layers overrides on top of the environment without touching
// it. An empty override value reads as unset.
func LoadForTests(overrides map[string]string) (*Config, error) {
	k, err := fromEnv()
	if err != nil {
		return nil, err
	}
	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}
	return build(vars{k})
}

func fromEnv() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return k, nil
}

func build(v vars) (*Config, error) {
	cfg := &Config{
		AppEnv:             v.str("APP_ENV", "development"),
		Port:               v.str("PORT", "8080"),
		ServiceName:        v.str("SERVICE_NAME", "Quzii Sponsor API"),
		PublicBaseURL:      strings.TrimRight(v.str("PUBLIC_BASE_URL", ""), "/"),
		LogFormat:          v.str("OBS_LOG_FORMAT", v.str("LOG_FORMAT", "json")),
		LogLevel:           v.str("OBS_LOG_LEVEL", v.str("LOG_LEVEL", "info")),
		RedisURL:           v.str("REDIS_URL", ""),
		CORSAllowedOrigins: v.list("CORS_ALLOWED_ORIGINS"),
		BodyLimitBytes:     int64(v.num("BODY_LIMIT_BYTES", 64<<10)),

		WorkbookPath:   v.str("WORKBOOK_PATH", ""),
		SheetOrders:    v.str("SHEET_ORDERS", "Sponsor Orders"),
		SheetRequests:  v.str("SHEET_REQUESTS", "Sponsorship Requests"),
		SheetCatalogue: v.str("SHEET_CATALOGUE", "Public_Catalogue"),
		SheetTeam:      v.str("SHEET_TEAM", "VA Payout Summary"),
		SheetEvents:    v.str("SHEET_EVENTS", "Order Events"),

		BrandName:   v.str("BRAND_NAME", "Quzii"),
		ThankYouURL: v.str("THANKYOU_URL", "https://example.com/thank-you"),
		CancelURL:   v.str("CANCEL_URL", "https://example.com/cancelled"),

		PayPal: PayPalConfig{
			APIBase:         v.str("PP_API_BASE", "https://api-m.paypal.com"),
			ClientID:        v.str("PP_CLIENT_ID", ""),
			Secret:          v.str("PP_SECRET", ""),
			WebhookID:       v.str("PP_WEBHOOK_ID", ""),
			FallbackEnabled: v.flag("PP_FALLBACK_ENABLED", true),
		},
		PayFast: PayFastConfig{
			Mode:        strings.ToLower(v.str("PF_MODE", "live")),
			MerchantID:  v.str("PF_MERCHANT_ID", ""),
			MerchantKey: v.str("PF_MERCHANT_KEY", ""),
			// Whitespace is significant in the signature base.
			Passphrase: v.k.String("PF_PASSPHRASE"),
		},
		EFT: EFTConfig{
			AccountName:   v.str("EFT_ACCOUNT_NAME", ""),
			BankName:      v.str("EFT_BANK_NAME", ""),
			AccountNumber: v.str("EFT_ACCOUNT_NUMBER", ""),
			BranchCode:    v.str("EFT_BRANCH_CODE", ""),
			Swift:         v.str("EFT_SWIFT", ""),
		},
		Acy: AcyConfig{
			URL:    v.str("ACY_URL", ""),
			APIKey: v.str("ACY_API_KEY", ""),
			ListID: v.str("ACY_LIST_ID", "2"),
		},

		AdminJWTSecret: v.k.String("ADMIN_JWT_SECRET"),
		AdminJWTIssuer: v.str("ADMIN_JWT_ISSUER", "sponsor-api"),

		OutboundTimeout:         v.dur("OUTBOUND_TIMEOUT", 15*time.Second),
		WebhookReplayTTL:        v.dur("WEBHOOK_REPLAY_TTL", 24*time.Hour),
		CatalogCacheTTL:         v.dur("CATALOG_CACHE_TTL", 5*time.Minute),
		LockTTL:                 v.dur("LOCK_TTL", 30*time.Second),
		IdempotencyTTL:          v.dur("IDEMPOTENCY_TTL", 10*time.Minute),
		RateLimitCreateMax:      v.num("RATE_LIMIT_CREATE_MAX", 20),
		RateLimitCreateWindow:   v.dur("RATE_LIMIT_CREATE_WINDOW", time.Minute),
		RateLimitCallbackMax:    v.num("RATE_LIMIT_CALLBACK_MAX", 120),
		RateLimitCallbackWindow: v.dur("RATE_LIMIT_CALLBACK_WINDOW", time.Minute),
		ShutdownGrace:           time.Duration(v.num("SHUTDOWN_GRACE_MS", 10000)) * time.Millisecond,
		WorkerConcurrency:       v.num("WORKER_CONCURRENCY", 4),

		Obs: ObsConfig{
			Version:           v.str("APP_VERSION", "dev"),
			MetricsEnabled:    v.flag("OBS_ENABLE_PROMETHEUS", true),
			MetricsNamespace:  v.str("OBS_METRICS_NAMESPACE", "sponsor"),
			HTTPBucketsMS:     v.str("OBS_HTTP_BUCKETS_MS", ""),
			TracingEnabled:    v.flag("OBS_ENABLE_TRACING", false),
			TracingExporter:   v.str("OBS_TRACING_EXPORTER", "otlp"),
			OTLPEndpoint:      v.str("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio:     v.ratio("OBS_TRACING_SAMPLING_RATIO", 1),
			PprofEnabled:      v.flag("OBS_ENABLE_PPROF", false),
			PprofUser:         v.str("SECURE_PPROF_BASIC_AUTH_USER", ""),
			PprofPass:         v.str("SECURE_PPROF_BASIC_AUTH_PASS", ""),
			ReadyStoreTimeout: time.Duration(v.num("HEALTH_READY_STORE_TIMEOUT_MS", 500)) * time.Millisecond,
			ReadyRedisTimeout: time.Duration(v.num("HEALTH_READY_REDIS_TIMEOUT_MS", 300)) * time.Millisecond,
		},
	}

	if cfg.WorkbookPath == "" {
		return nil, errors.New("WORKBOOK_PATH is required")
	}
	if cfg.PayFast.Mode != "live" && cfg.PayFast.Mode != "sandbox" {
		return nil, fmt.Errorf("PF_MODE must be live or sandbox, got %q", cfg.PayFast.Mode)
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV names production.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.AppEnv)) {
	case "production", "prod":
		return true
	}
	return false
}

// HTTPAddr is the listen address built from Port.
func (c *Config) HTTPAddr() string {
	port := strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if port == "" {
		port = "8080"
	}
	return ":" + port
}

// vars reads typed values; blank or unparsable values yield the fallback.
type vars struct{ k *koanf.Koanf }

func (v vars) str(key, fallback string) string {
	if s := strings.TrimSpace(v.k.String(key)); s != "" {
		return s
	}
	return fallback
}

func (v vars) num(key string, fallback int) int {
	s := v.str(key, "")
	if s == "" {
		return fallback
	}
	n, err := cast.ToIntE(s)
	if err != nil {
		return fallback
	}
	return n
}

func (v vars) ratio(key string, fallback float64) float64 {
	f, err := cast.ToFloat64E(v.str(key, ""))
	if err != nil || f <= 0 || f > 1 {
		return fallback
	}
	return f
}

func (v vars) flag(key string, fallback bool) bool {
	switch strings.ToLower(v.str(key, "")) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func (v vars) dur(key string, fallback time.Duration) time.Duration {
	s := v.str(key, "")
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (v vars) list(key string) []string {
	var out []string
	for _, part := range strings.Split(v.k.String(key), ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

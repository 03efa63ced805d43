// Package config loads process configuration from the environment.
package config

import (
	"encoding/base64"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration. It is built once in
// main and handed to constructors; nothing else reads the environment.
type Config struct {
	Port   string
	AppEnv string

	DatabaseURL string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string
	SupabaseJWKSURL        string
	MediaBucket            string

	EncryptionKey string

	GoogleClientID     string
	GoogleClientSecret string
	PublicBaseURL      string
	DashboardURL       string
	AllowedOrigins     []string

	RateLimitBackend   string
	RateLimitPerMinute int

	SyncSchedule           string
	RecommendSchedule      string
	ScheduledPostsSchedule string

	MailProvider   string
	SendGridAPIKey string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	MailFrom       string

	LokiURL    string
	LokiUser   string
	LokiAPIKey string
}

var defaults = map[string]any{
	"PORT":                     "8089",
	"APP_ENV":                  "development",
	"SUPABASE_MEDIA_BUCKET":    "gmb-media",
	"RATE_LIMIT_BACKEND":       "memory",
	"RATE_LIMIT_PER_MINUTE":    60,
	"SYNC_SCHEDULE":            "0 */6 * * *",
	"RECOMMEND_SCHEDULE":       "0 6 * * 1",
	"SCHEDULED_POSTS_SCHEDULE": "* * * * *",
	"MAIL_PROVIDER":            "none",
	"SMTP_PORT":                587,
	"MAIL_FROM":                "no-reply@example.com",
	"ALLOWED_ORIGINS":          "",
}

// Load reads an optional .env file, then the environment, and validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	vp := viper.New()
	for k, val := range defaults {
		vp.SetDefault(k, val)
	}
	vp.AutomaticEnv()

	cfg := fromViper(vp)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(vp *viper.Viper) *Config {
	return &Config{
		Port:                   vp.GetString("PORT"),
		AppEnv:                 vp.GetString("APP_ENV"),
		DatabaseURL:            vp.GetString("DATABASE_URL"),
		SupabaseURL:            strings.TrimRight(vp.GetString("SUPABASE_URL"), "/"),
		SupabaseServiceRoleKey: vp.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseJWTSecret:      vp.GetString("SUPABASE_JWT_SECRET"),
		SupabaseJWKSURL:        vp.GetString("SUPABASE_JWKS_URL"),
		MediaBucket:            vp.GetString("SUPABASE_MEDIA_BUCKET"),
		EncryptionKey:          vp.GetString("CREDENTIAL_ENCRYPTION_KEY"),
		GoogleClientID:         vp.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:     vp.GetString("GOOGLE_CLIENT_SECRET"),
		PublicBaseURL:          strings.TrimRight(vp.GetString("PUBLIC_BASE_URL"), "/"),
		DashboardURL:           strings.TrimRight(vp.GetString("DASHBOARD_URL"), "/"),
		AllowedOrigins:         splitList(vp.GetString("ALLOWED_ORIGINS")),
		RateLimitBackend:       strings.ToLower(vp.GetString("RATE_LIMIT_BACKEND")),
		RateLimitPerMinute:     vp.GetInt("RATE_LIMIT_PER_MINUTE"),
		SyncSchedule:           vp.GetString("SYNC_SCHEDULE"),
		RecommendSchedule:      vp.GetString("RECOMMEND_SCHEDULE"),
		ScheduledPostsSchedule: vp.GetString("SCHEDULED_POSTS_SCHEDULE"),
		MailProvider:           strings.ToLower(vp.GetString("MAIL_PROVIDER")),
		SendGridAPIKey:         vp.GetString("SENDGRID_API_KEY"),
		SMTPHost:               vp.GetString("SMTP_HOST"),
		SMTPPort:               vp.GetInt("SMTP_PORT"),
		SMTPUsername:           vp.GetString("SMTP_USERNAME"),
		SMTPPassword:           vp.GetString("SMTP_PASSWORD"),
		MailFrom:               vp.GetString("MAIL_FROM"),
		LokiURL:                strings.TrimRight(vp.GetString("GRAFANA_LOKI_URL"), "/"),
		LokiUser:               vp.GetString("GRAFANA_LOKI_USER"),
		LokiAPIKey:             vp.GetString("GRAFANA_LOKI_API_KEY"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every missing or malformed setting at once.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, is.Port),
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.SupabaseURL, validation.Required, is.URL),
		validation.Field(&c.SupabaseJWTSecret, validation.When(c.SupabaseJWKSURL == "", validation.Required.Error("required unless SUPABASE_JWKS_URL is set"))),
		validation.Field(&c.SupabaseJWKSURL, is.URL),
		validation.Field(&c.EncryptionKey, validation.Required, validation.By(aesKey)),
		validation.Field(&c.GoogleClientID, validation.Required),
		validation.Field(&c.GoogleClientSecret, validation.Required),
		validation.Field(&c.PublicBaseURL, validation.Required, is.URL),
		validation.Field(&c.DashboardURL, validation.Required, is.URL),
		validation.Field(&c.RateLimitBackend, validation.In("memory", "postgres")),
		validation.Field(&c.RateLimitPerMinute, validation.Min(1)),
		validation.Field(&c.MailProvider, validation.In("sendgrid", "smtp", "none")),
		validation.Field(&c.SendGridAPIKey, validation.When(c.MailProvider == "sendgrid", validation.Required)),
		validation.Field(&c.SMTPHost, validation.When(c.MailProvider == "smtp", validation.Required, is.Host)),
		validation.Field(&c.MailFrom, validation.Required, is.EmailFormat),
		validation.Field(&c.LokiURL, is.URL),
	)
}

func aesKey(value any) error {
	s, _ := value.(string)
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(key) != 32 {
		return errors.New("must be 32 bytes base64-encoded")
	}
	return nil
}

func (c Config) IsProduction() bool { return c.AppEnv == "production" }

// RedirectURL is the OAuth callback registered for a provider path segment
// ("gmb" or "youtube").
func (c Config) RedirectURL(segment string) string {
	return c.PublicBaseURL + "/api/" + segment + "/oauth/callback"
}

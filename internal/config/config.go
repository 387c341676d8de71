package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultImgflipURL = "https://api.imgflip.com/get_memes"
	DefaultPageTitle  = "Memes, Memes, Memes!"

	DefaultFetchTimeout    = 10 * time.Second
	DefaultFetchRetryDelay = 200 * time.Millisecond
)

type Config struct {
	Port              int
	DatabaseURL       string
	ImgflipURL        string
	SampleSize        int
	PageTitle         string
	FetchTimeout      time.Duration
	FetchRetries      int
	FetchRetryDelay   time.Duration
	SentryDSN         string
	SentryEnvironment string
	LogLevel          string
	AllowedOrigins    []string
}

var options = []struct {
	key   string
	flag  string
	def   any
	usage string
}{
	{"port", "port", 8080, "HTTP listen port"},
	{"database_url", "database-url", "", "Postgres URL for catalog snapshots; empty disables them"},
	{"imgflip_url", "imgflip-url", DefaultImgflipURL, "meme source endpoint"},
	{"sample_size", "sample-size", 10, "memes shown per page"},
	{"page_title", "page-title", DefaultPageTitle, "gallery page title"},
	{"fetch_timeout", "fetch-timeout", DefaultFetchTimeout, "timeout for one source fetch including retries"},
	{"fetch_retries", "fetch-retries", 2, "retries after a failed source fetch"},
	{"fetch_retry_delay", "fetch-retry-delay", DefaultFetchRetryDelay, "initial delay before the first retry"},
	{"sentry_dsn", "sentry-dsn", "", "Sentry DSN; empty disables error reporting"},
	{"sentry_environment", "sentry-environment", "development", "Sentry environment tag"},
	{"log_level", "log-level", "info", "debug, info, warn or error"},
	{"allowed_origins", "allowed-origins", "*", "comma separated CORS origins"},
}

// Load reads configuration from defaults, then the environment, then args.
// Environment variables are the upper-cased keys, e.g. SAMPLE_SIZE.
func Load(args []string) (Config, error) {
	v := viper.New()
	fs := pflag.NewFlagSet("memes", pflag.ContinueOnError)

	for _, o := range options {
		v.SetDefault(o.key, o.def)
		switch def := o.def.(type) {
		case int:
			fs.Int(o.flag, def, o.usage)
		case time.Duration:
			fs.Duration(o.flag, def, o.usage)
		default:
			fs.String(o.flag, fmt.Sprint(def), o.usage)
		}
		if err := v.BindPFlag(o.key, fs.Lookup(o.flag)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", o.flag, err)
		}
	}
	v.AutomaticEnv()

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	cfg := Config{
		Port:              v.GetInt("port"),
		DatabaseURL:       v.GetString("database_url"),
		ImgflipURL:        v.GetString("imgflip_url"),
		SampleSize:        v.GetInt("sample_size"),
		PageTitle:         v.GetString("page_title"),
		FetchTimeout:      v.GetDuration("fetch_timeout"),
		FetchRetries:      v.GetInt("fetch_retries"),
		FetchRetryDelay:   v.GetDuration("fetch_retry_delay"),
		SentryDSN:         v.GetString("sentry_dsn"),
		SentryEnvironment: v.GetString("sentry_environment"),
		LogLevel:          v.GetString("log_level"),
		AllowedOrigins:    splitList(v.GetString("allowed_origins")),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.SampleSize < 0 {
		errs = append(errs, errors.New("sample size must not be negative"))
	}
	if c.FetchRetries < 0 {
		errs = append(errs, errors.New("fetch retries must not be negative"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("fetch timeout must be positive"))
	}
	if c.FetchRetryDelay < 0 {
		errs = append(errs, errors.New("fetch retry delay must not be negative"))
	}
	if c.ImgflipURL == "" {
		errs = append(errs, errors.New("imgflip url is required"))
	}
	return errors.Join(errs...)
}

// AttemptTimeout splits FetchTimeout evenly across the first attempt and
// every retry.
func (c Config) AttemptTimeout() time.Duration {
	return c.FetchTimeout / time.Duration(c.FetchRetries+1)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

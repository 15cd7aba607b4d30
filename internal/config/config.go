// Package config loads and validates run settings.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. COMPANYFINDER_SEARCH_ENGINE.
const EnvPrefix = "COMPANYFINDER"

// ErrInvalidSettings is returned when a setting is out of range.
var ErrInvalidSettings = errors.New("config: invalid settings")

// Search failure policies.
const (
	OnErrorSkip  = "skip"
	OnErrorAbort = "abort"
)

// Settings are the options of a resolve run. Durations are float seconds as
// in the settings file; use the accessor methods for time.Duration values.
type Settings struct {
	SearchEngine         string   `mapstructure:"search_engine" json:"search_engine" validate:"oneof=duckduckgo bing google"`
	ResultsPerQuery      int      `mapstructure:"results_per_query" json:"results_per_query" validate:"min=1,max=100"`
	RequestTimeout       float64  `mapstructure:"request_timeout" json:"request_timeout" validate:"gt=0"`
	UserAgent            string   `mapstructure:"user_agent" json:"user_agent"`
	DelayBetweenRequests float64  `mapstructure:"delay_between_requests" json:"delay_between_requests" validate:"gte=0"`
	DelayJitter          float64  `mapstructure:"delay_jitter" json:"delay_jitter" validate:"gte=0,lte=1"`
	RequestsPerSecond    float64  `mapstructure:"requests_per_second" json:"requests_per_second" validate:"gte=0"`
	MaxRedirects         int      `mapstructure:"max_redirects" json:"max_redirects" validate:"gte=-1"`
	MaxRetries           int      `mapstructure:"max_retries" json:"max_retries" validate:"gte=0,lte=5"`
	TLSFingerprint       string   `mapstructure:"tls_fingerprint" json:"tls_fingerprint" validate:"oneof=go chrome firefox safari random"`
	Proxies              []string `mapstructure:"proxies" json:"proxies" validate:"dive,required"`
	ProxyFile            string   `mapstructure:"proxy_file" json:"proxy_file"`
	RespectRobots        bool     `mapstructure:"respect_robots" json:"respect_robots"`
	UseBrowser           bool     `mapstructure:"use_browser" json:"use_browser"`
	MinSimilarity        float64  `mapstructure:"min_similarity" json:"min_similarity" validate:"gte=0,lte=1"`
	OnSearchError        string   `mapstructure:"on_search_error" json:"on_search_error" validate:"oneof=skip abort"`
}

// Defaults returns the built-in settings used when no settings file exists.
func Defaults() Settings {
	return Settings{
		SearchEngine:         "duckduckgo",
		ResultsPerQuery:      10,
		RequestTimeout:       10,
		UserAgent:            "LinkedInCompanyFinder/1.0",
		DelayBetweenRequests: 1.0,
		MaxRedirects:         10,
		MaxRetries:           1,
		TLSFingerprint:       "go",
		OnSearchError:        OnErrorSkip,
	}
}

// Load reads settings from a JSON file at path, applies COMPANYFINDER_*
// environment overrides and validates the result. A missing file is not an
// error: defaults are used and a warning is logged. An unreadable or
// malformed file is.
func Load(path string, logger *slog.Logger) (*Settings, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v := viper.New()
	setDefaults(v, Defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			logger.Warn("Settings file not found, using built-in defaults", "path", path)
		} else {
			v.SetConfigFile(path)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
			logger.Info("Loaded settings", "path", path)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if len(s.Proxies) == 0 {
		s.Proxies = nil
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper, d Settings) {
	rv := reflect.ValueOf(d)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		v.SetDefault(tagName(rt.Field(i)), rv.Field(i).Interface())
	}
}

func tagName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(tagName)
	return v
}()

// Validate normalises enum values to lower case and checks every field.
// All violations are reported together.
func (s *Settings) Validate() error {
	s.SearchEngine = strings.ToLower(strings.TrimSpace(s.SearchEngine))
	s.TLSFingerprint = strings.ToLower(strings.TrimSpace(s.TLSFingerprint))
	s.OnSearchError = strings.ToLower(strings.TrimSpace(s.OnSearchError))
	if s.TLSFingerprint == "" {
		s.TLSFingerprint = "go"
	}

	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		p := fmt.Sprintf("%s=%v fails %s", fe.Field(), fe.Value(), fe.Tag())
		if fe.Param() != "" {
			p += "(" + fe.Param() + ")"
		}
		problems = append(problems, p)
	}
	return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
}

// Timeout returns RequestTimeout as a duration.
func (s Settings) Timeout() time.Duration { return seconds(s.RequestTimeout) }

// Delay returns DelayBetweenRequests as a duration.
func (s Settings) Delay() time.Duration { return seconds(s.DelayBetweenRequests) }

// AbortOnSearchError reports whether a failed search stops the run.
func (s Settings) AbortOnSearchError() bool { return s.OnSearchError == OnErrorAbort }

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

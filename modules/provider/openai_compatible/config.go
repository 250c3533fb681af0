package openaicompat

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults target Gemini's OpenAI-compatible endpoint.
const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel     = "gemini-2.5-flash"
	DefaultAPIKeyEnv = "GOOGLE_API_KEY"
	DefaultTimeout   = 60 * time.Second
)

// Config holds the configuration for an OpenAI-compatible engine. The API
// key itself is never part of the file; it is read from APIKeyEnv.
type Config struct {
	BaseURL     string            `yaml:"base_url"`
	APIKeyEnv   string            `yaml:"api_key_env"`
	Model       string            `yaml:"model"`
	MaxTokens   int               `yaml:"max_tokens"`
	Temperature *float64          `yaml:"temperature"`
	Headers     map[string]string `yaml:"headers"`
	Timeout     time.Duration     `yaml:"timeout"`
}

// WithDefaults returns a copy of c with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Validate returns every problem found in the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errMissingField("base_url"))
	} else {
		u, err := url.Parse(c.BaseURL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("engine: base_url is not a valid URL: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("engine: base_url scheme must be http or https, got %q", u.Scheme))
		}
	}
	if c.APIKeyEnv == "" {
		errs = append(errs, errMissingField("api_key_env"))
	}
	if c.Model == "" {
		errs = append(errs, errMissingField("model"))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, errors.New("engine: max_tokens must not be negative"))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, errors.New("engine: temperature must be between 0 and 2"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("engine: timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func errMissingField(field string) error {
	return fmt.Errorf("engine: %s is required", field)
}

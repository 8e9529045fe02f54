package request

import (
	"fmt"
	"time"

	"github.com/sidedotdev/inferencecore/retrypolicy"
	"github.com/sidedotdev/inferencecore/sdkerr"
)

// ClientConfig is the provider-agnostic shape carried by every provider
// crate. Raw API keys are not retained after default header construction —
// only the composed Headers are stored.
type ClientConfig struct {
	BaseURL      string
	Headers      map[string]string
	Timeout      time.Duration
	RetryPolicy  retrypolicy.RetryPolicy
	UserAgent    string
	ExtraHeaders map[string]string

	// AnthropicBetaOptIn is a provider-specific switch, e.g. optional beta
	// header opt-in.
	AnthropicBetaOptIn bool
}

// NewClientConfig composes default headers from apiKey and discards the raw
// key immediately after — ClientConfig never stores it, only the resulting
// Headers map.
func NewClientConfig(apiKey string, authHeader func(apiKey string) (name, value string)) ClientConfig {
	cfg := ClientConfig{
		Headers: make(map[string]string),
		Timeout: 60 * time.Second,
		RetryPolicy: retrypolicy.DefaultRetryPolicy(),
	}
	if authHeader != nil {
		name, value := authHeader(apiKey)
		cfg.Headers[name] = value
	}
	return cfg
}

func (c ClientConfig) WithBaseURL(url string) ClientConfig {
	c.BaseURL = url
	return c
}

func (c ClientConfig) WithTimeout(d time.Duration) ClientConfig {
	c.Timeout = d
	return c
}

func (c ClientConfig) WithMaxRetries(n uint32) ClientConfig {
	c.RetryPolicy.MaxRetries = n
	return c
}

func (c ClientConfig) WithAnthropicBetaOptIn(enabled bool) ClientConfig {
	c.AnthropicBetaOptIn = enabled
	return c
}

// String implements redacted debug formatting: no raw key material, only
// the fixed redacted token for any sensitive header.
func (c ClientConfig) String() string {
	return fmt.Sprintf(
		"ClientConfig{BaseURL: %q, Headers: %s, ExtraHeaders: %s, Timeout: %s, RetryPolicy: %+v}",
		c.BaseURL, sdkerr.FormatHeaders(c.Headers), sdkerr.FormatHeaders(c.ExtraHeaders), c.Timeout, c.RetryPolicy,
	)
}

// GoString backs %#v the same way String backs %v and %s, so neither
// debug-format verb can leak a key.
func (c ClientConfig) GoString() string {
	return c.String()
}

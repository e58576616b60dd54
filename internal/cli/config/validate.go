package config

import (
	"net/url"
	"strings"

	"github.com/go-faster/errors"

	"github.com/leapstack-labs/qmgov/internal/cli/output"
	"github.com/leapstack-labs/qmgov/internal/rqm"
)

// Validate checks values that do not depend on the command being run.
func (c *Config) Validate() error {
	if _, err := output.ParseMode(c.OutputFormat); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return errors.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.Retries < 0 {
		return errors.Errorf("retries must not be negative, got %d", c.Retries)
	}
	if c.Concurrency < 1 {
		return errors.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	for _, kind := range rqm.AllKinds {
		if n, ok := c.Limits().Limit(kind); ok && n < 0 {
			return errors.Errorf("data_governance_%s must not be negative, got %d", kind.Code(), n)
		}
	}
	if c.ServerURL != "" {
		if err := validateServerURL(c.ServerURL); err != nil {
			return err
		}
	}
	return nil
}

// ValidateServer checks the settings needed to talk to a server. Missing
// credentials are not an error here; commands prompt for them.
func (c *Config) ValidateServer() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("server_url is required\nHint: set server_url in the config file, QMGOV_SERVER_URL, or --server")
	}
	return validateServerURL(c.ServerURL)
}

// ValidateLimits checks that at least one governance limit is configured.
func (c *Config) ValidateLimits() error {
	if len(c.Limits()) == 0 {
		return errors.New("no governance limits configured\nHint: set data_governance_TP, data_governance_TC, data_governance_TS, data_governance_TSuite or data_governance_TCER")
	}
	return nil
}

func validateServerURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.Errorf("server_url must be an http(s) URL, got %q", raw)
	}
	return nil
}

// Package config loads qmgov settings from defaults, a config file, the
// environment and command-line flags.
//
// Keys keep the names used by existing config.json files (server_url,
// data_governance_TP, ...). Keys are matched case-insensitively.
package config

import (
	"time"

	"github.com/leapstack-labs/qmgov/internal/governance"
	"github.com/leapstack-labs/qmgov/internal/rqm"
)

// Config holds all CLI configuration options.
type Config struct {
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	ServerURL string `koanf:"server_url"`

	ProjectAreaID string `koanf:"project_area_id"`
	StreamID      string `koanf:"stream_id"`

	LimitTP     *int `koanf:"data_governance_tp"`
	LimitTC     *int `koanf:"data_governance_tc"`
	LimitTS     *int `koanf:"data_governance_ts"`
	LimitTSuite *int `koanf:"data_governance_tsuite"`
	LimitTCER   *int `koanf:"data_governance_tcer"`

	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	Timeout            time.Duration `koanf:"timeout"`
	Retries            int           `koanf:"retries"`
	Concurrency        int           `koanf:"concurrency"`

	ReportDir    string `koanf:"report_dir"`
	OutputFormat string `koanf:"output"`
	Verbose      bool   `koanf:"verbose"`

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultTimeout     = rqm.DefaultTimeout
	DefaultRetries     = rqm.DefaultMaxRetries
	DefaultConcurrency = 1
	DefaultReportDir   = "Reports"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// ConfigFileNames are searched, in order, in the working directory.
var ConfigFileNames = []string{"qmgov.yaml", "qmgov.yml", "config.json"}

// Limits returns the configured governance limits. Kinds without a limit
// are absent.
func (c *Config) Limits() governance.Limits {
	limits := governance.Limits{}
	for kind, v := range c.limitFields() {
		if *v != nil {
			limits[kind] = **v
		}
	}
	return limits
}

// SetLimit sets the limit of kind.
func (c *Config) SetLimit(kind rqm.ArtifactKind, n int) {
	if field, ok := c.limitFields()[kind]; ok {
		*field = &n
	}
}

func (c *Config) limitFields() map[rqm.ArtifactKind]**int {
	return map[rqm.ArtifactKind]**int{
		rqm.TestPlan:                &c.LimitTP,
		rqm.TestCase:                &c.LimitTC,
		rqm.TestScript:              &c.LimitTS,
		rqm.TestSuite:               &c.LimitTSuite,
		rqm.TestCaseExecutionRecord: &c.LimitTCER,
	}
}

// ClientOptions returns the rqm client options for this configuration.
func (c *Config) ClientOptions() rqm.Options {
	return rqm.Options{
		BaseURL:            c.ServerURL,
		Username:           c.Username,
		Password:           c.Password,
		InsecureSkipVerify: c.InsecureSkipVerify,
		Timeout:            c.Timeout,
		MaxRetries:         c.Retries,
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/leapstack-labs/qmgov/internal/cli/config"
)

// ConfigField represents a configuration key.
type ConfigField struct {
	Name        string
	Type        string
	Default     string
	Flag        string
	Description string
	Category    string // "connection", "selection", "limits", "behavior"
}

var configDocs = map[string]struct{ flag, desc, category string }{
	"username":               {"--user", "RQM user name; prompted for on a terminal when missing", "connection"},
	"password":               {"", "RQM password; supports ${VAR}; prompted for without echo when missing", "connection"},
	"server_url":             {"--server", "Server base URL, e.g. https://rqm.example.com:9443", "connection"},
	"insecure_skip_verify":   {"--insecure", "Skip TLS certificate verification", "connection"},
	"timeout":                {"--timeout", "Per-request timeout; bare numbers are seconds", "connection"},
	"retries":                {"--retries", "Retries of a request that failed with a network error or 5xx", "connection"},
	"project_area_id":        {"--project-area", "Project area id or name", "selection"},
	"stream_id":              {"--stream", "Stream OSLC id or name", "selection"},
	"data_governance_tp":     {"", "Maximum number of test plans", "limits"},
	"data_governance_tc":     {"", "Maximum number of test cases", "limits"},
	"data_governance_ts":     {"", "Maximum number of test scripts", "limits"},
	"data_governance_tsuite": {"", "Maximum number of test suites", "limits"},
	"data_governance_tcer":   {"", "Maximum number of test case execution records", "limits"},
	"concurrency":            {"--concurrency", "Project areas fetched in parallel by inventory", "behavior"},
	"report_dir":             {"--report-dir", "Directory for session logs; empty disables them", "behavior"},
	"output":                 {"--output", "Output format: auto, text, markdown, json, yaml or csv", "behavior"},
	"verbose":                {"--verbose", "Debug logging on stderr", "behavior"},
}

// configFields derives the configuration keys from config.Config.
func configFields() []ConfigField {
	defaults := reflect.ValueOf(config.FromContext(context.Background())).Elem()
	typ := defaults.Type()

	var fields []ConfigField
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		name := sf.Tag.Get("koanf")
		if name == "" || name == "-" {
			continue
		}
		doc := configDocs[name]
		fields = append(fields, ConfigField{
			Name:        name,
			Type:        typeName(sf.Type),
			Default:     defaultValue(defaults.Field(i)),
			Flag:        doc.flag,
			Description: doc.desc,
			Category:    doc.category,
		})
	}
	return fields
}

func typeName(t reflect.Type) string {
	if t == reflect.TypeOf(time.Duration(0)) {
		return "duration"
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind().String()
}

func defaultValue(v reflect.Value) string {
	if v.IsZero() {
		return ""
	}
	if d, ok := v.Interface().(time.Duration); ok {
		return d.String()
	}
	return fmt.Sprint(v.Interface())
}

// generateConfigDocs generates the configuration reference page.
func generateConfigDocs(outDir string) error {
	log.Printf("Generating configuration docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	w := NewMarkdownWriter()
	w.Frontmatter("Configuration", "qmgov configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph(fmt.Sprintf("qmgov reads the first of %s found in the working directory, or the file given with `--config`. "+
		"Keys are matched case-insensitively, so existing `config.json` files with `data_governance_TP` and friends load unchanged.",
		strings.Join(quoted(config.ConfigFileNames), ", ")))

	sections := []struct{ category, title, intro string }{
		{"connection", "Connection", "How to reach and log in to the RQM server:"},
		{"selection", "Selection", "Default project area and stream for `check`, `count` and `streams`:"},
		{"limits", "Governance Limits", "Only kinds with a limit are counted by `check`. At least one limit is required."},
		{"behavior", "Behavior", "Output and session log settings:"},
	}

	fields := configFields()
	for _, sec := range sections {
		w.Header(2, sec.title)
		w.Paragraph(sec.intro)

		var rows [][]string
		for _, f := range fields {
			if f.Category != sec.category {
				continue
			}
			def, flag := "-", "-"
			if f.Default != "" {
				def = InlineCode(f.Default)
			}
			if f.Flag != "" {
				flag = InlineCode(f.Flag)
			}
			rows = append(rows, []string{InlineCode(f.Name), f.Type, def, flag, f.Description})
		}
		w.Table([]string{"Key", "Type", "Default", "Flag", "Description"}, rows)
	}

	w.Header(2, "Example")
	w.CodeBlock("yaml", `# qmgov.yaml
server_url: https://rqm.example.com:9443
username: jdoe
password: ${RQM_PASSWORD}

project_area_id: Braking Systems
stream_id: Braking Systems Initial Stream

data_governance_TP: 200
data_governance_TC: 5000
data_governance_TS: 300
data_governance_TSuite: 40
data_governance_TCER: 9000

timeout: 30s
report_dir: Reports`)

	filename := filepath.Join(outDir, "configuration.md")
	if err := os.WriteFile(filename, w.Bytes(), 0600); err != nil {
		return errors.Wrap(err, "write configuration.md")
	}
	log.Printf("  Generated configuration.md")
	return nil
}

func quoted(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = InlineCode(n)
	}
	return out
}

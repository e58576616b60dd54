// Package rqm is a client for the subset of the Rational Quality Manager
// REST and OSLC services needed to count test artifacts per project area and
// configuration stream.
package rqm

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// ProjectArea is a top-level organizational unit on the server.
type ProjectArea struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
}

// Stream is a configuration context inside a project area.
type Stream struct {
	Name   string `json:"name" yaml:"name"`
	OSLCID string `json:"oslc_id" yaml:"oslc_id"`
}

// ArtifactKind is a countable kind of test artifact.
type ArtifactKind int

// Artifact kinds, in report order.
const (
	TestPlan ArtifactKind = iota + 1
	TestCase
	TestScript
	TestSuite
	TestCaseExecutionRecord
)

// AllKinds lists every artifact kind in report order.
var AllKinds = []ArtifactKind{TestPlan, TestCase, TestScript, TestSuite, TestCaseExecutionRecord}

var kindInfo = map[ArtifactKind]struct {
	name, noun, plural, code string
}{
	TestPlan:                {"test-plan", "Test Plan", "test plans", "TP"},
	TestCase:                {"test-case", "Test Case", "test cases", "TC"},
	TestScript:              {"test-script", "Test Script", "test scripts", "TS"},
	TestSuite:               {"test-suite", "Test Suite", "test suites", "TSuite"},
	TestCaseExecutionRecord: {"tcer", "Test Case Execution Record", "test case execution records", "TCER"},
}

// String returns the CLI name of the kind, e.g. "test-plan".
func (k ArtifactKind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Noun returns the display name, e.g. "Test Plan".
func (k ArtifactKind) Noun() string { return kindInfo[k].noun }

// Plural returns the lower-case plural used in sentences, e.g. "test plans".
func (k ArtifactKind) Plural() string { return kindInfo[k].plural }

// Code returns the governance limit suffix, e.g. "TP" for data_governance_TP.
func (k ArtifactKind) Code() string { return kindInfo[k].code }

// MarshalText implements encoding.TextMarshaler.
func (k ArtifactKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind resolves a CLI name or governance code to a kind.
func ParseKind(s string) (ArtifactKind, error) {
	s = strings.TrimSpace(s)
	for _, k := range AllKinds {
		info := kindInfo[k]
		if strings.EqualFold(s, info.name) || strings.EqualFold(s, info.code) {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown artifact kind %q (expected one of %s)", s, strings.Join(KindNames(), ", "))
}

// KindNames returns the CLI names of all kinds.
func KindNames() []string {
	names := make([]string, len(AllKinds))
	for i, k := range AllKinds {
		names[i] = k.String()
	}
	return names
}

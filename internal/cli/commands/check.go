package commands

import (
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qmgov/internal/cli/config"
	"github.com/leapstack-labs/qmgov/internal/cli/output"
	"github.com/leapstack-labs/qmgov/internal/governance"
	"github.com/leapstack-labs/qmgov/internal/report"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	FailOnExceed bool
	NoLog        bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare artifact counts with the governance limits",
		Long: `Count the test plans, test cases, test scripts, test suites and test case
execution records of a project area stream and compare each count with its
configured limit (data_governance_TP, _TC, _TS, _TSuite, _TCER).

Counts are fetched one after another. A count that cannot be fetched is
reported as 0 with its error; the check continues with the next kind.
Unless report_dir is empty, a session log is written to
{report_dir}/{project area}_{YYYYMMDD_HHMMSS}.txt.`,
		Example: `  qmgov check --project-area "Braking Systems" --stream "Initial Stream"
  qmgov check -o json --fail-on-exceed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}

	addSelectionFlags(cmd, true)
	cmd.Flags().BoolVar(&opts.FailOnExceed, "fail-on-exceed", false, "Exit with code 4 when a count exceeds its limit")
	cmd.Flags().BoolVar(&opts.NoLog, "no-log", false, "Do not write the session log")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	if err := config.FromContext(cmd.Context()).ValidateLimits(); err != nil {
		return WithCode(ExitConfig, err)
	}

	cc, cleanup, err := Connect(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	area, err := cc.resolveArea(cmd)
	if err != nil {
		return err
	}
	stream, err := cc.resolveStream(cmd, area)
	if err != nil {
		return err
	}

	checker := governance.NewChecker(cc.Session, cc.Cfg.Limits(), cc.Logger)
	results, err := checker.Check(cmd.Context(), area, stream)
	if err != nil {
		return err
	}

	rep := &governance.Report{
		SessionID:   cc.Session.ID,
		GeneratedAt: cc.Session.Now(),
		Server:      cc.Client.Server(),
		ProjectArea: area,
		Stream:      stream,
		Results:     results,
		Incidents:   cc.Session.Incidents(),
	}

	if !opts.NoLog && cc.Cfg.ReportDir != "" {
		path, err := writeSessionLog(cc, rep)
		if err != nil {
			cc.Renderer.Warning(err.Error())
		} else {
			_, _ = fmt.Fprintf(cc.Renderer.ErrWriter(), "Session log: %s\n", path)
		}
	}

	if err := renderReport(cc, rep); err != nil {
		return err
	}

	if opts.FailOnExceed && !rep.AllWithinLimit() {
		return WithCode(ExitLimitExceeded, errors.Errorf("%d governance limit(s) exceeded", len(rep.Exceeded())))
	}
	return nil
}

func writeSessionLog(cc *CommandContext, rep *governance.Report) (string, error) {
	log, err := report.Open(cc.Cfg.ReportDir, rep.ProjectArea.Name, cc.Session.Now)
	if err != nil {
		return "", err
	}
	if err := log.WriteReport(rep); err != nil {
		_ = log.Close()
		return "", err
	}
	return log.Path(), log.Close()
}

func renderReport(cc *CommandContext, rep *governance.Report) error {
	r := cc.Renderer
	if done, err := r.Structured(rep); done || err != nil {
		return err
	}

	tbl := resultTable(rep.Results)
	if r.EffectiveMode() == output.ModeCSV {
		r.Table(tbl)
		return nil
	}

	r.Header(1, "Governance Check")
	keyValue(r, "Project Area", rep.ProjectArea.Name+" ("+rep.ProjectArea.ID+")")
	if rep.Stream.OSLCID != "" {
		keyValue(r, "Stream", rep.Stream.Name+" ("+rep.Stream.OSLCID+")")
	} else {
		keyValue(r, "Stream", "none")
	}
	keyValue(r, "Session", rep.SessionID)
	r.Println("")

	r.Table(tbl)

	for _, res := range rep.Results {
		if res.Verdict.WithinLimit {
			r.Success(res.Summary())
		} else {
			r.Failure(res.Summary())
		}
	}
	r.Println("")

	for _, inc := range rep.Incidents {
		r.Warning(inc.Message())
	}

	switch {
	case rep.AllWithinLimit() && rep.Incomplete():
		r.Success("All counts are within their governance limits, but some requests failed.")
	case rep.AllWithinLimit():
		r.Success("All counts are within their governance limits.")
	default:
		r.Failure(fmt.Sprintf("%d of %d counts exceed their governance limits.", len(rep.Exceeded()), len(rep.Results)))
	}
	return nil
}

func resultTable(results []governance.Result) output.Table {
	rows := make([][]string, len(results))
	for i, res := range results {
		rows[i] = []string{
			res.Kind.Noun(),
			strconv.Itoa(res.Count),
			strconv.Itoa(res.Limit),
			res.Status(),
			strconv.Itoa(res.Verdict.Remaining()),
			strconv.Itoa(res.Verdict.Exceeded()),
		}
	}
	return output.Table{
		Header: []string{"Artifact", "Count", "Limit", "Status", "Remaining", "Exceeded"},
		Rows:   rows,
	}
}

func keyValue(r *output.Renderer, key, value string) {
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue(key, value))
		return
	}
	r.Println(r.Styles().Bold.Render(key+":") + " " + value)
}

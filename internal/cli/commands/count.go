package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qmgov/internal/cli/output"
	"github.com/leapstack-labs/qmgov/internal/governance"
	"github.com/leapstack-labs/qmgov/internal/rqm"
)

// CountOptions holds options for the count command.
type CountOptions struct {
	OSLC bool
}

type countResult struct {
	Kind        rqm.ArtifactKind    `json:"kind" yaml:"kind"`
	Source      string              `json:"source" yaml:"source"`
	ProjectArea rqm.ProjectArea     `json:"project_area" yaml:"project_area"`
	Stream      *rqm.Stream         `json:"stream,omitempty" yaml:"stream,omitempty"`
	Count       int                 `json:"count" yaml:"count"`
	Limit       *int                `json:"limit,omitempty" yaml:"limit,omitempty"`
	Verdict     *governance.Verdict `json:"verdict,omitempty" yaml:"verdict,omitempty"`
}

// NewCountCommand creates the count command.
func NewCountCommand() *cobra.Command {
	opts := &CountOptions{}

	cmd := &cobra.Command{
		Use:   "count <kind>",
		Short: "Count one kind of test artifact",
		Long: `Count one kind of test artifact in a project area stream. Kinds are
` + strings.Join(rqm.KindNames(), ", ") + `; the governance codes TP, TC, TS,
TSuite and TCER are accepted too.

With --oslc the count comes from the OSLC query service of the project area
instead of the reportable REST services; streams do not apply there.

When a limit is configured for the kind, the verdict is shown as well.`,
		Example: `  qmgov count test-case -p "Braking Systems" -s "Initial Stream"
  qmgov count TC --oslc -p "Braking Systems"`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: rqm.KindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := rqm.ParseKind(args[0])
			if err != nil {
				return WithCode(ExitConfig, err)
			}
			return runCount(cmd, kind, opts)
		},
	}

	addSelectionFlags(cmd, true)
	cmd.Flags().BoolVar(&opts.OSLC, "oslc", false, "Count through the OSLC query service")

	return cmd
}

func runCount(cmd *cobra.Command, kind rqm.ArtifactKind, opts *CountOptions) error {
	cc, cleanup, err := Connect(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	area, err := cc.resolveArea(cmd)
	if err != nil {
		return err
	}

	res := countResult{Kind: kind, Source: "rest", ProjectArea: area}
	if opts.OSLC {
		res.Source = "oslc"
		res.Count, err = cc.Session.OSLCCount(ctx, kind, area.ID)
	} else {
		var stream rqm.Stream
		stream, err = cc.resolveStream(cmd, area)
		if err != nil {
			return err
		}
		if stream.OSLCID != "" {
			res.Stream = &stream
		}
		res.Count, err = cc.Session.Count(ctx, kind, area.ID, stream.OSLCID)
	}
	if err != nil {
		return err
	}

	if limit, ok := cc.Cfg.Limits().Limit(kind); ok {
		v := governance.Evaluate(res.Count, limit)
		res.Limit, res.Verdict = &limit, &v
	}

	return renderCount(cc, res)
}

func renderCount(cc *CommandContext, res countResult) error {
	r := cc.Renderer
	if done, err := r.Structured(res); done || err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeCSV {
		row := []string{res.Kind.String(), res.ProjectArea.ID, "", strconv.Itoa(res.Count), "", ""}
		if res.Stream != nil {
			row[2] = res.Stream.OSLCID
		}
		if res.Verdict != nil {
			row[4] = strconv.Itoa(*res.Limit)
			row[5] = governance.NewResult(res.Kind, res.Count, *res.Limit).Status()
		}
		r.Table(output.Table{
			Header: []string{"Kind", "Project Area", "Stream", "Count", "Limit", "Status"},
			Rows:   [][]string{row},
		})
		return nil
	}

	if res.Verdict == nil {
		keyValue(r, output.Title(res.Kind.Plural()), strconv.Itoa(res.Count))
		return nil
	}

	gr := governance.NewResult(res.Kind, res.Count, *res.Limit)
	for _, line := range gr.Messages()[1:] {
		r.Println(line)
	}
	if gr.Verdict.WithinLimit {
		r.Success(gr.Summary())
	} else {
		r.Failure(gr.Summary())
	}
	return nil
}

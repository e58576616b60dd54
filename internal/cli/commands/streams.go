package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qmgov/internal/cli/output"
	"github.com/leapstack-labs/qmgov/internal/rqm"
)

// NewStreamsCommand creates the streams command.
func NewStreamsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streams",
		Short: "List the streams of a project area",
		Long: `List the configuration streams of a project area. The area is given by
name or id with --project-area, or taken from project_area_id.`,
		Example: `  qmgov streams --project-area "Braking Systems"
  qmgov streams -p _Lx7fEHaQEeeHQLB3qMZX2g -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := Connect(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			area, err := cc.resolveArea(cmd)
			if err != nil {
				return err
			}
			streams, err := cc.Session.Streams(cmd.Context(), area.ID)
			if err != nil {
				return err
			}
			return renderStreams(cc, area, streams)
		},
	}
	addSelectionFlags(cmd, false)
	return cmd
}

type streamList struct {
	ProjectArea rqm.ProjectArea `json:"project_area" yaml:"project_area"`
	Streams     []rqm.Stream    `json:"streams" yaml:"streams"`
}

func renderStreams(cc *CommandContext, area rqm.ProjectArea, streams []rqm.Stream) error {
	r := cc.Renderer
	if done, err := r.Structured(streamList{ProjectArea: area, Streams: streams}); done || err != nil {
		return err
	}

	rows := make([][]string, len(streams))
	for i, st := range streams {
		rows[i] = []string{st.Name, st.OSLCID}
	}
	tbl := output.Table{Header: []string{"Stream", "OSLC ID"}, Rows: rows}
	if r.EffectiveMode() == output.ModeCSV {
		r.Table(tbl)
		return nil
	}

	r.Header(1, "Streams of "+area.Name)
	if len(streams) == 0 {
		warnIncidents(cc)
		r.Println("No streams found.")
		return nil
	}
	tbl.Footer = []string{"Total", strconv.Itoa(len(streams))}
	r.Table(tbl)
	warnIncidents(cc)
	return nil
}

package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qmgov/internal/cli/output"
	"github.com/leapstack-labs/qmgov/internal/rqm"
)

// NewAreasCommand creates the areas command.
func NewAreasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "areas",
		Short: "List project areas",
		Long:  `List the project areas visible to the configured user, with their ids.`,
		Example: `  qmgov areas
  qmgov areas -o csv > areas.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := Connect(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			areas, err := cc.Session.ProjectAreas(cmd.Context())
			if err != nil {
				return err
			}
			return renderAreas(cc, areas)
		},
	}
}

func renderAreas(cc *CommandContext, areas []rqm.ProjectArea) error {
	r := cc.Renderer
	if done, err := r.Structured(areas); done || err != nil {
		return err
	}

	rows := make([][]string, len(areas))
	for i, a := range areas {
		rows[i] = []string{a.Name, a.ID}
	}
	tbl := output.Table{Header: []string{"Project Area", "ID"}, Rows: rows}
	if r.EffectiveMode() == output.ModeCSV {
		r.Table(tbl)
		return nil
	}

	r.Header(1, "Project Areas")
	if len(areas) == 0 {
		warnIncidents(cc)
		r.Println("No project areas found.")
		return nil
	}
	tbl.Footer = []string{"Total", strconv.Itoa(len(areas))}
	r.Table(tbl)
	warnIncidents(cc)
	return nil
}

// warnIncidents prints the fetch errors that were downgraded during the
// command.
func warnIncidents(cc *CommandContext) {
	for _, inc := range cc.Session.Incidents() {
		cc.Renderer.Warning(inc.Message())
	}
}

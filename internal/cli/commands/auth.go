package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qmgov/internal/cli/output"
)

// NewAuthCommand creates the auth command.
func NewAuthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Check the configured credentials against the server",
		Long: `Log in to the configured RQM server and report whether the credentials
were accepted. Every other network command performs the same check first.`,
		Example: `  qmgov auth --server https://rqm.example.com:9443 --user jdoe`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd)
		},
	}
}

func runAuth(cmd *cobra.Command) error {
	cc, cleanup, err := Dial(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res := cc.Session.Authenticate(cmd.Context())
	r := cc.Renderer

	done, err := r.Structured(res)
	if err != nil {
		return err
	}
	if !done {
		switch r.EffectiveMode() {
		case output.ModeCSV:
			r.Table(output.Table{
				Header: []string{"Server", "Username", "Status", "HTTP Status"},
				Rows:   [][]string{{res.Server, res.Username, res.Status.String(), httpStatus(res.StatusCode)}},
			})
		default:
			if res.OK() {
				r.Success(res.Message())
			} else {
				r.Failure(res.Message())
			}
		}
	}

	if !res.OK() {
		return WithCode(ExitAuth, authError(res))
	}
	return nil
}

func httpStatus(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}

package commands

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/leapstack-labs/qmgov/internal/cli/config"
	"github.com/leapstack-labs/qmgov/internal/cli/output"
	"github.com/leapstack-labs/qmgov/internal/rqm"
	"github.com/leapstack-labs/qmgov/internal/session"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Client   *rqm.Client
	Session  *session.Session
}

// NewCommandContext creates a CommandContext without a server connection.
// Useful for commands that don't talk to RQM.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.FromContext(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	mode, err := output.ParseMode(cfg.OutputFormat)
	if err != nil {
		mode = output.ModeAuto
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}
}

// Dial creates a CommandContext with a client and session but does not
// check the credentials. Returns the context and a cleanup function that
// must be called (typically via defer).
func Dial(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc := NewCommandContext(cmd)

	if err := cc.Cfg.ValidateServer(); err != nil {
		return nil, nil, WithCode(ExitConfig, err)
	}
	if err := promptCredentials(cmd.InOrStdin(), cmd.ErrOrStderr(), cc.Cfg); err != nil {
		return nil, nil, WithCode(ExitConfig, err)
	}

	opts := cc.Cfg.ClientOptions()
	opts.Logger = cc.Logger
	client, err := rqm.New(opts)
	if err != nil {
		return nil, nil, WithCode(ExitConfig, err)
	}

	cc.Client = client
	cc.Session = session.New(client, session.WithLogger(cc.Logger))
	cc.Logger.Debug("session started", "session", cc.Session.ID, "server", client.Server(), "user", client.Username())

	return cc, client.Close, nil
}

// Connect is Dial followed by a credential check. A rejected or unreachable
// login ends the command with ExitAuth.
func Connect(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc, cleanup, err := Dial(cmd)
	if err != nil {
		return nil, nil, err
	}

	res := cc.Session.Authenticate(cmd.Context())
	if !res.OK() {
		cleanup()
		return nil, nil, WithCode(ExitAuth, authError(res))
	}
	return cc, cleanup, nil
}

func authError(res rqm.AuthResult) error {
	if res.Err != nil && res.Status != rqm.AuthRejected {
		return errors.Wrap(res.Err, "server unreachable")
	}
	return errors.Errorf("login failed for %s on %s\nHint: check username and password", res.Username, res.Server)
}

// promptCredentials asks for a missing username or password when stdin is a
// terminal. The password is read without echo.
func promptCredentials(in io.Reader, prompt io.Writer, cfg *config.Config) error {
	if cfg.Username != "" && cfg.Password != "" {
		return nil
	}

	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) { //nolint:gosec // file descriptors fit in int
		return errors.New("username and password are required\nHint: set them in the config file or QMGOV_USERNAME / QMGOV_PASSWORD, or run on a terminal to be prompted")
	}

	if cfg.Username == "" {
		_, _ = fmt.Fprint(prompt, "Username: ")
		line, err := bufio.NewReader(f).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return errors.Wrap(err, "read username")
		}
		cfg.Username = strings.TrimSpace(line)
		if cfg.Username == "" {
			return errors.New("username is required")
		}
	}

	if cfg.Password == "" {
		_, _ = fmt.Fprint(prompt, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // file descriptors fit in int
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return errors.Wrap(err, "read password")
		}
		cfg.Password = string(pw)
	}
	return nil
}

// resolveArea picks the project area named by --project-area or
// project_area_id.
func (cc *CommandContext) resolveArea(cmd *cobra.Command) (rqm.ProjectArea, error) {
	ref := strings.TrimSpace(cc.Cfg.ProjectAreaID)
	if ref == "" {
		return rqm.ProjectArea{}, WithCode(ExitConfig, errors.New("no project area selected\nHint: pass --project-area or set project_area_id; `qmgov areas` lists them"))
	}
	area, err := cc.Session.ResolveArea(cmd.Context(), ref)
	if err != nil {
		return rqm.ProjectArea{}, selectionError(err, "list project areas")
	}
	return area, nil
}

// resolveStream picks the stream named by --stream or stream_id. Without
// one, an area with a single stream uses it and an area without streams is
// counted without a configuration context. A failed stream listing is an
// error, never taken for an area without streams.
func (cc *CommandContext) resolveStream(cmd *cobra.Command, area rqm.ProjectArea) (rqm.Stream, error) {
	ctx := cmd.Context()
	if ref := strings.TrimSpace(cc.Cfg.StreamID); ref != "" {
		st, err := cc.Session.ResolveStream(ctx, area.ID, ref)
		if err != nil {
			return rqm.Stream{}, selectionError(err, "list streams of "+area.Name)
		}
		return st, nil
	}

	streams, err := cc.Session.Streams(ctx, area.ID)
	if err != nil {
		return rqm.Stream{}, errors.Wrapf(err, "list streams of %s", area.Name)
	}
	switch len(streams) {
	case 0:
		cc.Logger.Warn("project area has no streams, counting without a configuration context", "area", area.Name)
		return rqm.Stream{}, nil
	case 1:
		return streams[0], nil
	default:
		names := make([]string, len(streams))
		for i, st := range streams {
			names[i] = st.Name
		}
		return rqm.Stream{}, WithCode(ExitConfig, errors.Errorf(
			"project area %q has %d streams (%s)\nHint: pass --stream or set stream_id",
			area.Name, len(streams), strings.Join(names, ", ")))
	}
}

// selectionError maps a resolution error to its exit code. A name that
// does not match is a configuration error; a listing that could not be
// fetched keeps the generic code.
func selectionError(err error, op string) error {
	if rqm.IsTransport(err) || rqm.IsParse(err) {
		return errors.Wrap(err, op)
	}
	return WithCode(ExitConfig, err)
}

// addSelectionFlags registers --project-area and --stream.
func addSelectionFlags(cmd *cobra.Command, withStream bool) {
	cmd.Flags().StringP("project-area", "p", "", "Project area name or id (default: project_area_id)")
	if withStream {
		cmd.Flags().StringP("stream", "s", "", "Stream name or OSLC id (default: stream_id)")
	}
}

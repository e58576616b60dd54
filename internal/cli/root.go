// Package cli provides the command-line interface for qmgov.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qmgov/internal/cli/commands"
	"github.com/leapstack-labs/qmgov/internal/cli/config"
	"github.com/leapstack-labs/qmgov/internal/cli/output"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "qmgov",
		Short: "qmgov - RQM data-governance checker",
		Long: `qmgov counts the test artifacts of a Rational Quality Manager project area
stream and compares each count with a configured governance limit.

Settings are read from qmgov.yaml, qmgov.yml or config.json in the working
directory (or --config), then QMGOV_* environment variables, then flags.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return commands.WithCode(commands.ExitConfig, err)
			}
			if err := cfg.Validate(); err != nil {
				return commands.WithCode(commands.ExitConfig, err)
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.Verbose)
			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if cfg.Verbose && cfg.ConfigFile != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", cfg.ConfigFile)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Data-governance checker for Rational Quality Manager
`)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return commands.WithCode(commands.ExitConfig, err)
	})

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./qmgov.yaml, ./qmgov.yml or ./config.json)")
	pf.String("server", "", "RQM server URL, e.g. https://rqm.example.com:9443")
	pf.StringP("user", "u", "", "Username (password from config, QMGOV_PASSWORD or prompt)")
	pf.Bool("insecure", false, "Skip TLS certificate verification")
	pf.Duration("timeout", 0, "Per-request timeout (default 30s)")
	pf.Int("retries", 0, "Retries of a failed request (default 2)")
	pf.String("report-dir", "", "Directory for session logs; empty disables them (default \"Reports\")")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringP("output", "o", "", "Output format (auto|text|markdown|json|yaml|csv)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		modes := make([]string, len(output.Modes))
		for i, m := range output.Modes {
			modes[i] = string(m)
		}
		return modes, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewAuthCommand())
	rootCmd.AddCommand(commands.NewAreasCommand())
	rootCmd.AddCommand(commands.NewStreamsCommand())
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewCountCommand())
	rootCmd.AddCommand(commands.NewInventoryCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	return run(ctx, NewRootCmd(), os.Stderr)
}

func run(ctx context.Context, rootCmd *cobra.Command, errOut io.Writer) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		output.NewRenderer(errOut, errOut, output.ModeAuto).Error(err.Error())
		return commands.ExitCode(err)
	}
	return commands.ExitOK
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for qmgov.

To load completions:

Bash:
  $ source <(qmgov completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ qmgov completion bash > /etc/bash_completion.d/qmgov
  # macOS:
  $ qmgov completion bash > $(brew --prefix)/etc/bash_completion.d/qmgov

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ qmgov completion zsh > "${fpath[1]}/_qmgov"

Fish:
  $ qmgov completion fish | source

PowerShell:
  PS> qmgov completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}

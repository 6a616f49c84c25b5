package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"go.olrik.dev/wprsctl/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	rootCmd := &cobra.Command{
		Use:   "wprsctl",
		Short: "wprsctl - remote Wayland session launcher",
		Long: `wprsctl - remote Wayland session launcher

wprsctl maintains a multiplexed ssh connection to a remote host,
forwards the session sockets across it, supervises the local wprsc
companion process, and runs commands in the prepared remote session.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
		},
	}

	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", core.DefaultConfigPath(), "config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewAttachCommand(),
		NewDetachCommand(),
		NewRunCommand(),
		NewStatusCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}

func setupLogging(verbose int) {
	level := slog.LevelInfo
	if verbose > 0 {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	})
	slog.SetDefault(slog.New(handler))
}

// loadConfig builds the explicit Config value every command hands to
// the session components.
func loadConfig(cmd *cobra.Command) (*core.Config, error) {
	configPath, err := cmd.Flags().GetString("config-path")
	if err != nil {
		return nil, err
	}
	verbose, err := cmd.Flags().GetCount("verbose")
	if err != nil {
		return nil, err
	}
	return core.Load(configPath, verbose)
}

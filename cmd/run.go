package cmd

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"go.olrik.dev/wprsctl/internal/session"
)

func NewRunCommand() *cobra.Command {
	var extraEnv []string

	runCmd := &cobra.Command{
		Use:   "run <destination> -- <command> [args...]",
		Short: "Run a command in the remote session",
		Long: `Run a command in the remote session.

Attaches first, then executes the command on the remote host with the
session environment (display, audio and agent socket variables set up
by attach), streaming its stdio to this terminal.`,
		Args:              cobra.MinimumNArgs(2),
		ValidArgsFunction: sshHostCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			destination := args[0]
			remoteArgv := args[1:]

			cfg, err := loadConfig(cmd)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			orch, err := session.New(cfg, destination)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			defer orch.Close()

			if err := orch.RunCommand(remoteArgv, extraEnv); err != nil {
				// Pass the remote command's own exit status through
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					os.Exit(exitErr.ExitCode())
				}
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}

	runCmd.Flags().StringArrayVarP(&extraEnv, "env", "e", nil,
		"extra environment variable for the remote command (K=V, repeatable)")

	return runCmd
}

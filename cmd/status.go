package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"go.olrik.dev/wprsctl/internal/session"
)

func NewStatusCommand() *cobra.Command {
	var watch bool

	statusCmd := &cobra.Command{
		Use:   "status <destination>",
		Short: "Show session status",
		Long: `Show the session's identity, resource paths, transport liveness,
companion process and recent events. With --watch, re-render whenever
a session resource file changes.`,
		Aliases:           []string{"s"},
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: sshHostCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			destination := args[0]

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

			renderStatus(orch, destination)

			if watch {
				if err := watchStatus(orch, destination); err != nil {
					slog.Error(err.Error())
					os.Exit(1)
				}
			}
		},
	}

	statusCmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-render on session file changes")

	return statusCmd
}

func renderStatus(orch *session.Orchestrator, destination string) {
	paths := orch.Paths()

	fmt.Printf("Destination:    %s\n", destination)
	fmt.Printf("Session:        %s\n", orch.Identity())
	fmt.Printf("Data socket:    %s\n", paths.DataSocket)
	fmt.Printf("Control socket: %s\n", paths.ControlSocket)

	if orch.TransportAlive() {
		fmt.Println("Transport:      running")
	} else {
		fmt.Println("Transport:      not running")
	}

	if rec := orch.CurrentProcess(); rec != nil {
		fmt.Printf("Companion:      running (PID %d)\n", rec.Pid)
	} else {
		fmt.Println("Companion:      not running")
	}

	events, err := orch.RecentEvents(5)
	if err != nil {
		slog.Debug("Failed to read session events", "error", err)
		return
	}
	if len(events) > 0 {
		fmt.Println("Recent events:")
		for _, e := range events {
			line := fmt.Sprintf("  %s  %s", e.Timestamp.Format(time.DateTime), e.EventType)
			if e.Details != "" {
				line += "  " + e.Details
			}
			fmt.Println(line)
		}
	}
}

// watchStatus re-renders whenever one of this session's resource files
// changes, until interrupted. Events are debounced because socket
// creation and pid-file writes arrive in bursts.
func watchStatus(orch *session.Orchestrator, destination string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	paths := orch.Paths()
	if err := watcher.Add(paths.RuntimeDir); err != nil {
		return fmt.Errorf("failed to watch runtime directory: %w", err)
	}

	prefix := filepath.Join(paths.RuntimeDir, "wprsc-"+orch.Identity().String())

	var pending bool
	debounce := time.NewTimer(0)
	<-debounce.C

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(event.Name, prefix) {
				continue
			}
			if !pending {
				pending = true
				debounce.Reset(500 * time.Millisecond)
			}
		case <-debounce.C:
			if pending {
				pending = false
				fmt.Println()
				renderStatus(orch, destination)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Debug("Watcher error", "error", err)
		}
	}
}

package session

import (
	"log/slog"
	"slices"
)

// Reconciler compares the desired companion invocation against the
// currently supervised process and restarts only on drift. Repeated
// attach operations against an unchanged session are no-ops.
type Reconciler struct {
	sup *Supervisor
}

func NewReconciler(sup *Supervisor) *Reconciler {
	return &Reconciler{sup: sup}
}

// Reconcile reports whether a restart occurred. A restart is required
// when no live process exists, when the live command line differs from
// argv anywhere, or when any desired env key is missing or mismatched
// in the live environment. Extra live env keys are ignored so
// unrelated drift never forces a restart.
func (r *Reconciler) Reconcile(argv []string, env map[string]string) (bool, error) {
	current := r.sup.Current()
	if current != nil && slices.Equal(current.Cmdline, argv) && envMatches(current.Environ, env) {
		slog.Debug("Companion already running with desired invocation", "pid", current.Pid)
		return false, nil
	}

	if current != nil {
		slog.Info("Companion invocation drifted, restarting", "pid", current.Pid)
	}
	if err := r.sup.Stop(); err != nil {
		return false, err
	}
	if _, err := r.sup.Start(argv, env); err != nil {
		return true, err
	}
	return true, nil
}

func envMatches(live, desired map[string]string) bool {
	for k, v := range desired {
		if live[k] != v {
			return false
		}
	}
	return true
}

package cmd

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	want := []string{"attach", "detach", "run", "status", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %q, got %v (err %v)", name, cmd, err)
		}
	}
}

func TestRootCommand_Aliases(t *testing.T) {
	root := NewRootCommand()

	for alias, name := range map[string]string{"a": "attach", "d": "detach"} {
		cmd, _, err := root.Find([]string{alias})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected alias %q to resolve to %q, got %v (err %v)", alias, name, cmd, err)
		}
	}
}

func TestCollectHostAliases(t *testing.T) {
	dir := t.TempDir()

	included := filepath.Join(dir, "extra.conf")
	if err := os.WriteFile(included, []byte("Host included-host\n    HostName 10.0.0.1\n"), 0o600); err != nil {
		t.Fatalf("failed to write included config: %v", err)
	}

	config := filepath.Join(dir, "config")
	content := `# comment line
Host workstation
    HostName work.example.com

Host db-* !db-prod
Host alpha beta
Include ` + included + `
`
	if err := os.WriteFile(config, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	seen := make(map[string]bool)
	var hosts []string
	collectHostAliases(config, seen, &hosts, make(map[string]bool))
	slices.Sort(hosts)

	want := []string{"alpha", "beta", "included-host", "workstation"}
	if !slices.Equal(hosts, want) {
		t.Errorf("expected hosts %v, got %v", want, hosts)
	}
}

func TestCollectHostAliases_IncludeCycle(t *testing.T) {
	dir := t.TempDir()

	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	os.WriteFile(a, []byte("Host from-a\nInclude "+b+"\n"), 0o600)
	os.WriteFile(b, []byte("Host from-b\nInclude "+a+"\n"), 0o600)

	seen := make(map[string]bool)
	var hosts []string
	collectHostAliases(a, seen, &hosts, make(map[string]bool))
	slices.Sort(hosts)

	want := []string{"from-a", "from-b"}
	if !slices.Equal(hosts, want) {
		t.Errorf("expected cycle-safe traversal to find %v, got %v", want, hosts)
	}
}

func TestCollectHostAliases_MissingFile(t *testing.T) {
	seen := make(map[string]bool)
	var hosts []string
	collectHostAliases(filepath.Join(t.TempDir(), "nope"), seen, &hosts, make(map[string]bool))

	if len(hosts) != 0 {
		t.Errorf("expected no hosts from a missing file, got %v", hosts)
	}
}

package cmd

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// sshHostCompletionFunc completes destination arguments with the host
// aliases from the user's ssh config, following Include directives.
func sshHostCompletionFunc(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	seen := make(map[string]bool)
	var hosts []string
	collectHostAliases(filepath.Join(home, ".ssh", "config"), seen, &hosts, make(map[string]bool))

	sort.Strings(hosts)
	return hosts, cobra.ShellCompDirectiveNoFileComp
}

// collectHostAliases scans one ssh config file for Host aliases,
// recursing into Include globs. Wildcard patterns and comments are
// skipped; visited guards against include cycles.
func collectHostAliases(path string, seen map[string]bool, hosts *[]string, visited map[string]bool) {
	abs, err := filepath.Abs(path)
	if err != nil || visited[abs] {
		return
	}
	visited[abs] = true

	content, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(content), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		switch {
		case strings.EqualFold(fields[0], "Host"):
			for _, alias := range fields[1:] {
				if strings.HasPrefix(alias, "#") {
					break
				}
				if strings.ContainsAny(alias, "*?!") {
					continue
				}
				if !seen[alias] {
					seen[alias] = true
					*hosts = append(*hosts, alias)
				}
			}
		case strings.EqualFold(fields[0], "Include"):
			pattern := fields[1]
			if strings.HasPrefix(pattern, "~/") {
				if home, err := os.UserHomeDir(); err == nil {
					pattern = filepath.Join(home, pattern[2:])
				}
			} else if !filepath.IsAbs(pattern) {
				pattern = filepath.Join(filepath.Dir(path), pattern)
			}
			matches, err := filepath.Glob(pattern)
			if err != nil {
				continue
			}
			for _, match := range matches {
				collectHostAliases(match, seen, hosts, visited)
			}
		}
	}
}

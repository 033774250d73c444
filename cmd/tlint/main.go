// Package main provides the CLI for tlint.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"

	"github.com/jmylchreest/tlint/internal/version"
	"github.com/jmylchreest/tlint/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	// Find the project root (git root or cwd).
	projectRoot := findProjectRoot()

	cfg, err := config.Load(projectRoot)
	if err != nil {
		fatal("config: %v", err)
	}

	if err := runCommand(cmd, projectRoot, cfg, args); err != nil {
		fatal("%v", err)
	}
}

func runCommand(cmd, root string, cfg config.Config, args []string) error {
	switch cmd {
	case "lint":
		return cmdLint(root, cfg, args)
	case "daemon":
		return cmdDaemon(root, cfg, args)
	case "cache":
		return cmdCache(cfg, args)
	case "rules":
		return cmdRules(cfg, args)
	case "help", "-h", "--help":
		printUsage()
		return nil
	case "version", "-v", "--version":
		return cmdVersion(args)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func cmdVersion(args []string) error {
	if hasFlag(args, "--json") {
		fmt.Println(version.JSON())
	} else {
		fmt.Println(version.String())
	}
	return nil
}

func printUsage() {
	fmt.Printf(`tlint %s - incremental text linter daemon for editors

Usage:
  tlint <command> [arguments]

Commands:
  lint       Analyze files once and print findings (table, or --json)
  daemon     Start the HTTP daemon (editor push API + decoration websocket)
  cache      Inspect the running daemon's caches (stats, clear)
  rules      List the active rule catalog
  version    Show version information

Environment:
  TLINT_ADDR               Daemon listen address (default: 127.0.0.1:8537)
  TLINT_DATADIR            Findings store directory (default: .tlint)
  TLINT_EXTENSIONS         Extra document extensions, comma-separated

Examples:
  tlint lint README.md docs/
  tlint lint --json docs/guide.md
  tlint daemon --watch
  tlint cache stats
  tlint rules list
`, version.Short())
}

// findProjectRoot finds the git worktree root, or falls back to cwd.
func findProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}

	repo, err := git.PlainOpenWithOptions(cwd, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		if wt, err := repo.Worktree(); err == nil {
			return wt.Filesystem.Root()
		}
	}

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/olekukonko/tablewriter"

	"github.com/jmylchreest/tlint/pkg/config"
	"github.com/jmylchreest/tlint/pkg/engine"
	"github.com/jmylchreest/tlint/pkg/ignorefile"
	"github.com/jmylchreest/tlint/pkg/lint"
	"github.com/jmylchreest/tlint/pkg/rules"
	"github.com/jmylchreest/tlint/pkg/rules/preset"
	"github.com/jmylchreest/tlint/pkg/watcher"
)

// cmdLint analyzes the given files or directories once and prints the
// findings.
func cmdLint(root string, cfg config.Config, args []string) error {
	paths := positional(args)
	if len(paths) == 0 {
		paths = []string{root}
	}

	ignore, err := ignorefile.Load(root)
	if err != nil {
		return fmt.Errorf("read %s: %w", ignorefile.FileName, err)
	}

	files, err := collectDocuments(root, cfg, ignore, paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no documents found in %v", paths)
	}

	loader := rules.NewLoader(preset.Sources()...)
	eng := engine.New(engine.Config{Settings: cfg.Rules}, loader)

	ctx := context.Background()
	var all []*lint.Finding
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			continue
		}
		display := path
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			display = rel
		}
		findings, err := eng.Analyze(ctx, lint.NewSnapshot(display, string(data)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "analysis failed for %s: %v\n", display, err)
			continue
		}
		all = append(all, findings...)
	}

	if hasFlag(args, "--json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if all == nil {
			all = []*lint.Finding{}
		}
		if err := enc.Encode(all); err != nil {
			return err
		}
	} else {
		printFindingsTable(all)
	}

	errorCount := 0
	for _, f := range all {
		if f.Severity == lint.SevError {
			errorCount++
		}
	}
	if errorCount > 0 {
		return fmt.Errorf("%d error-severity findings", errorCount)
	}
	return nil
}

func printFindingsTable(findings []*lint.Finding) {
	if len(findings) == 0 {
		fmt.Println("no findings")
		return
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Location", "Severity", "Rule", "Message")
	for _, f := range findings {
		table.Append(
			fmt.Sprintf("%s:%d:%d", f.DocumentPath, f.Line, f.Column),
			f.Severity,
			f.RuleID,
			f.Message,
		)
	}
	table.Render()
	fmt.Printf("%d findings\n", len(findings))
}

// collectDocuments expands paths into the list of lintable files,
// honoring the watched extension set, the configured ignore globs and the
// project's ignore file.
func collectDocuments(root string, cfg config.Config, ignore *ignorefile.Matcher, paths []string) ([]string, error) {
	exts := make(map[string]bool)
	for k, v := range watcher.DefaultExtensions {
		exts[k] = v
	}
	for _, e := range cfg.Extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[strings.ToLower(e)] = true
	}

	ignored := func(path string) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = path
		}
		for _, pattern := range cfg.Ignore {
			if ok, err := doublestar.Match(pattern, filepath.ToSlash(rel)); err == nil && ok {
				return true
			}
		}
		return ignore.Ignored(rel)
	}

	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}

		if !info.IsDir() {
			if !ignored(p) {
				files = append(files, p)
			}
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				name := d.Name()
				if watcher.DefaultSkipDirs[name] || (len(name) > 1 && name[0] == '.') {
					return filepath.SkipDir
				}
				return nil
			}
			if !exts[strings.ToLower(filepath.Ext(path))] || ignored(path) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

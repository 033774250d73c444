package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/jmylchreest/tlint/pkg/config"
	"github.com/jmylchreest/tlint/pkg/rules"
	"github.com/jmylchreest/tlint/pkg/rules/preset"
)

// cmdRules lists the rule catalog the current settings produce.
func cmdRules(cfg config.Config, args []string) error {
	if len(args) < 1 || args[0] != "list" {
		return fmt.Errorf("usage: tlint rules list")
	}

	loader := rules.NewLoader(preset.Sources()...)
	catalog, err := loader.LoadRules(context.Background(), cfg.Rules)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Rule", "Source")
	for _, entry := range catalog {
		source := entry.RuleID
		if i := strings.IndexByte(entry.RuleID, '/'); i > 0 {
			source = entry.RuleID[:i]
		}
		table.Append(entry.RuleID, source)
	}
	table.Render()
	fmt.Printf("%d rules active\n", len(catalog))
	return nil
}

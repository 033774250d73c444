package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmylchreest/tlint/pkg/config"
	"github.com/jmylchreest/tlint/pkg/httputil"
)

// cmdCache talks to the running daemon's cache endpoints.
func cmdCache(cfg config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: tlint cache <stats|clear>")
	}

	addr := cfg.Addr
	if v := parseFlag(args, "--addr="); v != "" {
		addr = v
	}
	client := httputil.NewDaemonClient(addr)
	ctx := context.Background()

	switch args[0] {
	case "stats":
		var stats map[string]interface{}
		if err := client.GetJSON(ctx, "/api/cache/stats", &stats); err != nil {
			return fmt.Errorf("daemon not reachable at %s: %w", addr, err)
		}
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case "clear":
		if err := client.PostJSON(ctx, "/api/cache/clear", nil, nil); err != nil {
			return fmt.Errorf("cache clear failed: %w", err)
		}
		fmt.Println("caches cleared")
		return nil

	default:
		return fmt.Errorf("unknown cache subcommand: %s", args[0])
	}
}

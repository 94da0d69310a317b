package commands

import (
	"fmt"

	"github.com/outflowhq/outflow/config"
	"github.com/outflowhq/outflow/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(cfg *config.Config) {
	cyan := "\033[36m"
	green := "\033[32m"
	blue := "\033[34m"
	bold := "\033[1m"
	reset := "\033[0m"

	info := version.Get()

	fmt.Printf("\n%s%s", cyan, bold)
	fmt.Printf("   ╔═══════════════════════════════════════════════════╗\n")
	fmt.Printf("   ║                                                   ║\n")
	fmt.Printf("   ║     ██████  ██  ██ ██████ ██████ ██     ██████    ║\n")
	fmt.Printf("   ║    ██    ██ ██  ██   ██   ██     ██    ██    ██   ║\n")
	fmt.Printf("   ║    ██    ██ ██  ██   ██   ████   ██    ██    ██   ║\n")
	fmt.Printf("   ║     ██████   ████    ██   ██     ██████ ██████ █  ║\n")
	fmt.Printf("   ║                                                   ║\n")
	fmt.Printf("   ║    dispatch · fair scheduling · durable queue     ║\n")
	fmt.Printf("   ║                                                   ║\n")
	fmt.Printf("   ╚═══════════════════════════════════════════════════╝%s\n\n", reset)

	fmt.Printf("%s%s┌─ Outflow Info ──────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:   %s (commit %s)\n", green, reset, info.Version, info.Short())
	fmt.Printf("%s│%s Built:     %s\n", green, reset, info.BuildTime)
	fmt.Printf("%s│%s Database:  %s\n", green, reset, cfg.Database.Path)
	fmt.Printf("%s│%s Port:      %d\n", green, reset, cfg.Server.Port)
	if cfg.Server.TriggerSecret == "" {
		fmt.Printf("%s│%s Triggers:  disabled (no trigger secret)\n", green, reset)
	} else {
		fmt.Printf("%s│%s Triggers:  enabled\n", green, reset)
	}
	fmt.Printf("%s└─────────────────────────────────────────────┘%s\n", green, reset)

	fmt.Printf("\n%s💡 Press Ctrl+C to stop%s\n\n", blue, reset)
}

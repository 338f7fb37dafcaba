// own-bridge - OpenWebNet gateway bridge
//
// own-bridge connects BTicino/Legrand OpenWebNet gateways (BUS/SCS over
// TCP, ZigBee over a USB dongle) to a home-automation host over MQTT:
//   - lighting devices are exposed as things with switch and brightness channels
//   - channel commands arrive on MQTT or the HTTP API
//   - status, state and health are published as retained MQTT messages
//
// Commands:
//
//	ownbridge run        run the bridge service
//	ownbridge discover   scan one gateway for devices and print them
//	ownbridge where      translate a WHERE address into its thing identity
//	ownbridge version    print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ownbridge",
		Short:         "OpenWebNet gateway bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", getConfigPath(), "Path to the service configuration file")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newDiscoverCommand())
	cmd.AddCommand(newWhereCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// newVersionCommand creates the version command.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", commit)
			fmt.Fprintf(out, "Build Date: %s\n", date)
		},
	}
}

// getConfigPath returns the configuration file path.
// Uses OWNBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OWNBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// configPath reads the --config flag.
func configPath(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil || path == "" {
		return getConfigPath()
	}
	return path
}

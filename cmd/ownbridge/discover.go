package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/own-bridge/internal/bridges/openwebnet"
	"github.com/nerrad567/own-bridge/internal/infrastructure/config"
	"github.com/nerrad567/own-bridge/internal/infrastructure/logging"
)

// onlinePollInterval is how often discover checks whether the gateway is up.
const onlinePollInterval = 200 * time.Millisecond

type discoverOptions struct {
	bridge   string
	duration time.Duration
	asJSON   bool
}

func newDiscoverCommand() *cobra.Command {
	opts := discoverOptions{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan a gateway for lighting devices and print what answers",
		Long: `Connects to one gateway from the openwebnet configuration, runs a device
scan and prints the devices found. Configured things are not loaded, so
every device on the gateway is reported. Nothing is published to MQTT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return discover(cmd.Context(), configPath(cmd), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.bridge, "bridge", "", "Gateway id to scan (default: the first gateway)")
	cmd.Flags().DurationVar(&opts.duration, "duration", openwebnet.ScanWindow, "How long to collect reports")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print results as JSON")

	return cmd
}

// discover runs one scan against a gateway and writes the results to out.
func discover(ctx context.Context, path string, opts discoverOptions, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version).Component("discover")

	owCfg, err := openwebnet.LoadConfig(cfg.OpenWebNet.ConfigFile)
	if err != nil {
		return err
	}

	gateway, err := pickGateway(owCfg, opts.bridge)
	if err != nil {
		return err
	}

	service, err := openwebnet.NewService(openwebnet.ServiceConfig{
		Config:            &openwebnet.Config{Gateways: []openwebnet.GatewayEntry{gateway}},
		ConnectTimeout:    cfg.GetConnectTimeout(),
		ReconnectInterval: cfg.GetReconnectInterval(),
		Logger:            log,
	})
	if err != nil {
		return fmt.Errorf("creating openwebnet service: %w", err)
	}
	defer service.Close()

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("starting openwebnet service: %w", err)
	}

	if err := waitOnline(ctx, service, gateway.ID, openwebnet.GatewayOnlineTimeout); err != nil {
		return err
	}

	scanID, err := service.StartScan(gateway.ID)
	if err != nil {
		return fmt.Errorf("starting scan: %w", err)
	}
	log.Info("scanning", "bridge", gateway.ID, "scan_id", scanID, "duration", opts.duration)

	select {
	case <-ctx.Done():
	case <-time.After(opts.duration):
	}
	if err := service.StopScan(gateway.ID); err != nil {
		return fmt.Errorf("stopping scan: %w", err)
	}

	results, err := service.DiscoveryResults(gateway.ID)
	if err != nil {
		return err
	}
	return printResults(out, results, opts.asJSON)
}

// pickGateway returns the named gateway, or the first one when id is empty.
func pickGateway(cfg *openwebnet.Config, id string) (openwebnet.GatewayEntry, error) {
	if id == "" {
		if len(cfg.Gateways) == 0 {
			return openwebnet.GatewayEntry{}, fmt.Errorf("no gateways configured")
		}
		return cfg.Gateways[0], nil
	}
	g, ok := cfg.Gateway(id)
	if !ok {
		return openwebnet.GatewayEntry{}, fmt.Errorf("%w: %s", openwebnet.ErrUnknownBridge, id)
	}
	return g, nil
}

// waitOnline blocks until the bridge reports ONLINE, the timeout passes or
// ctx is cancelled.
func waitOnline(ctx context.Context, service *openwebnet.Service, bridgeID string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(onlinePollInterval)
	defer ticker.Stop()

	for {
		b, ok := service.BridgeSnapshot(bridgeID)
		if !ok {
			return fmt.Errorf("%w: %s", openwebnet.ErrUnknownBridge, bridgeID)
		}
		if b.Status.Status == openwebnet.StatusOnline {
			return nil
		}

		select {
		case <-ctx.Done():
			reason := b.Status.Description
			if reason == "" {
				reason = string(b.Status.Status)
			}
			return fmt.Errorf("gateway %s not online: %s", bridgeID, reason)
		case <-ticker.C:
		}
	}
}

func printResults(out io.Writer, results []openwebnet.DiscoveryResult, asJSON bool) error {
	if asJSON {
		if results == nil {
			results = []openwebnet.DiscoveryResult{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(out, "no devices found")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHERE\tTYPE\tUID\tLABEL")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Properties[openwebnet.ConfigWhere], r.ThingType, r.ThingUID, r.Label)
	}
	return tw.Flush()
}

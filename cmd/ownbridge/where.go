package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/own-bridge/internal/bridges/openwebnet"
)

type whereOptions struct {
	kind      string
	bridge    string
	thingType string
}

func newWhereCommand() *cobra.Command {
	opts := whereOptions{}

	cmd := &cobra.Command{
		Use:   "where WHERE",
		Short: "Show the logical id and thing UID of a WHERE address",
		Example: `  ownbridge where 0#4#01
  ownbridge where 765432102#9 --kind zigbee --bridge dongle1 --type on_off_switch2u`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return describeWhere(cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", "bus", "Gateway kind: bus or zigbee")
	cmd.Flags().StringVar(&opts.bridge, "bridge", "", "Gateway id, needed for the UID")
	cmd.Flags().StringVar(&opts.thingType, "type", "", "Thing type, needed for the UID")

	return cmd
}

// describeWhere prints the identity a device with this WHERE gets.
func describeWhere(out io.Writer, where string, opts whereOptions) error {
	var kind openwebnet.GatewayKind
	switch strings.ToLower(opts.kind) {
	case "bus", "scs":
		kind = openwebnet.GatewayBUS
	case "zigbee":
		kind = openwebnet.GatewayZigBee
	default:
		return fmt.Errorf("unknown gateway kind %q (use bus or zigbee)", opts.kind)
	}

	logical := openwebnet.LogicalID(where, kind)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "where\t%s\n", where)
	fmt.Fprintf(tw, "kind\t%s\n", kind)
	fmt.Fprintf(tw, "logical id\t%s\n", logical)
	if kind == openwebnet.GatewayZigBee {
		fmt.Fprintf(tw, "unit\t%02d\n", int(openwebnet.UnitOf(where, kind)))
	}

	if opts.thingType != "" {
		t, err := openwebnet.ParseThingType(opts.thingType)
		if err != nil {
			return err
		}
		if t.IsBridge() {
			return fmt.Errorf("%s is a gateway type, not a device type", t)
		}
		bridge := opts.bridge
		if bridge == "" {
			bridge = "<bridge>"
		}
		fmt.Fprintf(tw, "uid\t%s\n", openwebnet.DeviceUID(t, bridge, logical))
		fmt.Fprintf(tw, "label\t%s (%s)\n", t.Label(), openwebnet.WhereLabel(where))
	}

	return tw.Flush()
}

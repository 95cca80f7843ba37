// cmd/bncctl/commands.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bnc-service/internal/config"
	"bnc-service/internal/discovery"
	"bnc-service/internal/driver/bnc575"
)

var (
	snapshotFormat string
	scanRange      string
)

var idnCmd = &cobra.Command{
	Use:   "idn",
	Short: "Print the instrument identification",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGenerator(cmd, func(ctx context.Context, g *bnc575.Generator) error {
			idn, err := g.IDN(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), idn)
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <attribute>",
	Short: "Read one attribute",
	Long:  `Read one attribute. Times are in seconds, voltages in volts. See 'bncctl attributes'.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := bnc575.LookupAttribute(args[0]); !ok {
			return fmt.Errorf("unknown attribute %q", args[0])
		}
		return withGenerator(cmd, func(ctx context.Context, g *bnc575.Generator) error {
			value, err := g.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set <attribute> <value>",
	Short: "Write one attribute",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		attr, ok := bnc575.LookupAttribute(args[0])
		if !ok {
			return fmt.Errorf("unknown attribute %q", args[0])
		}
		if attr.ReadOnly() {
			return fmt.Errorf("attribute %q is read-only", args[0])
		}
		return withGenerator(cmd, func(ctx context.Context, g *bnc575.Generator) error {
			return g.Set(ctx, args[0], args[1])
		})
	},
}

var attributesCmd = &cobra.Command{
	Use:   "attributes",
	Short: "List attribute names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeAttributes(cmd.OutOrStdout())
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Read every attribute group of the active channel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if snapshotFormat != "json" && snapshotFormat != "yaml" {
			return fmt.Errorf("unknown format %q, want json or yaml", snapshotFormat)
		}
		return withGenerator(cmd, func(ctx context.Context, g *bnc575.Generator) error {
			snapshot, err := g.Snapshot(ctx)
			if err != nil {
				return err
			}
			return encode(cmd.OutOrStdout(), snapshotFormat, snapshot)
		})
	},
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the instrument state to --slot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGenerator(cmd, func(ctx context.Context, g *bnc575.Generator) error {
			return g.SaveState(ctx)
		})
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall",
	Short: "Restore the instrument state from --slot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGenerator(cmd, func(ctx context.Context, g *bnc575.Generator) error {
			return g.RestoreState(ctx)
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the instrument to factory defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGenerator(cmd, func(ctx context.Context, g *bnc575.Generator) error {
			return g.Reset(ctx)
		})
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Issue a software trigger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGenerator(cmd, func(ctx context.Context, g *bnc575.Generator) error {
			return g.Trigger(ctx)
		})
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan a network range for BNC-575 consoles",
	Long: `Probe every host of an IPv4 range with *IDN? on the console port.
The range defaults to discovery.network_range and the port to discovery.port (or --port).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cfg, err := config.LoadFrom(configPath)
		if err != nil {
			return err
		}
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		cidr := scanRange
		if cidr == "" {
			cidr = cfg.Discovery.NetworkRange
		}
		scanCfg := &discovery.Config{
			Port:        cfg.Discovery.Port,
			ConnTimeout: cfg.Discovery.ConnTimeout,
			AckTimeout:  cfg.Discovery.AckTimeout,
			Concurrency: cfg.Discovery.Concurrency,
			MaxHosts:    cfg.Discovery.MaxHosts,
		}
		if port != 0 {
			scanCfg.Port = port
		}

		found, err := discovery.NewScanner(logger, scanCfg, nil).Scan(ctx, cidr)
		if err != nil {
			return err
		}
		return writeInstruments(cmd.OutOrStdout(), found)
	},
}

func init() {
	discoverCmd.Flags().StringVarP(&scanRange, "range", "r", "", "IPv4 address or CIDR range to scan")
	snapshotCmd.Flags().StringVarP(&snapshotFormat, "format", "f", "yaml", "Output format (json|yaml)")
}

func writeAttributes(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range bnc575.AttributeNames() {
		attr, _ := bnc575.LookupAttribute(name)
		access := "rw"
		if attr.ReadOnly() {
			access = "r"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, access, attr.Description)
	}
	return tw.Flush()
}

func writeInstruments(w io.Writer, found []discovery.Instrument) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tMODEL\tSERIAL\tFIRMWARE")
	for _, inst := range found {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inst.Address, inst.Model, inst.SerialNumber, inst.Firmware)
	}
	return tw.Flush()
}

func encode(w io.Writer, format string, v interface{}) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

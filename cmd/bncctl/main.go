// cmd/bncctl/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bnc-service/internal/config"
	"bnc-service/internal/driver/bnc575"
	"bnc-service/internal/protocol"
	"bnc-service/internal/utils"
)

var (
	configPath string
	host       string
	port       int
	channel    string
	slot       int
	timeout    time.Duration
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bncctl",
	Short: "Talk to a BNC-575 pulse generator over its telnet console",
	Long: `bncctl reads and writes BNC-575 settings directly, without the plugin service.

Connection settings come from the service configuration file and can be
overridden with --host and --port. Channel scoped attributes use --channel.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Service configuration file (default: search ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Instrument host (overrides device.host)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Instrument telnet port (overrides device.port)")
	rootCmd.PersistentFlags().StringVarP(&channel, "channel", "c", "", "Active channel A-D (default: plugin.default_channel)")
	rootCmd.PersistentFlags().IntVar(&slot, "slot", 0, "Configuration slot for save and recall (default: plugin.default_slot)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall command timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every exchange to stderr")

	rootCmd.AddCommand(idnCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(attributesCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(discoverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes console formatted entries to stderr
func newLogger() (*zap.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return utils.NewWriterLogger(os.Stderr, "console", level)
}

// connect opens the instrument described by the configuration and flags
func connect(ctx context.Context) (*bnc575.Generator, *zap.Logger, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	if host != "" {
		cfg.Device.Host = host
	}
	if port != 0 {
		cfg.Device.Port = port
	}
	if channel == "" {
		channel = cfg.Plugin.DefaultChannel
	}
	if slot == 0 {
		slot = cfg.Plugin.DefaultSlot
	}

	conn, err := protocol.CreateProtocol(&cfg.Device, logger)
	if err != nil {
		return nil, logger, err
	}
	if err := conn.Open(ctx); err != nil {
		return nil, logger, fmt.Errorf("connect to %s: %w", cfg.GetDeviceAddr(), err)
	}

	g, err := bnc575.NewGenerator(conn, &bnc575.GeneratorConfig{
		Host:    cfg.Device.Host,
		Port:    cfg.Device.Port,
		Channel: bnc575.Channel(channel),
		Slot:    slot,
	}, logger)
	if err != nil {
		conn.Close()
		return nil, logger, err
	}
	return g, logger, nil
}

// withGenerator runs fn against a connected generator and closes it afterwards
func withGenerator(cmd *cobra.Command, fn func(ctx context.Context, g *bnc575.Generator) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	g, logger, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		g.Close()
		_ = logger.Sync()
	}()

	return fn(ctx, g)
}

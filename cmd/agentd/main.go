// Command agentd is the localhost relay agent daemon: it pairs with a
// browser extension over encrypted loopback HTTP (spec.md §4.1-§4.6) and
// serves signed web bundles to an embedded webview over the app:// scheme
// (spec.md §4.7-§4.11).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hoppscotch/agent/internal/config"
	"github.com/hoppscotch/agent/internal/events"
	"github.com/hoppscotch/agent/internal/httpapi"
	"github.com/hoppscotch/agent/internal/logger"
	"github.com/hoppscotch/agent/internal/registration"
)

func main() {
	root := &cobra.Command{
		Use:   "agentd",
		Short: "hoppscotch localhost relay agent",
	}

	root.AddCommand(serveCmd(), doctorCmd(), bundleCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the relay and bundle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetInt("port")
			cfgDir, _ := cmd.Flags().GetString("config-dir")
			dataDir, _ := cmd.Flags().GetString("data-dir")

			if cfgDir == "" {
				dir, err := config.GetUserConfigDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				cfgDir = dir
			}

			cfg, err := config.Load(cfgDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if port != 0 {
				cfg.ListenPort = port
			}
			if dataDir == "" {
				dataDir = cfg.DataDir
			}
			if dataDir == "" {
				dir, err := config.GetDataDir()
				if err != nil {
					return fmt.Errorf("resolve data dir: %w", err)
				}
				dataDir = dir
			}

			if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			if err := config.EnsureConfigDirs(cfgDir, dataDir); err != nil {
				return fmt.Errorf("ensure config dirs: %w", err)
			}

			store, err := registration.Open(filepath.Join(cfgDir, "registrations.db"))
			if err != nil {
				return fmt.Errorf("open registration store: %w", err)
			}
			defer store.Close()

			// serve only owns the loopback relay surface; the bundle subsystem
			// (storage/cache/loader/scheme) is driven separately via the
			// "bundle load" subcommand, standing in for the desktop shell's
			// embedded webview host that would otherwise be its only caller.
			// EnsureConfigDirs above still lays out the bundles/cache/temp/key
			// directories that subcommand and that host both expect.

			bus := events.NewBus()
			srv := httpapi.New(store, bus)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			logger.Info("agentd listening", "port", cfg.ListenPort)
			if err := srv.ListenAndServe(ctx, cfg.ListenPort); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			logger.Info("shut down cleanly")
			return nil
		},
	}

	cmd.Flags().Int("port", 0, "loopback port to listen on (defaults to the stored config or 9119)")
	cmd.Flags().String("config-dir", "", "override the agent config directory")
	cmd.Flags().String("data-dir", "", "override the bundle data directory")
	return cmd
}

package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hoppscotch/agent/internal/bundle/cache"
	"github.com/hoppscotch/agent/internal/bundle/storage"
	"github.com/hoppscotch/agent/internal/config"
	"github.com/hoppscotch/agent/internal/registration"
)

func doctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "print config paths, registration count, and cache occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir, _ := cmd.Flags().GetString("config-dir")
			if cfgDir == "" {
				dir, err := config.GetUserConfigDir()
				if err != nil {
					return err
				}
				cfgDir = dir
			}

			cfg, err := config.Load(cfgDir)
			if err != nil {
				return err
			}
			dataDir := cfg.DataDir
			if dataDir == "" {
				dir, err := config.GetDataDir()
				if err != nil {
					return err
				}
				dataDir = dir
			}

			fmt.Println("agentd doctor")
			fmt.Println()

			fmt.Println("Config:")
			fmt.Printf("  config_dir:  %s\n", cfgDir)
			fmt.Printf("  data_dir:    %s\n", dataDir)
			fmt.Printf("  listen_port: %d\n", cfg.ListenPort)
			fmt.Printf("  log_level:   %s\n", cfg.LogLevel)
			fmt.Println()

			fmt.Println("Registrations:")
			regPath := filepath.Join(cfgDir, "registrations.db")
			if store, err := registration.Open(regPath); err != nil {
				fmt.Printf("  %-12s not reachable: %v\n", "db", err)
			} else {
				count, err := store.Count()
				store.Close()
				if err != nil {
					fmt.Printf("  %-12s error counting rows: %v\n", "db", err)
				} else {
					fmt.Printf("  %-12s %d paired\n", "count", count)
				}
			}
			fmt.Println()

			fmt.Println("Bundles:")
			if bundleStore, err := storage.Open(filepath.Join(dataDir, "bundles")); err != nil {
				fmt.Printf("  %-12s not reachable: %v\n", "storage", err)
			} else {
				fmt.Printf("  %-12s %d stored\n", "count", bundleStore.Count())
			}
			if bundleCache, err := cache.Open(filepath.Join(dataDir, "cache"), int(cfg.CacheMaxMemory)); err != nil {
				fmt.Printf("  %-12s not reachable: %v\n", "cache", err)
			} else {
				stat := bundleCache.Stat()
				fmt.Printf("  %-12s %s / %s hot (%d entries), %d cold\n", "cache",
					humanize.Bytes(uint64(stat.HotBytes)), humanize.Bytes(uint64(stat.MaxBytes)),
					stat.HotEntries, stat.ColdEntries)
			}
			fmt.Println()

			fmt.Println("Loopback surface:")
			url := fmt.Sprintf("http://127.0.0.1:%d/handshake", cfg.ListenPort)
			if handshakeReachable(url) {
				fmt.Printf("  %-12s reachable at %s\n", "agentd", url)
			} else {
				fmt.Printf("  %-12s not reachable (is serve running?)\n", "agentd")
			}

			return nil
		},
	}
	cmd.Flags().String("config-dir", "", "override the agent config directory")
	return cmd
}

func handshakeReachable(url string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

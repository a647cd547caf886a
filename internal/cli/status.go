package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/internal/chat"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/store"
	"github.com/opsdeck/opsdeck/internal/transport"
	"github.com/opsdeck/opsdeck/internal/version"
)

func newStatusCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show opsdeck status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Opsdeck %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Server:  %s (timeout %ds, reconnect ceiling %d)\n",
				cfg.Server.BaseURL, cfg.Server.TimeoutSeconds, cfg.Server.MaxReconnects)
			fmt.Printf("Socket:  %s\n", cfg.Server.ResolveSocketURL())
			fmt.Printf("Events:  %s\n", cfg.Server.ResolveEventsURL())

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Println()
				for _, issue := range issues {
					fmt.Printf("Warning: %s\n", issue)
				}
			}

			showSession(cfg)

			if probe {
				fmt.Println()
				probeTransports(cmd.Context(), cfg)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "try connecting to the realtime endpoints")
	return cmd
}

// showSession prints the persisted session and model preference, if a local
// database exists.
func showSession(cfg config.Config) {
	db, err := store.Open(paths.DatabasePath(cfg.Storage), log)
	if err != nil {
		return
	}
	defer db.Close()
	prefs := store.NewSQLitePrefStore(db)

	if id, ok := prefs.Get(chat.PrefSessionID); ok {
		fmt.Printf("Session: %s\n", id)
	} else {
		fmt.Println("Session: (none)")
	}
	provider, _ := prefs.Get(chat.PrefModelProvider)
	model, _ := prefs.Get(chat.PrefModelName)
	if provider != "" || model != "" {
		fmt.Printf("Model:   %s / %s\n", provider, model)
	}
}

// probeTransports dials each realtime carrier once and reports the result.
func probeTransports(ctx context.Context, cfg config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialers := []transport.Dialer{
		transport.NewSocketDialer(cfg.Server.ResolveSocketURL(), cfg.Server.Token),
		transport.NewPushDialer(cfg.Server.ResolveEventsURL(), cfg.Server.Token),
	}
	for _, d := range dialers {
		conn, err := d.Dial(ctx)
		if err != nil {
			fmt.Printf("Probe:   %-7s unreachable (%v)\n", d.Name(), err)
			continue
		}
		conn.Close()
		fmt.Printf("Probe:   %-7s ok\n", d.Name())
	}
}

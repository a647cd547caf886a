package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/internal/api"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/store"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse past assistant sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, refreshing the local cache from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, db, cfg, err := openCache()
			if err != nil {
				return err
			}
			defer db.Close()

			if !local {
				client := newAPIClient(cfg)
				sessions, err := client.Sessions(cmd.Context())
				if err != nil {
					fmt.Printf("(server unreachable, showing cached sessions: %v)\n", err)
				} else {
					for _, sess := range sessions {
						if err := cache.Upsert(sess); err != nil {
							log.Warn().Err(err).Str("session", sess.ID).Msg("failed to cache session")
						}
					}
				}
			}

			sessions := cache.List()
			if len(sessions) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			for _, sess := range sessions {
				title := sess.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%s  %s  %s\n", sess.ID, sess.UpdatedAt.Format(time.DateTime), title)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "list only the local cache, no server round-trip")
	return cmd
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, db, cfg, err := openCache()
			if err != nil {
				return err
			}
			defer db.Close()

			client := newAPIClient(cfg)
			msgs, err := client.History(cmd.Context(), args[0])
			if err != nil {
				cached := cache.Get(args[0])
				if cached == nil {
					return fmt.Errorf("session %s not on server and not cached: %w", args[0], err)
				}
				fmt.Printf("(server unreachable, showing cached copy: %v)\n", err)
				msgs = cached.Messages
			} else {
				if err := cache.ReplaceMessages(args[0], msgs); err != nil {
					log.Warn().Err(err).Msg("failed to refresh message cache")
				}
			}

			for _, msg := range msgs {
				fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04"), msg.Sender, msg.Content)
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Drop a session from the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, db, _, err := openCache()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := cache.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("Dropped %s from the local cache.\n", args[0])
			return nil
		},
	}
}

func openCache() (*store.SessionCache, *store.DB, config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, nil, cfg, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, nil, cfg, err
	}
	db, err := store.Open(paths.DatabasePath(cfg.Storage), log)
	if err != nil {
		return nil, nil, cfg, err
	}
	return store.NewSessionCache(db), db, cfg, nil
}

func newAPIClient(cfg config.Config) *api.Client {
	return api.NewClient(api.ClientConfig{
		BaseURL: cfg.Server.BaseURL,
		Token:   cfg.Server.Token,
		Timeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}, log)
}

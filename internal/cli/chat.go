package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/internal/api"
	"github.com/opsdeck/opsdeck/internal/chat"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/domain"
	"github.com/opsdeck/opsdeck/internal/store"
	"github.com/opsdeck/opsdeck/internal/transport"
)

func newChatCmd() *cobra.Command {
	var buffered bool

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant, streaming its work as it happens",
		Long: "Opens an interactive assistant session. With a message argument, sends it, " +
			"prints the reply and exits. Without one, starts a REPL where /approve, /reject, " +
			"/new, /sessions and /quit drive the approval and session workflow.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			db, err := store.Open(paths.DatabasePath(cfg.Storage), log)
			if err != nil {
				return err
			}
			defer db.Close()

			client := api.NewClient(api.ClientConfig{
				BaseURL: cfg.Server.BaseURL,
				Token:   cfg.Server.Token,
				Timeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
			}, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if buffered || cfg.Chat.Buffered {
				if len(args) == 0 {
					return errors.New("buffered mode requires a message argument")
				}
				return runBuffered(ctx, client, db, cfg, strings.Join(args, " "))
			}

			session := newChatSession(client, db, cfg)
			defer session.close()

			if len(args) > 0 {
				return session.submit(ctx, strings.Join(args, " "))
			}
			return session.repl(ctx)
		},
	}

	cmd.Flags().BoolVar(&buffered, "buffered", false, "use the non-streaming exchange mode")
	return cmd
}

// runBuffered performs one non-streaming exchange and prints the reply.
func runBuffered(ctx context.Context, client *api.Client, db *store.DB, cfg config.Config, message string) error {
	prefs := store.NewSQLitePrefStore(db)
	sessionID, _ := prefs.Get(chat.PrefSessionID)
	provider, model := modelPreference(prefs, cfg)

	result, err := client.Exchange(ctx, api.ExchangeRequest{
		Message:   message,
		SessionID: sessionID,
		Provider:  provider,
		Model:     model,
	})
	if err != nil {
		return err
	}

	if result.SessionID != "" {
		prefs.Set(chat.PrefSessionID, result.SessionID)
	}
	fmt.Println(result.Message)
	return nil
}

// modelPreference resolves the model to attach to an exchange: the persisted
// preference wins over the config seed.
func modelPreference(prefs chat.Prefs, cfg config.Config) (provider, model string) {
	provider, _ = prefs.Get(chat.PrefModelProvider)
	model, _ = prefs.Get(chat.PrefModelName)
	if provider == "" {
		provider = cfg.Chat.Provider
	}
	if model == "" {
		model = cfg.Chat.Model
	}
	return provider, model
}

// chatSession wires the store, its renderer and the push subscription for one
// interactive run.
type chatSession struct {
	store    *chat.Store
	cache    *store.SessionCache
	client   *api.Client
	renderer *renderer

	pushCancel  context.CancelFunc
	unsubscribe func()
}

func newChatSession(client *api.Client, db *store.DB, cfg config.Config) *chatSession {
	prefs := store.NewSQLitePrefStore(db)
	seedModelPreference(prefs, cfg)

	r := newRenderer()
	s := &chatSession{
		cache:    store.NewSessionCache(db),
		client:   client,
		renderer: r,
	}

	s.store = chat.NewStore(client, prefs, chat.StoreConfig{
		Navigate: func(target string) {
			fmt.Printf("\n→ open %s in the dashboard\n", target)
		},
	}, log)
	s.unsubscribe = s.store.Subscribe(r.render)

	// Out-of-band server pushes ride the SSE channel, independent of any
	// open exchange.
	pushCtx, cancel := context.WithCancel(context.Background())
	s.pushCancel = cancel
	dialer := transport.NewPushDialer(cfg.Server.ResolveEventsURL(), cfg.Server.Token)
	sub := transport.NewSubscription(dialer, s.handlePush, transport.Config{
		MaxAttempts: cfg.Server.MaxReconnects,
	}, log)
	sub.OnStateChange(func(carrier string, state transport.State) {
		log.Debug().Str("carrier", carrier).Str("state", string(state)).Msg("push channel state")
	})
	go func() {
		if err := sub.Run(pushCtx); errors.Is(err, transport.ErrReconnectCeiling) {
			fmt.Println("(live updates unavailable: push channel gave up reconnecting)")
		}
	}()

	return s
}

// seedModelPreference copies the config's model into the durable preference
// on first run only; an explicit `opsdeck config model` always wins.
func seedModelPreference(prefs chat.Prefs, cfg config.Config) {
	if _, ok := prefs.Get(chat.PrefModelName); ok {
		return
	}
	if cfg.Chat.Provider != "" {
		prefs.Set(chat.PrefModelProvider, cfg.Chat.Provider)
	}
	if cfg.Chat.Model != "" {
		prefs.Set(chat.PrefModelName, cfg.Chat.Model)
	}
}

func (s *chatSession) handlePush(payload []byte) {
	ev, err := api.DecodeEvent(payload)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring undecodable push event")
		return
	}
	switch e := ev.(type) {
	case api.ProgressEvent:
		fmt.Printf("(server: %s)\n", e.Message)
	case api.AgentStatusEvent:
		fmt.Printf("(agent %s is %s)\n", e.Agent, e.Status)
	default:
		// Exchange-scoped kinds have no meaning outside an exchange.
	}
}

func (s *chatSession) close() {
	s.pushCancel()
	s.unsubscribe()
}

func (s *chatSession) submit(ctx context.Context, message string) error {
	err := s.store.Submit(ctx, message, nil)
	if errors.Is(err, chat.ErrExchangeInProgress) || errors.Is(err, chat.ErrEmptyMessage) {
		fmt.Println(err)
		return nil
	}
	if err != nil {
		return err
	}
	s.cacheSession(ctx)
	return nil
}

// cacheSession mirrors the active session into the local cache so
// `opsdeck sessions` works offline.
func (s *chatSession) cacheSession(ctx context.Context) {
	state := s.store.State()
	if state.SessionID == "" {
		return
	}
	title := ""
	for _, m := range state.Messages {
		if m.Sender == domain.SenderUser {
			title = m.Content
			break
		}
	}
	s.cache.Upsert(domain.ConversationSession{ID: state.SessionID, Title: title})
	s.cache.ReplaceMessages(state.SessionID, state.Messages)
}

func (s *chatSession) repl(ctx context.Context) error {
	if s.store.State().SessionID != "" {
		if err := s.store.Rehydrate(ctx); err != nil {
			log.Warn().Err(err).Msg("could not rehydrate session history")
		}
	}

	fmt.Println("Connected. Type a message, or /help for commands.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		if strings.HasPrefix(line, "/") {
			if quit := s.command(ctx, line); quit {
				return nil
			}
			continue
		}

		if err := s.submit(ctx, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

// command handles one slash command; returns true to exit the REPL.
func (s *chatSession) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println("/approve <id> [key=value ...]  approve a pending action")
		fmt.Println("/reject <id>                   reject a pending action")
		fmt.Println("/pending                       list pending actions")
		fmt.Println("/new                           start a fresh session")
		fmt.Println("/sessions                      list known sessions")
		fmt.Println("/use <session-id>              switch to a session")
		fmt.Println("/stop                          stop the running exchange")
		fmt.Println("/quit                          leave")

	case "/approve", "/reject":
		if len(fields) < 2 {
			fmt.Printf("usage: %s <id>\n", fields[0])
			return false
		}
		approved := fields[0] == "/approve"
		edited := parseEdits(fields[2:])
		if err := s.store.Decide(ctx, fields[1], approved, edited); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "/pending":
		pending := s.store.State().Pending
		if len(pending) == 0 {
			fmt.Println("nothing pending")
			return false
		}
		for _, p := range pending {
			fmt.Printf("  [%s] %s (%s risk) by %s: %s\n", p.ID, p.ActionType, p.Risk, p.Agent, p.Reasoning)
		}

	case "/new":
		s.store.NewSession()
		fmt.Println("Started a new session.")

	case "/sessions":
		sessions := s.cache.List()
		if len(sessions) == 0 {
			fmt.Println("no sessions cached yet")
			return false
		}
		for _, sess := range sessions {
			fmt.Printf("  %s  %s\n", sess.ID, sess.Title)
		}

	case "/use":
		if len(fields) != 2 {
			fmt.Println("usage: /use <session-id>")
			return false
		}
		s.store.UseSession(fields[1])
		if err := s.store.Rehydrate(ctx); err != nil {
			fmt.Printf("error loading history: %v\n", err)
		}

	case "/stop":
		s.store.Stop()

	default:
		fmt.Printf("unknown command %s (try /help)\n", fields[0])
	}
	return false
}

// parseEdits turns key=value arguments into an edited approval payload.
func parseEdits(args []string) map[string]any {
	if len(args) == 0 {
		return nil
	}
	edits := make(map[string]any, len(args))
	for _, arg := range args {
		if key, value, ok := strings.Cut(arg, "="); ok {
			edits[key] = value
		}
	}
	return edits
}

// renderer prints state deltas: it remembers how much of the timeline and
// trace it already showed and only prints what is new.
type renderer struct {
	mu            sync.Mutex
	shownMessages int
	shownTrace    int
	announced     map[string]bool
	wasInProgress bool
}

func newRenderer() *renderer {
	return &renderer{announced: make(map[string]bool)}
}

func (r *renderer) render(s chat.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A new exchange restarts the trace.
	if s.InProgress && !r.wasInProgress {
		r.shownTrace = 0
	}
	r.wasInProgress = s.InProgress

	for ; r.shownTrace < len(s.Reasoning); r.shownTrace++ {
		step := s.Reasoning[r.shownTrace]
		if step.Agent != "" {
			fmt.Printf("  · [%s] %s\n", step.Agent, step.Content)
		} else {
			fmt.Printf("  · %s\n", step.Content)
		}
	}
	if len(s.Reasoning) < r.shownTrace {
		r.shownTrace = len(s.Reasoning)
	}

	for ; r.shownMessages < len(s.Messages); r.shownMessages++ {
		msg := s.Messages[r.shownMessages]
		if msg.Sender == domain.SenderAssistant {
			fmt.Printf("\nassistant: %s\n", msg.Content)
		}
	}
	if len(s.Messages) < r.shownMessages {
		r.shownMessages = len(s.Messages)
	}

	for _, p := range s.Pending {
		if r.announced[p.ID] {
			continue
		}
		r.announced[p.ID] = true
		fmt.Printf("\naction needs approval: [%s] %s, %s risk: %s (/approve %s or /reject %s)\n",
			p.ID, p.ActionType, p.Risk, p.Reasoning, p.ID, p.ID)
	}

	if !s.InProgress && len(s.Suggestions) > 0 {
		fmt.Print("suggestions:")
		for _, sg := range s.Suggestions {
			fmt.Printf("  [%s]", sg.Label)
		}
		fmt.Println()
	}
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/api"
	"github.com/opsdeck/opsdeck/internal/domain"
	"github.com/opsdeck/opsdeck/internal/logging"
)

// Sentinel errors for submit preconditions. Both mean "nothing happened":
// state is untouched and no exchange was opened.
var (
	ErrExchangeInProgress = errors.New("chat: an exchange is already in progress")
	ErrEmptyMessage       = errors.New("chat: message is empty")
	ErrUnknownProposal    = errors.New("chat: proposal is not pending")
)

// Backend is the remote surface the store drives: opening exchanges,
// submitting approval decisions, and fetching history. *api.Client satisfies
// it.
type Backend interface {
	OpenExchange(ctx context.Context, req api.ExchangeRequest) (<-chan api.ExchangeEvent, error)
	SubmitDecision(ctx context.Context, req api.DecisionRequest) (*api.DecisionResult, error)
	History(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error)
}

// NavigationFunc receives navigation signals. It is fire-and-forget: the
// target view is not conversation state.
type NavigationFunc func(target string)

// Subscriber observes state snapshots.
type Subscriber func(State)

// StoreConfig wires the store's collaborators.
type StoreConfig struct {
	// Navigate is called for navigation events. Optional.
	Navigate NavigationFunc
	// Context is an opaque map attached to every outgoing exchange.
	Context map[string]any
}

// Store owns the conversation state. All mutation goes through its methods;
// subscribers receive immutable snapshots. One exchange runs at a time:
// submitting while one is active is a no-op, by policy rather than queueing.
type Store struct {
	backend  Backend
	prefs    Prefs
	navigate NavigationFunc
	reqCtx   map[string]any
	log      *logging.Logger

	mu          sync.Mutex
	state       State
	subscribers map[int]Subscriber
	nextSubID   int
	sawFinal    bool
	cancel      context.CancelFunc
}

// NewStore creates a store. The active session identifier and model
// preference are loaded from prefs so a restart resumes the same session.
func NewStore(backend Backend, prefs Prefs, cfg StoreConfig, log *logging.Logger) *Store {
	s := &Store{
		backend:     backend,
		prefs:       prefs,
		navigate:    cfg.Navigate,
		reqCtx:      cfg.Context,
		log:         log.Sub("chat"),
		subscribers: make(map[int]Subscriber),
		state:       State{AgentStatus: StatusIdle},
	}
	if id, ok := prefs.Get(PrefSessionID); ok {
		s.state.SessionID = id
	}
	return s
}

// Subscribe registers a subscriber and immediately delivers the current
// snapshot. The returned function unsubscribes.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	fn(snapshot)
	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Submit opens one exchange for the given message and folds its events into
// state, blocking until the exchange finishes. The extra map is attached to
// the outgoing request on top of the store-wide context. An empty message or
// an already-active exchange is a no-op returning a sentinel error.
func (s *Store) Submit(ctx context.Context, content string, extra map[string]any) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state.InProgress {
		s.mu.Unlock()
		return ErrExchangeInProgress
	}

	// Optimistic user message, then a clean slate for the new exchange. The
	// reasoning trace, event log and suggestions are per-exchange, never
	// cumulative.
	s.state.Messages = append(s.state.Messages, domain.ConversationMessage{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    domain.SenderUser,
		CreatedAt: time.Now(),
	})
	s.state.Reasoning = nil
	s.state.Events = nil
	s.state.Suggestions = nil
	s.state.InProgress = true
	s.state.Progress = 0
	s.sawFinal = false

	sessionID := s.state.SessionID
	provider, _ := s.prefs.Get(PrefModelProvider)
	model, _ := s.prefs.Get(PrefModelName)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()
	s.notify()

	defer s.finishExchange()

	events, err := s.backend.OpenExchange(runCtx, api.ExchangeRequest{
		Message:   content,
		SessionID: sessionID,
		Provider:  provider,
		Model:     model,
		Context:   mergeContext(s.reqCtx, extra),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to open exchange")
		s.appendAssistant(fmt.Sprintf("Sorry, I couldn't reach the assistant: %v", err), nil)
		return nil
	}

	for ev := range events {
		s.apply(ev)
	}

	s.mu.Lock()
	sawFinal := s.sawFinal
	s.mu.Unlock()
	if !sawFinal {
		// The stream ended without a final message: surface it once instead
		// of leaving the last user message unanswered.
		s.appendAssistant("Sorry, the connection dropped before I could finish.", nil)
	}
	return nil
}

// Stop cancels the open exchange, if any. Best effort: the exchange still
// winds down through its normal completion path.
func (s *Store) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Rehydrate replaces the message timeline from the history collaborator for
// the active session. No-op when no session is active or an exchange runs.
func (s *Store) Rehydrate(ctx context.Context) error {
	s.mu.Lock()
	if s.state.InProgress || s.state.SessionID == "" {
		s.mu.Unlock()
		return nil
	}
	sessionID := s.state.SessionID
	s.mu.Unlock()

	msgs, err := s.backend.History(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("fetching history for session %s: %w", sessionID, err)
	}

	s.mu.Lock()
	s.state.Messages = msgs
	s.mu.Unlock()
	s.notify()
	return nil
}

// NewSession clears the active session so the next submit starts a fresh one.
func (s *Store) NewSession() {
	s.mu.Lock()
	s.state = State{AgentStatus: StatusIdle}
	s.mu.Unlock()

	if err := s.prefs.Delete(PrefSessionID); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear persisted session")
	}
	s.notify()
}

// UseSession switches to an existing session. The caller typically follows
// with Rehydrate to load its timeline.
func (s *Store) UseSession(id string) {
	s.mu.Lock()
	s.state = State{AgentStatus: StatusIdle, SessionID: id}
	s.mu.Unlock()

	if err := s.prefs.Set(PrefSessionID, id); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist session id")
	}
	s.notify()
}

// apply folds one event into state. Every event kind has exactly one rule;
// the match is exhaustive over the closed event set.
func (s *Store) apply(ev api.ExchangeEvent) {
	s.mu.Lock()

	switch e := ev.(type) {
	case api.SessionEvent:
		s.state.SessionID = e.SessionID
		if err := s.prefs.Set(PrefSessionID, e.SessionID); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist session id")
		}

	case api.ReasoningEvent:
		s.state.Reasoning = append(s.state.Reasoning, domain.ReasoningStep{
			Content: e.Content,
			Step:    e.Step,
		})

	case api.ThoughtEvent:
		s.upsertThoughtLocked(e)

	case api.ToolStartEvent:
		s.state.Reasoning = append(s.state.Reasoning, domain.ReasoningStep{
			Content: describeTool(e),
			Step:    "tool",
			Tool:    e.Tool,
		})

	case api.InsightEvent:
		s.state.Reasoning = append(s.state.Reasoning, domain.ReasoningStep{
			Content: "Insight: " + e.Content,
			Step:    "insight",
		})

	case api.PlanEvent:
		s.state.Events = append(s.state.Events, domain.AgentEvent{
			Type: domain.AgentEventPlan, Agent: e.Agent,
			Message: e.Description, TotalSteps: e.Steps,
		})

	case api.DataEvent:
		s.state.Events = append(s.state.Events, domain.AgentEvent{
			Type: domain.AgentEventData, Agent: e.Agent,
			Source: e.Source, Count: e.Count,
		})

	case api.DecisionEvent:
		s.state.Events = append(s.state.Events, domain.AgentEvent{
			Type: domain.AgentEventDecision, Agent: e.Agent, Message: e.Decision,
		})

	case api.ProgressEvent:
		s.state.Events = append(s.state.Events, domain.AgentEvent{
			Type: domain.AgentEventProgress, Message: e.Message, Percent: e.Percent,
		})
		s.state.Progress = e.Percent

	case api.AgentStatusEvent:
		s.state.Events = append(s.state.Events, domain.AgentEvent{
			Type: domain.AgentEventStatus, Agent: e.Agent,
			Message: e.Status, Capabilities: e.Capabilities,
		})
		s.state.AgentStatus = e.Status

	case api.SuggestionsEvent:
		s.state.Suggestions = e.Suggestions

	case api.ApprovalEvent:
		s.state.Pending = append(s.state.Pending, e.Proposals...)

	case api.MessageEvent:
		s.finalMessageLocked(e.ID, e.Content, e.Metadata)

	case api.ErrorEvent:
		s.finalMessageLocked("", "Sorry, something went wrong: "+e.Message, nil)

	case api.NavigationEvent:
		// Not conversation state: hand off and return without notifying.
		navigate := s.navigate
		s.mu.Unlock()
		if navigate != nil {
			navigate(e.Target)
		}
		return
	}

	s.mu.Unlock()
	s.notify()
}

// upsertThoughtLocked collapses thoughts by agent name: last write wins, with
// empty fields inheriting the prior entry's values.
func (s *Store) upsertThoughtLocked(e api.ThoughtEvent) {
	for i := range s.state.Reasoning {
		if s.state.Reasoning[i].Agent == e.Agent && e.Agent != "" {
			if e.Content != "" {
				s.state.Reasoning[i].Content = e.Content
			}
			if e.Step != "" {
				s.state.Reasoning[i].Step = e.Step
			}
			return
		}
	}
	s.state.Reasoning = append(s.state.Reasoning, domain.ReasoningStep{
		Agent:   e.Agent,
		Content: e.Content,
		Step:    e.Step,
	})
}

// finalMessageLocked appends the terminal assistant message and closes out the
// exchange's transient trace.
func (s *Store) finalMessageLocked(id, content string, metadata map[string]any) {
	if id == "" {
		id = uuid.NewString()
	}
	s.state.Messages = append(s.state.Messages, domain.ConversationMessage{
		ID:        id,
		Content:   content,
		Sender:    domain.SenderAssistant,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	})
	s.state.Reasoning = nil
	s.state.AgentStatus = StatusCompleted
	s.state.Progress = 100
	s.sawFinal = true
}

// finishExchange resets the busy flag. Runs unconditionally after every
// submit so a failure mid-stream can never leave the store stuck busy.
func (s *Store) finishExchange() {
	s.mu.Lock()
	s.state.InProgress = false
	s.state.Progress = 0
	s.state.AgentStatus = StatusIdle
	s.cancel = nil
	s.mu.Unlock()
	s.notify()
}

// appendAssistant appends an assistant message outside the event fold.
func (s *Store) appendAssistant(content string, metadata map[string]any) {
	s.mu.Lock()
	s.state.Messages = append(s.state.Messages, domain.ConversationMessage{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    domain.SenderAssistant,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	})
	s.state.Reasoning = nil
	s.mu.Unlock()
	s.notify()
}

// notify delivers a snapshot to every subscriber, outside the lock.
func (s *Store) notify() {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// snapshotLocked copies the state so subscribers can never alias the store's
// own slices.
func (s *Store) snapshotLocked() State {
	snap := s.state
	snap.Messages = append([]domain.ConversationMessage(nil), s.state.Messages...)
	snap.Reasoning = append([]domain.ReasoningStep(nil), s.state.Reasoning...)
	snap.Events = append([]domain.AgentEvent(nil), s.state.Events...)
	snap.Pending = append([]domain.ActionProposal(nil), s.state.Pending...)
	snap.Suggestions = append([]domain.SuggestedAction(nil), s.state.Suggestions...)
	return snap
}

func mergeContext(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func describeTool(e api.ToolStartEvent) string {
	if e.Detail != "" {
		return fmt.Sprintf("Using %s: %s", e.Tool, e.Detail)
	}
	return "Using " + e.Tool
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wayneh-tw/linegem/internal/observability/metrics"
	"github.com/wayneh-tw/linegem/pkg/logging"
)

// FilteredReplyText is the fixed reply sent when the backend blocks the
// generated content. Sending it is a successful outcome, not an error.
const FilteredReplyText = "回覆內容被阻擋 (不支援中文)"

// HistoryMode selects how processed turns are persisted.
type HistoryMode string

const (
	// HistoryModeWindow keeps the last N user turns per conversation,
	// FIFO-evicting the oldest once the window is full.
	HistoryModeWindow HistoryMode = "window"
	// HistoryModeSession stores the full role-tagged transcript and
	// replaces it wholesale after each turn; the growth bound is the
	// backend session's concern, so no trimming applies.
	HistoryModeSession HistoryMode = "session"
)

// ParseHistoryMode maps a config string to a HistoryMode, defaulting to
// the windowed mode for anything unrecognized.
func ParseHistoryMode(s string) HistoryMode {
	if HistoryMode(s) == HistoryModeSession {
		return HistoryModeSession
	}
	return HistoryModeWindow
}

// InboundEvent is one verified text message lifted out of a webhook
// delivery. The reply token is single-use; each event is consumed exactly
// once by Handle.
type InboundEvent struct {
	ReplyToken     string
	ConversationID string
	Text           string
	ReceivedAt     time.Time
}

// OutboundReply is the single reply produced for an InboundEvent.
type OutboundReply struct {
	ReplyToken     string
	ConversationID string
	Text           string
}

// ReplyMessenger delivers an outbound reply through the platform.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// Orchestrator turns one inbound event into exactly one outbound reply.
// It owns all ConversationStore mutations: exactly one per successfully
// processed event, none when generation fails.
type Orchestrator struct {
	store     *Store
	llm       LLMClient
	messenger ReplyMessenger
	logger    *logging.Logger
	metrics   *metrics.RelayMetrics
	tracer    trace.Tracer

	cfg orchestratorConfig
}

type orchestratorConfig struct {
	mode    HistoryMode
	timeout time.Duration
}

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*orchestratorConfig)

// WithHistoryMode selects the persistence policy for processed turns.
func WithHistoryMode(mode HistoryMode) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if mode == HistoryModeWindow || mode == HistoryModeSession {
			cfg.mode = mode
		}
	}
}

// WithGenerateTimeout bounds each generation backend call.
func WithGenerateTimeout(d time.Duration) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// NewOrchestrator wires the reply pipeline around the supplied collaborators.
func NewOrchestrator(store *Store, llm LLMClient, messenger ReplyMessenger, logger *logging.Logger, m *metrics.RelayMetrics, opts ...OrchestratorOption) *Orchestrator {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if messenger == nil {
		panic("conversation: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := orchestratorConfig{
		mode:    HistoryModeWindow,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Orchestrator{
		store:     store,
		llm:       llm,
		messenger: messenger,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("linegem.internal.conversation"),
		cfg:       cfg,
	}
}

// Handle processes one inbound event: load context, call the generation
// backend, persist the updated context, send exactly one reply.
//
// History is only mutated after a successful backend call; a failed or
// timed-out generation leaves stored context untouched so the next inbound
// message retries with the same context. Turns for one conversation id are
// serialized end to end; distinct ids proceed concurrently.
func (o *Orchestrator) Handle(ctx context.Context, event InboundEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := o.tracer.Start(ctx, "conversation.handle_turn")
	defer span.End()

	unlock := o.store.Lock(event.ConversationID)
	defer unlock()

	history := o.store.History(event.ConversationID)

	genCtx := ctx
	if o.cfg.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, o.cfg.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.llm.Complete(genCtx, buildRequest(history, event.Text))
	o.metrics.ObserveGenerationLatency(time.Since(start).Seconds())

	switch {
	case errors.Is(err, ErrContentFiltered):
		// Recognized outcome: reply with the fixed fallback text. The
		// filtered turn is not recorded, so history stays as it was.
		o.logger.Info("reply blocked by content filter",
			"conversation_id", event.ConversationID,
		)
		o.metrics.ObserveReply("filtered")
		return o.send(ctx, event, FilteredReplyText)
	case err != nil:
		span.RecordError(err)
		o.metrics.ObserveReply("error")
		return fmt.Errorf("conversation: generation failed: %w", err)
	}

	o.persist(event, history, resp.Text)
	o.metrics.ObserveReply("ok")
	return o.send(ctx, event, resp.Text)
}

func buildRequest(history []Turn, text string) LLMRequest {
	messages := make([]ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, ChatMessage{Role: turn.Role, Content: turn.Text})
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: text})
	return LLMRequest{Messages: messages}
}

func (o *Orchestrator) persist(event InboundEvent, history []Turn, replyText string) {
	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	userTurn := Turn{Role: ChatRoleUser, Text: event.Text, Timestamp: receivedAt}

	switch o.cfg.mode {
	case HistoryModeSession:
		updated := append(history, userTurn, Turn{
			Role:      ChatRoleAssistant,
			Text:      replyText,
			Timestamp: time.Now().UTC(),
		})
		o.store.Replace(event.ConversationID, updated)
	default:
		o.store.AppendAndTrim(event.ConversationID, userTurn)
	}
}

func (o *Orchestrator) send(ctx context.Context, event InboundEvent, text string) error {
	err := o.messenger.SendReply(ctx, OutboundReply{
		ReplyToken:     event.ReplyToken,
		ConversationID: event.ConversationID,
		Text:           text,
	})
	if err != nil {
		return fmt.Errorf("conversation: reply send failed: %w", err)
	}
	return nil
}

package line

import (
	"context"
	"net/http"

	"github.com/wayneh-tw/linegem/internal/conversation"
	"github.com/wayneh-tw/linegem/internal/observability/metrics"
	"github.com/wayneh-tw/linegem/pkg/logging"
)

// EventHandler processes one verified inbound event.
type EventHandler interface {
	Handle(ctx context.Context, event conversation.InboundEvent) error
}

// Adapter is the LINE channel adapter. It verifies and parses inbound
// webhooks and routes each text message into the conversation pipeline.
type Adapter struct {
	webhook *WebhookHandler
	logger  *logging.Logger
}

// NewAdapter creates a new LINE channel adapter.
func NewAdapter(channelSecret string, handler EventHandler, logger *logging.Logger, m *metrics.RelayMetrics) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("channel", "line")
	a := &Adapter{logger: logger}

	a.webhook = NewWebhookHandler(channelSecret, m, func(msg ParsedInboundMessage) {
		logger.Info("inbound message",
			"user_id", msg.UserID,
			"webhook_event_id", msg.WebhookEventID,
			"length", len(msg.Text),
		)
		// The 200 has already been written by the time this runs, so the
		// request context is not safe to carry into the backend call.
		err := handler.Handle(context.Background(), conversation.InboundEvent{
			ReplyToken:     msg.ReplyToken,
			ConversationID: msg.UserID,
			Text:           msg.Text,
			ReceivedAt:     msg.Timestamp,
		})
		if err != nil {
			logger.Error("failed to process inbound message",
				"user_id", msg.UserID,
				"error", err,
			)
		}
	})

	return a
}

// HandleWebhook handles POST webhook deliveries.
func (a *Adapter) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleInbound(w, r)
}

// HandleLiveness handles GET liveness probes.
func (a *Adapter) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleLiveness(w, r)
}

// ReplyMessenger implements conversation.ReplyMessenger over the
// Messaging API reply endpoint.
type ReplyMessenger struct {
	client *Client
	logger *logging.Logger
}

// NewReplyMessenger creates a LINE reply messenger.
func NewReplyMessenger(client *Client, logger *logging.Logger) *ReplyMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplyMessenger{client: client, logger: logger.With("channel", "line")}
}

// SendReply sends the reply bound to the event's single-use reply token.
func (m *ReplyMessenger) SendReply(ctx context.Context, reply conversation.OutboundReply) error {
	if err := m.client.ReplyMessage(ctx, reply.ReplyToken, reply.Text); err != nil {
		m.logger.Error("failed to send reply",
			"conversation_id", reply.ConversationID,
			"error", err,
		)
		return err
	}
	m.logger.Info("reply sent",
		"conversation_id", reply.ConversationID,
		"length", len(reply.Text),
	)
	return nil
}

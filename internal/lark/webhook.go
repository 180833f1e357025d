package lark

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/larksuite/oapi-sdk-go/v3/core/httpserverext"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/web3-frozen/chain-activity/internal/senders"
)

// Webhook handles bot event callbacks, recording message senders. The
// SDK dispatcher answers url_verification, checks the verification token
// and decrypts callbacks when an encrypt key is configured.
type Webhook struct {
	senders senders.Store
	logger  *slog.Logger
	now     func() time.Time
	handler http.HandlerFunc
}

// NewWebhook returns a callback handler. An empty verificationToken accepts
// every callback; an empty encryptKey accepts only plaintext callbacks.
func NewWebhook(verificationToken, encryptKey string, store senders.Store, logger *slog.Logger) *Webhook {
	w := &Webhook{senders: store, logger: logger, now: time.Now}
	d := dispatcher.NewEventDispatcher(verificationToken, encryptKey).
		OnP2MessageReceiveV1(w.onMessage)
	w.handler = httpserverext.NewEventHandlerFunc(d)
	return w
}

// ServeHTTP answers one callback request.
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.handler(rw, r)
}

func (w *Webhook) onMessage(ctx context.Context, ev *larkim.P2MessageReceiveV1) error {
	if ev == nil || ev.Event == nil || ev.Event.Sender == nil {
		w.logger.Info("lark message event without sender")
		return nil
	}
	snd := senders.Sender{
		SenderType: deref(ev.Event.Sender.SenderType),
		TenantKey:  deref(ev.Event.Sender.TenantKey),
		CapturedAt: w.now().UTC(),
	}
	if id := ev.Event.Sender.SenderId; id != nil {
		snd.UserID = deref(id.UserId)
		snd.OpenID = deref(id.OpenId)
		snd.UnionID = deref(id.UnionId)
	}
	if m := ev.Event.Message; m != nil {
		snd.ChatID = deref(m.ChatId)
		snd.ChatType = deref(m.ChatType)
		snd.MessageType = deref(m.MessageType)
	}
	if ev.EventV2Base != nil && ev.EventV2Base.Header != nil {
		snd.EventID = ev.EventV2Base.Header.EventID
	}

	if snd.Key() == "" {
		w.logger.Info("lark message sender has no id", "event_id", snd.EventID)
		return nil
	}
	if err := w.senders.Put(ctx, snd); err != nil {
		return fmt.Errorf("capture sender: %w", err)
	}
	w.logger.Info("lark sender captured", "user_id", snd.UserID, "open_id", snd.OpenID, "chat_id", snd.ChatID)
	return nil
}

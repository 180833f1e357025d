// Package lark delivers report cards through a Lark (Feishu) bot and
// handles the bot's event callbacks.
package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	larksdk "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/web3-frozen/chain-activity/internal/metrics"
)

const DefaultBaseURL = "https://open.larksuite.com"

var (
	ErrNotConfigured = errors.New("lark app credentials not configured")
	ErrNoRecipient   = errors.New("chat_id or user_id is required")
)

// Target is a message recipient.
type Target struct {
	ReceiveID     string `json:"receive_id"`
	ReceiveIDType string `json:"receive_id_type"`
}

// TargetFrom picks a chat when chatID is set and a user otherwise.
func TargetFrom(chatID, userID string) (Target, error) {
	switch {
	case chatID != "":
		return Target{ReceiveID: chatID, ReceiveIDType: "chat_id"}, nil
	case userID != "":
		return Target{ReceiveID: userID, ReceiveIDType: "user_id"}, nil
	}
	return Target{}, ErrNoRecipient
}

// Client is a Lark bot authenticated with an app id and secret. The SDK
// fetches and caches the tenant access token.
type Client struct {
	appID     string
	appSecret string
	logger    *slog.Logger
	api       *larksdk.Client
}

func NewClient(baseURL, appID, appSecret string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{appID: appID, appSecret: appSecret, logger: logger}
	if c.Enabled() {
		c.api = larksdk.NewClient(appID, appSecret,
			larksdk.WithOpenBaseUrl(strings.TrimRight(baseURL, "/")),
			larksdk.WithHttpClient(instrumentedClient{client: &http.Client{Timeout: 15 * time.Second}}),
			larksdk.WithTokenCache(newTokenCache()),
			larksdk.WithLogger(sdkLogger{logger}),
			larksdk.WithLogLevel(larkcore.LogLevelError),
		)
	}
	return c
}

// Enabled reports whether credentials are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.appID != "" && c.appSecret != ""
}

// SendCard sends an interactive card and returns the message id.
func (c *Client) SendCard(ctx context.Context, t Target, card Card) (string, error) {
	content, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("marshal card: %w", err)
	}
	return c.send(ctx, t, larkim.MsgTypeInteractive, string(content))
}

// SendText sends a plain text message and returns the message id.
func (c *Client) SendText(ctx context.Context, t Target, text string) (string, error) {
	content, _ := json.Marshal(map[string]string{"text": text})
	return c.send(ctx, t, larkim.MsgTypeText, string(content))
}

func (c *Client) send(ctx context.Context, t Target, msgType, content string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if t.ReceiveID == "" {
		return "", ErrNoRecipient
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(t.ReceiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(t.ReceiveID).
			MsgType(msgType).
			Content(content).
			Uuid(uuid.NewString()).
			Build()).
		Build()

	resp, err := c.api.Im.V1.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("lark send: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("lark API error %d: %s", resp.Code, resp.Msg)
	}

	var msgID string
	if resp.Data != nil {
		msgID = deref(resp.Data.MessageId)
	}
	c.logger.Debug("lark message sent", "receive_id_type", t.ReceiveIDType, "msg_type", msgType, "message_id", msgID)
	return msgID, nil
}

// instrumentedClient records upstream metrics for every SDK request.
type instrumentedClient struct {
	client *http.Client
}

func (ic instrumentedClient) Do(req *http.Request) (*http.Response, error) {
	call := "lark_message"
	if strings.Contains(req.URL.Path, "/auth/") {
		call = "lark_token"
	}
	start := time.Now()
	resp, err := ic.client.Do(req)
	metrics.UpstreamDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(call, "error").Inc()
		return nil, fmt.Errorf("%s: %w", call, err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(call, fmt.Sprint(resp.StatusCode)).Inc()
	return resp, nil
}

// tokenCache keeps tokens per client instead of in the SDK's shared cache.
type tokenCache struct {
	mu      sync.Mutex
	entries map[string]cachedToken
}

type cachedToken struct {
	value   string
	expires time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{entries: make(map[string]cachedToken)}
}

func (tc *tokenCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.entries[key] = cachedToken{value: value, expires: time.Now().Add(ttl)}
	return nil
}

func (tc *tokenCache) Get(_ context.Context, key string) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	e, ok := tc.entries[key]
	if !ok || time.Now().After(e.expires) {
		delete(tc.entries, key)
		return "", nil
	}
	return e.value, nil
}

// sdkLogger routes SDK log lines into slog.
type sdkLogger struct {
	logger *slog.Logger
}

func (l sdkLogger) Debug(ctx context.Context, args ...interface{}) {
	l.logger.DebugContext(ctx, fmt.Sprint(args...), "component", "lark-sdk")
}

func (l sdkLogger) Info(ctx context.Context, args ...interface{}) {
	l.logger.InfoContext(ctx, fmt.Sprint(args...), "component", "lark-sdk")
}

func (l sdkLogger) Warn(ctx context.Context, args ...interface{}) {
	l.logger.WarnContext(ctx, fmt.Sprint(args...), "component", "lark-sdk")
}

func (l sdkLogger) Error(ctx context.Context, args ...interface{}) {
	l.logger.ErrorContext(ctx, fmt.Sprint(args...), "component", "lark-sdk")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

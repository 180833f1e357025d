package lark

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/web3-frozen/chain-activity/internal/senders"
)

const messageEventBody = `{
  "schema": "2.0",
  "header": {"event_id": "ev_1", "event_type": "im.message.receive_v1", "token": "vt", "tenant_key": "tk", "app_id": "cli_test", "create_time": "1717200000000"},
  "event": {
    "sender": {"sender_id": {"user_id": "u_42", "open_id": "ou_42", "union_id": "on_42"}, "sender_type": "user", "tenant_key": "tk"},
    "message": {"message_id": "om_1", "chat_id": "oc_9", "chat_type": "p2p", "message_type": "text", "content": "{\"text\":\"hi\"}"}
  }
}`

func newTestWebhook(token, encryptKey string) (*Webhook, *senders.MemoryStore) {
	store := senders.NewMemoryStore()
	w := NewWebhook(token, encryptKey, store, testLogger())
	w.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return w, store
}

func deliver(w *Webhook, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/lark/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, req)
	return rec
}

// encryptEvent seals body the way Lark does when an encrypt key is set and
// returns the callback body with its signature headers.
func encryptEvent(t *testing.T, key, body string) (string, map[string]string) {
	t.Helper()
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		t.Fatal(err)
	}
	pad := aes.BlockSize - len(body)%aes.BlockSize
	plain := append([]byte(body), bytes.Repeat([]byte{byte(pad)}, pad)...)
	iv := bytes.Repeat([]byte{7}, aes.BlockSize)
	sealed := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(sealed, plain)

	wrapped, _ := json.Marshal(map[string]string{
		"encrypt": base64.StdEncoding.EncodeToString(append(iv, sealed...)),
	})

	ts, nonce := "1717200000", "n-1"
	sig := sha256.Sum256([]byte(ts + nonce + key + string(wrapped)))
	return string(wrapped), map[string]string{
		"X-Lark-Request-Timestamp": ts,
		"X-Lark-Request-Nonce":     nonce,
		"X-Lark-Signature":         hex.EncodeToString(sig[:]),
	}
}

func TestWebhookURLVerification(t *testing.T) {
	w, _ := newTestWebhook("vt", "")
	rec := deliver(w, `{"type":"url_verification","challenge":"abc","token":"vt"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var reply struct {
		Challenge string `json:"challenge"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil || reply.Challenge != "abc" {
		t.Errorf("challenge = %q, err = %v", reply.Challenge, err)
	}
}

func TestWebhookRejectsBadToken(t *testing.T) {
	w, store := newTestWebhook("vt", "")
	if rec := deliver(w, `{"type":"url_verification","challenge":"abc","token":"other"}`, nil); rec.Code == http.StatusOK {
		t.Errorf("url_verification with a wrong token answered 200")
	}
	if rec := deliver(w, strings.Replace(messageEventBody, `"token": "vt"`, `"token": "other"`, 1), nil); rec.Code == http.StatusOK {
		t.Errorf("message with a wrong token answered 200")
	}
	all, _ := store.List(context.Background())
	if len(all) != 0 {
		t.Errorf("captured %d senders, want 0", len(all))
	}
}

func TestWebhookCapturesSender(t *testing.T) {
	w, store := newTestWebhook("vt", "")
	rec := deliver(w, messageEventBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	snd, err := store.Get(context.Background(), "u_42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snd.ChatID != "oc_9" || snd.OpenID != "ou_42" || snd.UnionID != "on_42" || snd.EventID != "ev_1" {
		t.Errorf("captured = %+v", snd)
	}
	if snd.SenderType != "user" || snd.ChatType != "p2p" || !snd.CapturedAt.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("captured = %+v", snd)
	}
}

func TestWebhookDecryptsEncryptedEvents(t *testing.T) {
	const key = "ek-secret"
	w, store := newTestWebhook("vt", key)

	body, headers := encryptEvent(t, key, messageEventBody)
	rec := deliver(w, body, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	snd, err := store.Get(context.Background(), "u_42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snd.ChatID != "oc_9" {
		t.Errorf("captured = %+v", snd)
	}
}

func TestWebhookRejectsEncryptedEventWithBadSignature(t *testing.T) {
	const key = "ek-secret"
	w, store := newTestWebhook("vt", key)

	body, headers := encryptEvent(t, key, messageEventBody)
	headers["X-Lark-Signature"] = strings.Repeat("0", 64)
	if rec := deliver(w, body, headers); rec.Code == http.StatusOK {
		t.Errorf("forged signature answered 200")
	}
	all, _ := store.List(context.Background())
	if len(all) != 0 {
		t.Errorf("captured %d senders, want 0", len(all))
	}
}

func TestWebhookMalformed(t *testing.T) {
	w, _ := newTestWebhook("", "")
	if rec := deliver(w, `not json`, nil); rec.Code == http.StatusOK {
		t.Errorf("malformed body answered 200")
	}
}

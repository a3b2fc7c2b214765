package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/pkg/models"
)

type fakeSink struct {
	msgs []models.InboundMessage
}

func (f *fakeSink) HandleInbound(msg models.InboundMessage) {
	f.msgs = append(f.msgs, msg)
}

func newTestServer(cfg Config) (*Server, *fakeSink) {
	sink := &fakeSink{}
	return NewServer(cfg, sink), sink
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func textEnvelope(from, id, body string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{"id": "entry-1", "changes": [{"field": "messages", "value": {
			"messaging_product": "whatsapp",
			"contacts": [{"profile": {"name": "Kerry"}, "wa_id": %q}],
			"messages": [{"from": %q, "id": %q, "timestamp": "1700000000", "type": "text", "text": {"body": %q}}]
		}}]}]
	}`, from, from, id, body)
}

func TestVerifyWebhookHandshake(t *testing.T) {
	s, _ := newTestServer(Config{Port: 0, VerifyToken: "hunter2"})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=hunter2&hub.challenge=314159", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "314159", rec.Body.String())
}

func TestVerifyWebhookRejectsBadToken(t *testing.T) {
	s, _ := newTestServer(Config{Port: 0, VerifyToken: "hunter2"})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=314159", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "314159")
}

func TestReceiveWebhookTextMessage(t *testing.T) {
	s, sink := newTestServer(Config{Port: 0})

	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(textEnvelope("15551234567", "wamid.1", "hello bot")))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EVENT_RECEIVED", rec.Body.String())

	require.Len(t, sink.msgs, 1)
	msg := sink.msgs[0]
	assert.Equal(t, "15551234567", msg.From)
	assert.Equal(t, "Kerry", msg.ProfileName)
	assert.Equal(t, "wamid.1", msg.MessageID)
	assert.Equal(t, "hello bot", msg.Text)
	assert.EqualValues(t, 1700000000, msg.Timestamp.Unix())
	assert.Nil(t, msg.Media)
}

func TestReceiveWebhookRequiresValidSignature(t *testing.T) {
	s, sink := newTestServer(Config{Port: 0, AppSecret: "app-secret"})
	body := textEnvelope("15551234567", "wamid.2", "signed hello")

	// Unsigned delivery is refused.
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sink.msgs)

	// A correctly signed one passes.
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody("app-secret", body))
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.msgs, 1)
	assert.Equal(t, "signed hello", sink.msgs[0].Text)
}

func TestReceiveWebhookListReply(t *testing.T) {
	s, sink := newTestServer(Config{Port: 0})

	body := `{
		"object": "whatsapp_business_account",
		"entry": [{"id": "entry-1", "changes": [{"field": "messages", "value": {
			"messaging_product": "whatsapp",
			"messages": [{"from": "15551234567", "id": "wamid.3", "timestamp": "1700000100",
				"type": "interactive",
				"interactive": {"type": "list_reply", "list_reply": {"id": "cmd:reset", "title": "/reset"}}}]
		}}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.msgs, 1)
	assert.Equal(t, "cmd:reset", sink.msgs[0].Selection)
	assert.Empty(t, sink.msgs[0].Text)
}

func TestReceiveWebhookImageWithCaption(t *testing.T) {
	s, sink := newTestServer(Config{Port: 0})

	body := `{
		"object": "whatsapp_business_account",
		"entry": [{"id": "entry-1", "changes": [{"field": "messages", "value": {
			"messaging_product": "whatsapp",
			"messages": [{"from": "15551234567", "id": "wamid.4", "timestamp": "1700000200",
				"type": "image",
				"image": {"id": "media-77", "mime_type": "image/jpeg", "caption": "my cat"}}]
		}}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.msgs, 1)
	msg := sink.msgs[0]
	require.NotNil(t, msg.Media)
	assert.Equal(t, "media-77", msg.Media.MediaID)
	assert.Equal(t, "image/jpeg", msg.Media.MimeType)
	assert.Equal(t, "my cat", msg.Text)
}

func TestReceiveWebhookIgnoresStatusChanges(t *testing.T) {
	s, sink := newTestServer(Config{Port: 0})

	body := `{
		"object": "whatsapp_business_account",
		"entry": [{"id": "entry-1", "changes": [{"field": "message_template_status_update", "value": {}}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sink.msgs)
}

func TestReceiveWebhookRejectsMalformedBody(t *testing.T) {
	s, sink := newTestServer(Config{Port: 0})

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.msgs)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(Config{Port: 0})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

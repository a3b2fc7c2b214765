package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/chatrelay/internal/webhookutils"
	"github.com/chatrelay/pkg/models"
)

// webhookEnvelope is the WhatsApp Cloud API delivery wrapper. Only the
// fields the relay consumes are mapped; everything else is ignored.
type webhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []webhookContact `json:"contacts"`
	Messages         []webhookMessage `json:"messages"`
}

type webhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type webhookMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *webhookText        `json:"text,omitempty"`
	Interactive *webhookInteractive `json:"interactive,omitempty"`
	Image       *webhookMedia       `json:"image,omitempty"`
	Document    *webhookMedia       `json:"document,omitempty"`
	Audio       *webhookMedia       `json:"audio,omitempty"`
	Video       *webhookMedia       `json:"video,omitempty"`
}

type webhookText struct {
	Body string `json:"body"`
}

type webhookInteractive struct {
	Type      string            `json:"type"`
	ListReply *webhookListReply `json:"list_reply,omitempty"`
}

type webhookListReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type webhookMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// media returns the attachment payload regardless of which slot carried it.
func (m webhookMessage) media() *webhookMedia {
	switch {
	case m.Image != nil:
		return m.Image
	case m.Document != nil:
		return m.Document
	case m.Audio != nil:
		return m.Audio
	case m.Video != nil:
		return m.Video
	}
	return nil
}

// VerifyWebhook answers Meta's subscription handshake: echo the challenge
// back when the verify token matches, refuse otherwise.
func (s *Server) VerifyWebhook(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token == s.cfg.VerifyToken {
		log.Info().Msg("Webhook subscription verified")
		return c.String(http.StatusOK, challenge)
	}

	log.Warn().Str("mode", mode).Msg("Webhook verification rejected")
	return c.String(http.StatusForbidden, "verification failed")
}

// ReceiveWebhook takes a message delivery, checks its signature, hands each
// message to the sink and acknowledges. The 200 goes out before any reply is
// generated so Meta never retries a payload we already accepted.
func (s *Server) ReceiveWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	if s.cfg.AppSecret != "" {
		signature := c.Request().Header.Get("X-Hub-Signature-256")
		if !webhookutils.VerifySignature(s.cfg.AppSecret, body, signature) {
			log.Warn().Msg("Webhook signature check failed")
			return c.NoContent(http.StatusUnauthorized)
		}
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		log.Error().Err(err).Msg("Failed to parse webhook payload")
		return c.NoContent(http.StatusBadRequest)
	}

	messages := collectMessages(envelope)
	log.Debug().Int("count", len(messages)).Msg("Webhook delivery accepted")

	for _, msg := range messages {
		s.sink.HandleInbound(msg)
	}

	return c.String(http.StatusOK, "EVENT_RECEIVED")
}

// collectMessages flattens the envelope into normalized inbound messages.
// Status updates and non-message change events are skipped.
func collectMessages(envelope webhookEnvelope) []models.InboundMessage {
	var out []models.InboundMessage
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, m := range change.Value.Messages {
				out = append(out, toInbound(m, names[m.From]))
			}
		}
	}
	return out
}

func toInbound(m webhookMessage, profileName string) models.InboundMessage {
	inbound := models.InboundMessage{
		From:        m.From,
		ProfileName: profileName,
		MessageID:   m.ID,
		Timestamp:   parseTimestamp(m.Timestamp),
	}

	if m.Text != nil {
		inbound.Text = m.Text.Body
	}
	if m.Interactive != nil && m.Interactive.ListReply != nil {
		inbound.Selection = m.Interactive.ListReply.ID
	}
	if media := m.media(); media != nil {
		inbound.Media = &models.MediaDescriptor{
			MediaID:  media.ID,
			MimeType: media.MimeType,
			Filename: media.Filename,
		}
		if inbound.Text == "" {
			inbound.Text = media.Caption
		}
	}

	return inbound
}

// parseTimestamp converts the envelope's unix-seconds string. A malformed
// value falls back to the arrival time.
func parseTimestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(secs, 0)
}

package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/chatrelay/pkg/models"
)

// Config holds the Cloud API endpoint and credentials.
type Config struct {
	BaseURL           string
	PhoneNumberID     string
	AccessToken       string
	RequestsPerSecond float64
	Burst             int
}

// Client sends outbound messages through the WhatsApp Cloud API. All sends
// pass a shared rate limiter so bursts (broadcast) stay inside platform limits.
type Client struct {
	httpClient  *http.Client
	RateLimiter *rate.Limiter
	cfg         Config
}

// NewClient creates a Cloud API client.
func NewClient(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	return &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		RateLimiter: rate.NewLimiter(rate.Limit(rps), burst),
		cfg:         cfg,
	}
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type interactiveHeader struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type interactiveBody struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Button   string               `json:"button"`
	Sections []models.MenuSection `json:"sections"`
}

type interactive struct {
	Type   string             `json:"type"`
	Header *interactiveHeader `json:"header,omitempty"`
	Body   interactiveBody    `json:"body"`
	Action interactiveAction  `json:"action"`
}

type interactivePayload struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Interactive      interactive `json:"interactive"`
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	payload := textPayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	}

	if err := c.send(ctx, payload); err != nil {
		return err
	}

	log.Debug().Str("to", to).Int("chars", len(body)).Msg("Sent text message")
	return nil
}

// SendMenu delivers an interactive list message. Row IDs come back verbatim
// in the user's selection reply.
func (c *Client) SendMenu(ctx context.Context, to string, menu models.Menu) error {
	msg := interactive{
		Type: "list",
		Body: interactiveBody{Text: menu.Body},
		Action: interactiveAction{
			Button:   menu.ButtonText,
			Sections: menu.Sections,
		},
	}
	if menu.Header != "" {
		msg.Header = &interactiveHeader{Type: "text", Text: menu.Header}
	}

	payload := interactivePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive:      msg,
	}

	if err := c.send(ctx, payload); err != nil {
		return err
	}

	log.Debug().Str("to", to).Msg("Sent interactive menu")
	return nil
}

func (c *Client) send(ctx context.Context, payload interface{}) error {
	if err := c.RateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s/messages", c.cfg.BaseURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send failed with status %s: %s", resp.Status, string(body))
	}

	return nil
}

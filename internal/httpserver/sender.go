// internal/httpserver/sender.go
//
// Outbound message delivery: posts engine messages to the chat gateway's
// webhook. Attachments travel base64-encoded. With no webhook configured
// the sender logs and drops, which keeps local development runnable.

package httpserver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/okazari/soundguess/internal/provider"
)

// WebhookSender implements round.Sender over an HTTP webhook.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender targets url; an empty url selects drop mode.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type outboundAttachment struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data string `json:"data"` // base64
}

type outboundMessage struct {
	ID          string               `json:"id"`
	ChannelID   string               `json:"channelId"`
	Ref         string               `json:"ref,omitempty"`
	Content     string               `json:"content"`
	Final       bool                 `json:"final"`
	Attachments []outboundAttachment `json:"attachments,omitempty"`
}

// Send delivers a reply to the triggering message.
func (s *WebhookSender) Send(channelID, ref, content string, attachments ...provider.Artifact) error {
	return s.post(channelID, ref, content, false, attachments)
}

// SendFinal delivers a resolution message (possibly with no message ref).
func (s *WebhookSender) SendFinal(channelID, ref, content string, attachments ...provider.Artifact) error {
	return s.post(channelID, ref, content, true, attachments)
}

func (s *WebhookSender) post(channelID, ref, content string, final bool, attachments []provider.Artifact) error {
	msg := outboundMessage{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Ref:       ref,
		Content:   content,
		Final:     final,
	}
	for _, a := range attachments {
		msg.Attachments = append(msg.Attachments, outboundAttachment{
			Name: a.Name,
			MIME: a.MIME,
			Data: base64.StdEncoding.EncodeToString(a.Data),
		})
	}

	if s.url == "" {
		log.Debug().Str("channel", channelID).Str("content", content).
			Int("attachments", len(msg.Attachments)).Msg("outbound webhook not configured, dropping")
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode outbound message: %w", err)
	}
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post outbound message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("outbound webhook returned %s", resp.Status)
	}
	return nil
}

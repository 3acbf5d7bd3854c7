package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// slackSender posts Block Kit messages to a Slack incoming webhook.
type slackSender struct {
	webhookURL string
	httpClient *http.Client
}

func newSlackSender(webhookURL string) *slackSender {
	return &slackSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: sendTimeout},
	}
}

func (s *slackSender) Provider() string {
	return "slack"
}

type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string          `json:"type"`
	Text   *slackTextBlock `json:"text,omitempty"`
	Fields []slackField    `json:"fields,omitempty"`
}

type slackTextBlock struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackField struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send posts the message. Delivery failures are reported in the result,
// not as errors; a broken webhook must never fail the scan that
// triggered it.
func (s *slackSender) Send(ctx context.Context, msg Message) (*SendResult, error) {
	payload, err := json.Marshal(s.buildMessage(msg))
	if err != nil {
		return nil, fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &SendResult{Success: false, Error: fmt.Sprintf("send request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return &SendResult{
			Success: false,
			Error:   fmt.Sprintf("slack returned status %d: %s", resp.StatusCode, string(body)),
		}, nil
	}
	return &SendResult{Success: true}, nil
}

func (s *slackSender) buildMessage(msg Message) slackMessage {
	blocks := make([]slackBlock, 0, 3)

	if msg.Title != "" {
		blocks = append(blocks, slackBlock{
			Type: "header",
			Text: &slackTextBlock{Type: "plain_text", Text: msg.Title, Emoji: true},
		})
	}
	if msg.Body != "" {
		body := msg.Body
		if msg.URL != "" {
			body = fmt.Sprintf("%s\n<%s|View details>", body, msg.URL)
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackTextBlock{Type: "mrkdwn", Text: body},
		})
	}
	if len(msg.Fields) > 0 {
		fields := make([]slackField, 0, len(msg.Fields))
		for key, value := range msg.Fields {
			fields = append(fields, slackField{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*%s:*\n%s", key, value),
			})
		}
		blocks = append(blocks, slackBlock{Type: "section", Fields: fields})
	}

	return slackMessage{
		Attachments: []slackAttachment{
			{Color: severityColor(msg.Severity), Blocks: blocks},
		},
	}
}

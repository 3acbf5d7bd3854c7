package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// teamsSender posts MessageCard payloads to a Microsoft Teams incoming
// webhook.
type teamsSender struct {
	webhookURL string
	httpClient *http.Client
}

func newTeamsSender(webhookURL string) *teamsSender {
	return &teamsSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: sendTimeout},
	}
}

func (s *teamsSender) Provider() string {
	return "teams"
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Sections   []teamsSection `json:"sections"`
	Actions    []teamsAction  `json:"potentialAction,omitempty"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	Text          string      `json:"text,omitempty"`
	Facts         []teamsFact `json:"facts,omitempty"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsAction struct {
	Type    string        `json:"@type"`
	Name    string        `json:"name"`
	Targets []teamsTarget `json:"targets"`
}

type teamsTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// Send posts the message. Like the Slack sender, delivery failures are
// reported in the result rather than as errors.
func (s *teamsSender) Send(ctx context.Context, msg Message) (*SendResult, error) {
	payload, err := json.Marshal(s.buildCard(msg))
	if err != nil {
		return nil, fmt.Errorf("marshal teams card: %w", err)
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
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return &SendResult{
			Success: false,
			Error:   fmt.Sprintf("teams returned status %d: %s", resp.StatusCode, string(body)),
		}, nil
	}
	return &SendResult{Success: true}, nil
}

func (s *teamsSender) buildCard(msg Message) teamsCard {
	card := teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: strings.TrimPrefix(severityColor(msg.Severity), "#"),
		Summary:    msg.Title,
	}

	section := teamsSection{
		ActivityTitle: msg.Title,
		Text:          msg.Body,
	}
	for key, value := range msg.Fields {
		section.Facts = append(section.Facts, teamsFact{Name: key, Value: value})
	}
	card.Sections = []teamsSection{section}

	if msg.URL != "" {
		card.Actions = []teamsAction{{
			Type: "OpenUri",
			Name: "View details",
			Targets: []teamsTarget{
				{OS: "default", URI: msg.URL},
			},
		}}
	}
	return card
}

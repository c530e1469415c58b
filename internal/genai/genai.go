// Package genai provides reply generation for inbound mentions.
//
// Two backends implement ClientInterface: a hosted chatbot completion
// endpoint and the OpenAI chat completion API. Both degrade gracefully: a
// failed or malformed completion yields the fallback reply text and a log
// record, never an error, so a bad mention can never abort the poll cycle.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// FallbackReply is substituted when the completion service fails.
const FallbackReply = "Sorry, I couldn't think of a reply just now. Please try me again later!"

// DefaultTimeout bounds each completion request.
const DefaultTimeout = 30 * time.Second

// ClientInterface generates reply text for a mention. Implementations make a
// single attempt and return FallbackReply on any failure.
type ClientInterface interface {
	Generate(ctx context.Context, mentionText string) string
}

// chatMessage is one turn in the chatbot wire format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the chatbot endpoint payload.
type completionRequest struct {
	Messages  []chatMessage `json:"messages"`
	ChatbotID string        `json:"chatbot_id"`
}

// completionResponse carries the generated conversation; the reply text is
// the content of the last message.
type completionResponse struct {
	Messages []chatMessage `json:"messages"`
	Text     string        `json:"text"`
}

// ChatbotClient calls a hosted chatbot completion endpoint.
type ChatbotClient struct {
	endpoint  string
	chatbotID string
	http      *http.Client
}

// NewChatbotClient creates a client for the given completion endpoint and
// chatbot identifier.
func NewChatbotClient(endpoint, chatbotID string) (*ChatbotClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("chatbot endpoint not set")
	}
	return &ChatbotClient{
		endpoint:  endpoint,
		chatbotID: chatbotID,
		http:      &http.Client{Timeout: DefaultTimeout},
	}, nil
}

// Generate forwards the mention text to the chatbot endpoint and returns the
// reply text, or FallbackReply on any failure. Single attempt, no retry.
func (c *ChatbotClient) Generate(ctx context.Context, mentionText string) string {
	reply, err := c.complete(ctx, mentionText)
	if err != nil {
		slog.Error("ChatbotClient.Generate: completion failed, using fallback", "error", err)
		return FallbackReply
	}
	return reply
}

func (c *ChatbotClient) complete(ctx context.Context, mentionText string) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Messages:  []chatMessage{{Role: "user", Content: mentionText}},
		ChatbotID: c.chatbotID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion failed with status %d: %s", resp.StatusCode, string(body))
	}

	var cr completionResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(cr.Messages) > 0 {
		return cr.Messages[len(cr.Messages)-1].Content, nil
	}
	if cr.Text != "" {
		return cr.Text, nil
	}
	return "", fmt.Errorf("completion response carried no reply text")
}

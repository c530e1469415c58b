// Package genai provides reply generation for inbound mentions.
//
// This file implements the OpenAI chat completion backend.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// defaultSystemPrompt frames every OpenAI completion.
const defaultSystemPrompt = "You are a friendly social media bot. Reply to the mention below in a short, helpful, conversational tone. Keep the reply well under 280 characters."

// OpenAIClient generates replies through the OpenAI chat completion API.
type OpenAIClient struct {
	client       openai.Client
	model        openai.ChatModel
	systemPrompt string
}

// NewOpenAIClient initializes the OpenAI backend using the OPENAI_API_KEY
// environment variable. Requests carry the same per-call bound as the chatbot
// backend; extra request options (base URL, retries) may be appended.
func NewOpenAIClient(opts ...option.RequestOption) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(DefaultTimeout),
	}, opts...)
	return &OpenAIClient{
		client:       openai.NewClient(reqOpts...),
		model:        openai.ChatModelGPT4oMini,
		systemPrompt: defaultSystemPrompt,
	}, nil
}

// Generate produces reply text for the mention, or FallbackReply on any
// failure. Single attempt, no retry.
func (c *OpenAIClient) Generate(ctx context.Context, mentionText string) string {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.systemPrompt),
			openai.UserMessage(mentionText),
		},
	})
	if err != nil {
		slog.Error("OpenAIClient.Generate: completion failed, using fallback", "error", err)
		return FallbackReply
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		slog.Error("OpenAIClient.Generate: completion returned no choices, using fallback")
		return FallbackReply
	}
	return resp.Choices[0].Message.Content
}

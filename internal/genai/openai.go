package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default companion voice; overridable via config.
const defaultPersona = `You are a warm, friendly texting companion. You reply the way a good
friend would over SMS: short, casual, genuinely interested, sometimes
asking a light follow-up question, never robotic and never over-long.
You keep things easygoing and positive. You do not give advice, you do
not claim to be a real person, and you stay quiet on emotionally heavy
or sensitive topics.`

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Persona string
}

type Client struct {
	client  openai.Client
	model   string
	persona string
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	persona := cfg.Persona
	if persona == "" {
		persona = defaultPersona
	}

	return &Client{
		client:  openai.NewClient(opts...),
		model:   model,
		persona: persona,
	}, nil
}

// Generate produces the companion's reply to one inbound text. Single
// call, no retry; the caller bounds it with a context deadline.
func (c *Client) Generate(ctx context.Context, inbound string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.persona),
			openai.UserMessage(inbound),
		},
		Temperature: openai.Float(0.7),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}

	slog.Debug("reply generated",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("empty completion")
	}
	return reply, nil
}

func (c *Client) Model() string {
	return c.model
}

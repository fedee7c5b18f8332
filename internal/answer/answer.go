package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/labshot/labshot/internal/log"
)

// Generator produces a short written answer to a question, optionally
// grounded on the source code the question is about.
type Generator interface {
	Answer(ctx context.Context, question, source string) (string, error)
}

const systemPrompt = "You are a concise teaching assistant. Answer the question in a few short sentences suitable for inclusion in a homework report. Do not use markdown."

// OpenAIGeneratorConfig is the configuration of OpenAIGenerator.
type OpenAIGeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	CallTimeout time.Duration
	Logger      log.Logger
}

func (c *OpenAIGeneratorConfig) defaults() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}

	if c.Model == "" {
		c.Model = openai.ChatModelGPT4oMini
	}

	if c.CallTimeout == 0 {
		c.CallTimeout = 60 * time.Second
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"service": "answer.OpenAIGenerator"})

	return nil
}

// OpenAIGenerator generates answers with an OpenAI compatible completion API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	callTimeout time.Duration
	logger      log.Logger
}

// NewOpenAIGenerator returns a new OpenAIGenerator.
func NewOpenAIGenerator(config OpenAIGeneratorConfig) (*OpenAIGenerator, error) {
	err := config.defaults()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIGenerator{
		client:      &client,
		model:       config.Model,
		callTimeout: config.CallTimeout,
		logger:      config.Logger,
	}, nil
}

func (g *OpenAIGenerator) Answer(ctx context.Context, question, source string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question is required")
	}

	user := question
	if source != "" {
		user = fmt.Sprintf("%s\n\nThe question refers to this code:\n\n%s", question, source)
	}

	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
	}

	var completion *openai.ChatCompletion
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		completion, err = g.client.Chat.Completions.New(callCtx, params)
		cancel()
		if err == nil {
			break
		}
		if attempt == 1 || ctx.Err() != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}

		wait := time.Duration(2<<attempt) * time.Second
		g.logger.WithCtxValues(ctx).Warningf("Completion failed, retrying in %s: %s", wait, err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", fmt.Errorf("chat completion: %w", ctx.Err())
		}
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty answer returned")
	}

	return text, nil
}

var _ Generator = &OpenAIGenerator{}

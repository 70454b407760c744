// Package insight asks the LLM for a structured phishing verdict.
package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/logger"
)

// Config holds the model settings for an Extractor.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Extractor implements engine.InsightExtractor over the Anthropic Messages API.
type Extractor struct {
	client anthropic.Client
	cfg    Config
	log    logger.Logger
}

var _ engine.InsightExtractor = (*Extractor)(nil)

// NewExtractor returns an Extractor. The client never retries.
func NewExtractor(cfg Config, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 1024
	}
	return &Extractor{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		log:    log,
	}
}

// Extract sends the evidence text to the model, forcing the insight tool, and
// parses the tool input. Completion errors are returned wrapped; unparseable
// output returns ErrUnparseableInsight.
func (e *Extractor) Extract(ctx context.Context, evidence string) (*engine.PhishingInsight, error) {
	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(e.cfg.Model),
		MaxTokens:   int64(e.cfg.MaxOutputTokens),
		Temperature: anthropic.Float(e.cfg.Temperature),
		System:      []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(evidence)),
		},
		Tools: []anthropic.ToolUnionParam{tool()},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: ToolName},
		},
	})
	if err != nil {
		e.log.Error("Insight completion failed",
			logger.String("model", e.cfg.Model),
			logger.Error(err),
		)
		return nil, fmt.Errorf("insight completion: %w", err)
	}

	e.log.Debug("Insight completion received",
		logger.String("model", string(msg.Model)),
		logger.String("stop_reason", string(msg.StopReason)),
		logger.Int("input_tokens", int(msg.Usage.InputTokens)),
		logger.Int("output_tokens", int(msg.Usage.OutputTokens)),
	)

	if msg.StopReason == anthropic.StopReasonMaxTokens {
		e.log.Error("Insight completion hit max_tokens",
			logger.Int("max_output_tokens", e.cfg.MaxOutputTokens),
		)
		return nil, fmt.Errorf("%w: completion stopped at max_tokens", ErrUnparseableInsight)
	}

	ins, err := ParseInsight(selectContent(msg), e.log)
	if err != nil {
		e.log.Debug("Evidence that produced unparseable insight", logger.String("evidence", evidence))
		return nil, err
	}
	return ins, nil
}

// selectContent returns the insight tool's input when the model called it,
// otherwise the concatenated text blocks.
func selectContent(msg *anthropic.Message) string {
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "tool_use":
			if block.Name == ToolName && len(block.Input) > 0 {
				return string(block.Input)
			}
		case "text":
			text.WriteString(block.Text)
		}
	}
	return text.String()
}

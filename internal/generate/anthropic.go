package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/deckdraft/deckdraft/internal/domain"
)

// MessagesClient captures the subset of the Anthropic SDK used here. It is
// satisfied by *sdk.MessageService so tests can pass a stub.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicOptions configures the Anthropic-backed generator.
type AnthropicOptions struct {
	// Model is the Claude model identifier. Required.
	Model string
	// MaxTokens caps each completion. Defaults to 4096.
	MaxTokens int64
}

// AnthropicGenerator implements Generator on the Claude Messages API.
type AnthropicGenerator struct {
	msg       MessagesClient
	model     string
	maxTokens int64
}

// NewAnthropic builds a generator from an injected messages client.
func NewAnthropic(msg MessagesClient, opts AnthropicOptions) (*AnthropicGenerator, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicGenerator{msg: msg, model: opts.Model, maxTokens: maxTokens}, nil
}

// NewAnthropicFromAPIKey constructs a generator using the default Anthropic
// HTTP client.
func NewAnthropicFromAPIKey(apiKey, model string) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropic(&client.Messages, AnthropicOptions{Model: model})
}

const strawmanSystemPrompt = `You draft presentation outlines. Respond with a single JSON object,
no prose and no code fences, shaped as:
{"title": string, "slides": [{"heading": string, "bullets": [string], "notes": string}]}`

// strawmanPayload is the JSON shape requested from the model.
type strawmanPayload struct {
	Title  string `json:"title"`
	Slides []struct {
		Heading string   `json:"heading"`
		Bullets []string `json:"bullets"`
		Notes   string   `json:"notes"`
	} `json:"slides"`
}

// GenerateStrawman asks the model for a draft deck matching the accepted plan.
func (g *AnthropicGenerator) GenerateStrawman(ctx context.Context, req StrawmanRequest) (*domain.Strawman, error) {
	if req.Plan == nil {
		return nil, errors.New("strawman generation requires an accepted plan")
	}

	prompt := buildStrawmanPrompt(req)
	msg, err := g.msg.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: g.maxTokens,
		System:    []sdk.TextBlockParam{{Text: strawmanSystemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}

	text := firstText(msg)
	if text == "" {
		return nil, errors.New("anthropic response contained no text content")
	}

	var payload strawmanPayload
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		return nil, fmt.Errorf("decode strawman payload: %w", err)
	}
	if len(payload.Slides) == 0 {
		return nil, errors.New("strawman payload contained no slides")
	}

	slides := make([]domain.SlideDraft, 0, len(payload.Slides))
	for _, s := range payload.Slides {
		slides = append(slides, domain.SlideDraft{
			Heading: s.Heading,
			Bullets: s.Bullets,
			Notes:   s.Notes,
		})
	}
	title := payload.Title
	if title == "" {
		title = req.Plan.Title
	}

	return &domain.Strawman{
		ArtifactID:  uuid.NewString(),
		Title:       title,
		Slides:      slides,
		GeneratedAt: time.Now(),
	}, nil
}

// GenerateSlide asks the model for prose body text for one drafted slide.
func (g *AnthropicGenerator) GenerateSlide(ctx context.Context, req SlideRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Presentation topic: %s\n", req.Topic)
	fmt.Fprintf(&b, "Write the final speaker content for slide %d, headed %q.\n", req.Index+1, req.Slide.Heading)
	if len(req.Slide.Bullets) > 0 {
		b.WriteString("Cover these points:\n")
		for _, bullet := range req.Slide.Bullets {
			fmt.Fprintf(&b, "- %s\n", bullet)
		}
	}
	if req.Slide.Notes != "" {
		fmt.Fprintf(&b, "Drafting notes: %s\n", req.Slide.Notes)
	}

	msg, err := g.msg.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(b.String()))},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}

	text := firstText(msg)
	if text == "" {
		return "", errors.New("anthropic response contained no text content")
	}
	return text, nil
}

func buildStrawmanPrompt(req StrawmanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	for _, a := range req.Answers {
		fmt.Fprintf(&b, "Clarification: %s\n", a)
	}
	for _, n := range req.PlanNotes {
		fmt.Fprintf(&b, "Revision note: %s\n", n)
	}
	fmt.Fprintf(&b, "Accepted outline, titled %q:\n", req.Plan.Title)
	for i, s := range req.Plan.Slides {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, s.Heading, s.Summary)
	}
	b.WriteString("Draft one slide per outline entry.")
	return b.String()
}

func firstText(msg *sdk.Message) string {
	if msg == nil {
		return ""
	}
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text
		}
	}
	return ""
}

// stripFences tolerates models that wrap JSON in a markdown code fence despite
// the system prompt.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deckdraft/deckdraft/internal/domain"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func textMessage(text string) *sdk.Message {
	return &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{
				Type: "text",
				Text: text,
			},
		},
		StopReason: sdk.StopReasonEndTurn,
	}
}

func sampleStrawmanRequest() StrawmanRequest {
	return StrawmanRequest{
		SessionID: "sess-1",
		Topic:     "graceful degradation",
		Answers:   []string{"backend engineers", "short and practical"},
		PlanNotes: []string{"include a case study"},
		Plan: &domain.SlidePlan{
			Title: "graceful degradation",
			Slides: []domain.PlanSlide{
				{Heading: "Introduction", Summary: "why failure is normal"},
				{Heading: "Patterns", Summary: "timeouts, fallbacks, shedding"},
			},
		},
	}
}

func TestGenerateStrawman(t *testing.T) {
	t.Parallel()

	stub := &stubMessagesClient{
		resp: textMessage(`{"title":"graceful degradation","slides":[
			{"heading":"Introduction","bullets":["failure is normal"],"notes":"open strong"},
			{"heading":"Patterns","bullets":["timeouts","fallbacks"],"notes":""}]}`),
	}
	gen, err := NewAnthropic(stub, AnthropicOptions{Model: "claude-sonnet-4-5"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}

	sm, err := gen.GenerateStrawman(context.Background(), sampleStrawmanRequest())
	if err != nil {
		t.Fatalf("GenerateStrawman: %v", err)
	}
	if sm.ArtifactID == "" {
		t.Error("artifact id not assigned")
	}
	if sm.Title != "graceful degradation" {
		t.Errorf("title = %q", sm.Title)
	}
	if len(sm.Slides) != 2 || sm.Slides[0].Heading != "Introduction" {
		t.Errorf("slides = %#v", sm.Slides)
	}
	if sm.Slides[0].Notes != "open strong" {
		t.Errorf("notes = %q", sm.Slides[0].Notes)
	}

	if got := string(stub.lastParams.Model); got != "claude-sonnet-4-5" {
		t.Errorf("model = %q", got)
	}
	if stub.lastParams.MaxTokens != 4096 {
		t.Errorf("max tokens = %d, want default 4096", stub.lastParams.MaxTokens)
	}
	if len(stub.lastParams.System) != 1 {
		t.Fatalf("system blocks = %d, want 1", len(stub.lastParams.System))
	}
}

func TestGenerateStrawmanPromptIncludesContext(t *testing.T) {
	t.Parallel()

	stub := &stubMessagesClient{
		resp: textMessage(`{"title":"t","slides":[{"heading":"h","bullets":["b"],"notes":""}]}`),
	}
	gen, err := NewAnthropic(stub, AnthropicOptions{Model: "claude-sonnet-4-5"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	if _, err := gen.GenerateStrawman(context.Background(), sampleStrawmanRequest()); err != nil {
		t.Fatalf("GenerateStrawman: %v", err)
	}

	prompt := buildStrawmanPrompt(sampleStrawmanRequest())
	for _, want := range []string{
		"graceful degradation",
		"backend engineers",
		"include a case study",
		"Patterns",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateStrawmanToleratesFences(t *testing.T) {
	t.Parallel()

	stub := &stubMessagesClient{
		resp: textMessage("```json\n{\"title\":\"fenced\",\"slides\":[{\"heading\":\"h\",\"bullets\":[\"b\"],\"notes\":\"\"}]}\n```"),
	}
	gen, err := NewAnthropic(stub, AnthropicOptions{Model: "claude-sonnet-4-5"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}

	sm, err := gen.GenerateStrawman(context.Background(), sampleStrawmanRequest())
	if err != nil {
		t.Fatalf("GenerateStrawman: %v", err)
	}
	if sm.Title != "fenced" {
		t.Errorf("title = %q", sm.Title)
	}
}

func TestGenerateStrawmanErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *sdk.Message
		err  error
	}{
		{name: "transport error", err: errors.New("connection refused")},
		{name: "no text content", resp: &sdk.Message{}},
		{name: "not json", resp: textMessage("here is your outline!")},
		{name: "empty slides", resp: textMessage(`{"title":"t","slides":[]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubMessagesClient{resp: tt.resp, err: tt.err}
			gen, err := NewAnthropic(stub, AnthropicOptions{Model: "claude-sonnet-4-5"})
			if err != nil {
				t.Fatalf("NewAnthropic: %v", err)
			}
			if _, err := gen.GenerateStrawman(context.Background(), sampleStrawmanRequest()); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestGenerateStrawmanRequiresPlan(t *testing.T) {
	t.Parallel()

	gen, err := NewAnthropic(&stubMessagesClient{}, AnthropicOptions{Model: "claude-sonnet-4-5"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	if _, err := gen.GenerateStrawman(context.Background(), StrawmanRequest{Topic: "anything"}); err == nil {
		t.Fatal("expected an error without an accepted plan")
	}
}

func TestGenerateSlide(t *testing.T) {
	t.Parallel()

	stub := &stubMessagesClient{resp: textMessage("Speaker notes for the intro.")}
	gen, err := NewAnthropic(stub, AnthropicOptions{Model: "claude-sonnet-4-5", MaxTokens: 512})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}

	body, err := gen.GenerateSlide(context.Background(), SlideRequest{
		SessionID: "sess-1",
		Topic:     "graceful degradation",
		Index:     0,
		Slide:     domain.SlideDraft{Heading: "Introduction", Bullets: []string{"failure is normal"}},
	})
	if err != nil {
		t.Fatalf("GenerateSlide: %v", err)
	}
	if body != "Speaker notes for the intro." {
		t.Errorf("body = %q", body)
	}
	if stub.lastParams.MaxTokens != 512 {
		t.Errorf("max tokens = %d, want 512", stub.lastParams.MaxTokens)
	}
}

func TestNewAnthropicValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewAnthropic(nil, AnthropicOptions{Model: "m"}); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewAnthropic(&stubMessagesClient{}, AnthropicOptions{}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := NewAnthropicFromAPIKey("", "m"); err == nil {
		t.Error("expected error for missing api key")
	}
}

func TestCannedGenerator(t *testing.T) {
	t.Parallel()

	gen := NewCanned()
	req := sampleStrawmanRequest()

	sm, err := gen.GenerateStrawman(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateStrawman: %v", err)
	}
	if len(sm.Slides) != len(req.Plan.Slides) {
		t.Fatalf("slides = %d, want %d", len(sm.Slides), len(req.Plan.Slides))
	}
	if sm.ArtifactID == "" {
		t.Error("artifact id not assigned")
	}

	// Two runs mint distinct artifacts; dedup lives in the gateway guard.
	again, err := gen.GenerateStrawman(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateStrawman: %v", err)
	}
	if again.ArtifactID == sm.ArtifactID {
		t.Error("artifact ids collided")
	}

	body, err := gen.GenerateSlide(context.Background(), SlideRequest{Slide: sm.Slides[0]})
	if err != nil {
		t.Fatalf("GenerateSlide: %v", err)
	}
	if !strings.Contains(body, sm.Slides[0].Heading) {
		t.Errorf("body = %q missing heading", body)
	}

	if _, err := gen.GenerateStrawman(context.Background(), StrawmanRequest{}); err == nil {
		t.Error("expected error without a plan")
	}
}

// Package planner turns a short project idea into a JSON project plan using
// an OpenAI-compatible chat completion endpoint.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/devpilot-hq/devpilot/internal/logger"
)

const systemPrompt = "You are DevPilot Assistant. When given a short project idea, produce a structured project plan for a software developer. " +
	"Output strict JSON only with fields: project_name, summary, estimated_weeks, phases. " +
	"Each phase must have: name, description, tasks (array of {title, description, estimate_hours, priority}). Keep JSON valid."

var (
	ErrIdeaRequired  = errors.New("project idea is required")
	ErrNotConfigured = errors.New("planner API key not configured")
	ErrEmptyResponse = errors.New("no response from model")
	ErrInvalidPlan   = errors.New("model response is not valid plan JSON")
)

// Result carries the model's JSON exactly as returned, minus any markdown
// fence. Its shape is whatever the model produced.
type Result struct {
	Raw json.RawMessage
}

// Config configures the planner client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	// Referer is sent as HTTP-Referer, which OpenRouter uses for attribution.
	Referer    string
	HTTPClient *http.Client
}

// Planner calls the chat completion API.
type Planner struct {
	client      *openai.Client
	model       string
	temperature float32
	log         zerolog.Logger
}

// New creates a Planner. It returns a Planner even without an API key so the
// HTTP layer can report the missing configuration per request.
func New(cfg Config) *Planner {
	p := &Planner{
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		log:         logger.WithComponent("planner"),
	}
	if p.model == "" {
		p.model = openai.GPT4
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return p
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Referer != "" {
		transport := httpClient.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &refererTransport{referer: cfg.Referer, next: transport}
		httpClient = &wrapped
	}
	clientConfig.HTTPClient = httpClient

	p.client = openai.NewClientWithConfig(clientConfig)
	return p
}

// Configured reports whether an API key was supplied.
func (p *Planner) Configured() bool {
	return p != nil && p.client != nil
}

// GeneratePlan asks the model for a plan for idea.
func (p *Planner) GeneratePlan(ctx context.Context, idea string) (*Result, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return nil, ErrIdeaRequired
	}
	if !p.Configured() {
		return nil, ErrNotConfigured
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: idea},
		},
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	raw := stripCodeFence(resp.Choices[0].Message.Content)

	if !json.Valid([]byte(raw)) {
		p.log.Warn().Int("content_length", len(raw)).Msg("model returned non-JSON plan")
		return nil, ErrInvalidPlan
	}

	p.log.Info().
		Str("model", p.model).
		Int("content_length", len(raw)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("generated project plan")

	return &Result{Raw: json.RawMessage(raw)}, nil
}

// Models sometimes wrap JSON in a markdown fence despite the prompt.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if newline := strings.IndexByte(content, '\n'); newline >= 0 {
		content = content[newline+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

type refererTransport struct {
	referer string
	next    http.RoundTripper
}

func (t *refererTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("HTTP-Referer", t.referer)
	return t.next.RoundTrip(clone)
}

// Package agent invokes an external LLM to answer a user's query, optionally
// grounded in recent chat history and a captured photo.
package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"
)

// DefaultDeadline bounds how long a single Generate call may run before the
// fixed apology response is returned instead.
const DefaultDeadline = 30 * time.Second

// ApologyResponse is returned whenever the backend fails or times out — the
// wearer always gets a spoken reply, never a silent failure.
const ApologyResponse = "Sorry, I wasn't able to get an answer to that. Please try again."

// Photo is one piece of visual context to attach to a query.
type Photo struct {
	Bytes    []byte
	MimeType string
}

// HistoryTurn is one prior exchange to include for context.
type HistoryTurn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is everything needed to answer one query.
type Request struct {
	Query    string
	Photos   []Photo
	History  []HistoryTurn
	Location string // human-readable, empty if unavailable
	Notices  []string
	Timezone string
	Now      time.Time

	// Device capability context, so the prompt can shape its answer to what
	// the wearer can actually perceive (no display means a spoken answer
	// has to stand on its own; no camera means a vision question should say
	// so instead of pretending to have looked).
	HasDisplay  bool
	HasSpeakers bool
	HasCamera   bool
}

// Response is the agent's answer.
type Response struct {
	Text string
}

// Provider answers a Request, grounded in whatever context it was given.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Config configures an OpenAI-compatible Provider.
type Config struct {
	Provider    string // "openai", "deepseek", "siliconflow", ...
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Deadline    time.Duration // defaults to DefaultDeadline
}

type openAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	deadline    time.Duration
	log         zerolog.Logger
}

// NewOpenAICompatibleProvider builds a Provider backed by any
// OpenAI-chat-completions-compatible endpoint.
func NewOpenAICompatibleProvider(cfg Config, log zerolog.Logger) (Provider, error) {
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	switch cfg.Provider {
	case "", "openai":
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	case "deepseek":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.deepseek.com"
		}
		clientConfig.BaseURL = baseURL
	case "siliconflow":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.siliconflow.cn/v1"
		}
		clientConfig.BaseURL = baseURL
	default:
		return nil, fmt.Errorf("unsupported agent provider: %s", cfg.Provider)
	}

	return &openAIProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		deadline:    deadline,
		log:         log.With().Str("component", "agent").Logger(),
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 45 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func (p *openAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	messages := buildMessages(req)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Messages:    messages,
	})
	if err != nil {
		p.log.Error().Err(err).Msg("agent generate failed")
		return Response{Text: ApologyResponse}, fmt.Errorf("agent generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		p.log.Warn().Msg("agent returned no choices")
		return Response{Text: ApologyResponse}, fmt.Errorf("agent generate: empty response")
	}
	return Response{Text: resp.Choices[0].Message.Content}, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage

	sys := systemPrompt(req)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sys})

	for _, h := range req.History {
		role := openai.ChatMessageRoleUser
		if h.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}

	if len(req.Photos) == 0 {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Query})
		return messages
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Query}}
	for _, photo := range req.Photos {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: dataURL(photo),
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts})
	return messages
}

func dataURL(p Photo) string {
	mt := p.MimeType
	if mt == "" {
		mt = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mt, base64.StdEncoding.EncodeToString(p.Bytes))
}

func systemPrompt(req Request) string {
	prompt := "You are a concise voice assistant speaking through smart glasses. Keep answers short enough to read aloud in one breath."
	if req.Location != "" {
		prompt += " The wearer's current location is " + req.Location + "."
	}
	if req.Timezone != "" {
		prompt += " The wearer's timezone is " + req.Timezone + "."
		if !req.Now.IsZero() {
			if loc, err := time.LoadLocation(req.Timezone); err == nil {
				prompt += " The current local time is " + req.Now.In(loc).Format("3:04 PM on Monday, January 2") + "."
			}
		}
	}
	if !req.HasDisplay {
		prompt += " The wearer has no display, so your entire answer must work as speech alone."
	}
	if !req.HasCamera && len(req.Photos) == 0 {
		prompt += " You have no camera access right now; if the question needs you to see something, say so rather than guessing."
	}
	for _, n := range req.Notices {
		prompt += " Recent notification: " + n
	}
	return prompt
}

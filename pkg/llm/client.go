// Package llm provides generation backends for OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pdfchat-go/internal/config"
)

// Provider 标识一种生成后端。
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGroq   Provider = "groq"
)

// ParseProvider 在边界处把字符串标签转换为 Provider，未知标签返回错误。
func ParseProvider(tag string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(tag))) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderGroq:
		return ProviderGroq, nil
	default:
		return "", fmt.Errorf("unsupported model type: %q", tag)
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator is the single capability the answering component depends on.
type Generator interface {
	// Generate sends the messages once and returns the complete reply text.
	Generate(ctx context.Context, messages []Message) (string, error)
	Provider() Provider
	Model() string
}

// Settings 描述构造一个 Generator 所需的全部参数，通常来自一次 /chat 请求。
type Settings struct {
	Provider    Provider
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	// Timeout 为 0 时只受调用方 ctx 约束。
	Timeout time.Duration
	// BaseURL 为空时使用配置中的默认地址。
	BaseURL string
}

// New 根据 Settings.Provider 构造对应的 Generator。
func New(s Settings, cfg config.LLMConfig) (Generator, error) {
	if s.Model == "" {
		return nil, errors.New("model name is required")
	}
	if s.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	switch s.Provider {
	case ProviderOpenAI:
		if s.BaseURL == "" {
			s.BaseURL = cfg.OpenAIBaseURL
		}
		return &openAIGenerator{transport: newTransport(s)}, nil
	case ProviderGroq:
		if s.BaseURL == "" {
			s.BaseURL = cfg.GroqBaseURL
		}
		return &groqGenerator{transport: newTransport(s)}, nil
	default:
		return nil, fmt.Errorf("unsupported model type: %q", s.Provider)
	}
}

type chatRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	Stream              bool      `json:"stream"`
	Temperature         *float64  `json:"temperature,omitempty"`
	MaxTokens           *int      `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int      `json:"max_completion_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// transport 是两种后端共用的 /chat/completions 调用逻辑。
type transport struct {
	settings Settings
	client   *http.Client
}

func newTransport(s Settings) transport {
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	return transport{settings: s, client: &http.Client{}}
}

func (t transport) do(ctx context.Context, reqBody chatRequest) (string, error) {
	provider := t.settings.Provider
	if t.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.settings.Timeout)
		defer cancel()
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &GenerationError{Provider: provider, Kind: KindMalformed, Err: fmt.Errorf("failed to marshal chat request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.settings.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", &GenerationError{Provider: provider, Kind: KindNetwork, Err: fmt.Errorf("failed to create chat request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.settings.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(ctx, provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(provider, resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &GenerationError{Provider: provider, Kind: KindMalformed, Err: fmt.Errorf("failed to decode chat response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &GenerationError{Provider: provider, Kind: KindMalformed, Err: errors.New("chat response has no choices")}
	}
	return parsed.Choices[0].Message.Content, nil
}

type openAIGenerator struct {
	transport
}

func (g *openAIGenerator) Provider() Provider { return ProviderOpenAI }
func (g *openAIGenerator) Model() string      { return g.settings.Model }

// Generate 调用 OpenAI；新版接口使用 max_completion_tokens 限制输出长度。
func (g *openAIGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	temperature := g.settings.Temperature
	req := chatRequest{
		Model:       g.settings.Model,
		Messages:    messages,
		Temperature: &temperature,
	}
	if g.settings.MaxTokens > 0 {
		m := g.settings.MaxTokens
		req.MaxCompletionTokens = &m
	}
	return g.do(ctx, req)
}

type groqGenerator struct {
	transport
}

func (g *groqGenerator) Provider() Provider { return ProviderGroq }
func (g *groqGenerator) Model() string      { return g.settings.Model }

// groqMinTemperature: Groq 不接受 0，传 0 时按其文档替换为极小正数。
const groqMinTemperature = 1e-8

// Generate 调用 Groq 的 OpenAI 兼容接口。
func (g *groqGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	temperature := g.settings.Temperature
	if temperature <= 0 {
		temperature = groqMinTemperature
	}
	req := chatRequest{
		Model:       g.settings.Model,
		Messages:    messages,
		Temperature: &temperature,
	}
	if g.settings.MaxTokens > 0 {
		m := g.settings.MaxTokens
		req.MaxTokens = &m
	}
	return g.do(ctx, req)
}

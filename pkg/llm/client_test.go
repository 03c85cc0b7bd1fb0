package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdfchat-go/internal/config"
)

func replyJSON(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" OpenAI ")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)

	p, err = ParseProvider("groq")
	require.NoError(t, err)
	assert.Equal(t, ProviderGroq, p)

	_, err = ParseProvider("anthropic")
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Settings{Provider: ProviderOpenAI, APIKey: "k"}, config.LLMConfig{})
	assert.Error(t, err)
	_, err = New(Settings{Provider: ProviderOpenAI, Model: "m"}, config.LLMConfig{})
	assert.Error(t, err)
	_, err = New(Settings{Provider: "other", Model: "m", APIKey: "k"}, config.LLMConfig{})
	assert.Error(t, err)
}

func TestOpenAIGenerator_RequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, 0.2, body["temperature"])
		assert.Equal(t, float64(256), body["max_completion_tokens"])
		assert.NotContains(t, body, "max_tokens")
		replyJSON(w, "answer from openai")
	}))
	defer srv.Close()

	gen, err := New(Settings{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-test", Temperature: 0.2, MaxTokens: 256},
		config.LLMConfig{OpenAIBaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, gen.Provider())

	out, err := gen.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "answer from openai", out)
}

func TestGroqGenerator_RequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, float64(128), body["max_tokens"])
		assert.Greater(t, body["temperature"].(float64), 0.0)
		replyJSON(w, "answer from groq")
	}))
	defer srv.Close()

	gen, err := New(Settings{Provider: ProviderGroq, Model: "llama3-8b-8192", APIKey: "gsk", Temperature: 0, MaxTokens: 128},
		config.LLMConfig{GroqBaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, ProviderGroq, gen.Provider())
	assert.Equal(t, "llama3-8b-8192", gen.Model())

	out, err := gen.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "answer from groq", out)
}

func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   ErrorKind
		target error
	}{
		{"unauthorized", http.StatusUnauthorized, KindAuth, ErrAuth},
		{"rate limited", http.StatusTooManyRequests, KindRateLimit, ErrRateLimit},
		{"gateway timeout", http.StatusGatewayTimeout, KindTimeout, ErrTimeout},
		{"server error", http.StatusInternalServerError, KindUpstream, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"x"}`))
			}))
			defer srv.Close()

			gen, err := New(Settings{Provider: ProviderOpenAI, Model: "m", APIKey: "k"}, config.LLMConfig{OpenAIBaseURL: srv.URL})
			require.NoError(t, err)
			_, err = gen.Generate(context.Background(), nil)
			require.Error(t, err)

			var genErr *GenerationError
			require.True(t, errors.As(err, &genErr))
			assert.Equal(t, tc.kind, genErr.Kind)
			assert.Equal(t, tc.status, genErr.Status)
			if tc.target != nil {
				assert.True(t, errors.Is(err, tc.target))
			} else {
				assert.False(t, errors.Is(err, ErrTimeout))
			}
		})
	}
}

func TestGenerate_TimeoutIsDistinguished(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	gen, err := New(Settings{Provider: ProviderGroq, Model: "m", APIKey: "k", Timeout: 50 * time.Millisecond},
		config.LLMConfig{GroqBaseURL: srv.URL})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), []Message{{Role: "user", Content: "slow"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestGenerate_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	gen, err := New(Settings{Provider: ProviderOpenAI, Model: "m", APIKey: "k"}, config.LLMConfig{OpenAIBaseURL: srv.URL})
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), nil)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, KindMalformed, genErr.Kind)
}

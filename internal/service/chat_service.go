// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pdfchat-go/internal/config"
	"pdfchat-go/internal/model"
	"pdfchat-go/internal/registry"
	"pdfchat-go/internal/repository"
	"pdfchat-go/pkg/llm"
	"pdfchat-go/pkg/log"
	"pdfchat-go/pkg/metrics"
)

// NoDocumentsMessage 是没有任何已上传文档时的固定回复，属于正常结果而非错误。
const NoDocumentsMessage = "No PDFs have been uploaded yet. Please upload at least one PDF first."

const defaultRules = `You are an assistant that answers questions about the user's uploaded PDF documents.
Answer strictly from the reference context between the markers below; do not use outside knowledge.
Attribute every factual claim to the document it came from by name, for example "(source: report.pdf)".
If the context does not contain the information needed, say so explicitly instead of guessing.`

var (
	// ErrInvalidGeneratorSettings 表示请求中的模型参数无法构造生成后端。
	ErrInvalidGeneratorSettings = errors.New("invalid generator settings")
	// ErrInvalidHistory 表示调用方提供的历史消息含有不允许的角色。
	ErrInvalidHistory = errors.New("invalid chat history")
	// ErrTranscriptDisabled 表示未启用 Redis，会话记录不可用。
	ErrTranscriptDisabled = errors.New("conversation transcript is disabled")
)

// GeneratorFactory 根据请求参数构造生成后端。
type GeneratorFactory func(settings llm.Settings) (llm.Generator, error)

// ChatRequest 是一次问答请求。History 为调用方自行提供的历史消息，服务端不会补充。
type ChatRequest struct {
	Query     string
	Settings  llm.Settings
	SessionID string
	History   []model.ChatMessage
}

// Answer 是一次问答的结果。
type Answer struct {
	Text        string
	Sources     []model.SourceDTO
	NoDocuments bool
}

// ChatService 定义了问答操作的接口。
type ChatService interface {
	Chat(ctx context.Context, req ChatRequest) (Answer, error)
	Answer(ctx context.Context, query string, gen llm.Generator, history []model.ChatMessage) (Answer, error)
	History(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

type chatService struct {
	registry         *registry.Registry
	newGenerator     GeneratorFactory
	conversationRepo repository.ConversationRepository
	metrics          *metrics.Metrics
	topK             int
	timeout          time.Duration
	prompt           config.LLMPromptConfig
}

// NewChatService 创建一个新的 ChatService 实例。conversationRepo 可以为 nil。
func NewChatService(reg *registry.Registry, newGenerator GeneratorFactory, conversationRepo repository.ConversationRepository,
	m *metrics.Metrics, retrievalCfg config.RetrievalConfig, llmCfg config.LLMConfig) ChatService {
	return &chatService{
		registry:         reg,
		newGenerator:     newGenerator,
		conversationRepo: conversationRepo,
		metrics:          m,
		topK:             retrievalCfg.TopK,
		timeout:          llmCfg.Timeout,
		prompt:           llmCfg.Prompt,
	}
}

// Chat 构造生成后端并回答问题，成功后把本轮问答写入会话记录。
func (s *chatService) Chat(ctx context.Context, req ChatRequest) (Answer, error) {
	if err := validateHistory(req.History); err != nil {
		return Answer{}, err
	}
	if s.registry.Merged() == nil {
		return Answer{Text: NoDocumentsMessage, NoDocuments: true}, nil
	}

	settings := req.Settings
	if settings.Timeout == 0 {
		settings.Timeout = s.timeout
	}
	gen, err := s.newGenerator(settings)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrInvalidGeneratorSettings, err)
	}

	answer, err := s.Answer(ctx, req.Query, gen, req.History)
	if err != nil {
		return Answer{}, err
	}

	if s.conversationRepo != nil && req.SessionID != "" {
		now := time.Now()
		// 即使原始请求已被取消，也保存已经生成的答案
		if err := s.conversationRepo.AppendConversationHistory(context.WithoutCancel(ctx), req.SessionID,
			model.ChatMessage{Role: "user", Content: req.Query, Timestamp: now},
			model.ChatMessage{Role: "assistant", Content: answer.Text, Timestamp: now},
		); err != nil {
			log.Errorf("[ChatService] 保存会话记录失败, SessionID: %s, Error: %v", req.SessionID, err)
		}
	}
	return answer, nil
}

// Answer 检索 topK 个分块，组装带引用要求的提示词，只调用一次生成后端并原样返回其输出。
func (s *chatService) Answer(ctx context.Context, query string, gen llm.Generator, history []model.ChatMessage) (Answer, error) {
	merged := s.registry.Merged()
	if merged == nil {
		return Answer{Text: NoDocumentsMessage, NoDocuments: true}, nil
	}

	hits, err := merged.Search(ctx, query, s.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to retrieve context: %w", err)
	}
	log.Infof("[ChatService] 检索完成, 命中 %d 个分块", len(hits))

	sources := make([]model.SourceDTO, len(hits))
	contextLines := make([]contextLine, len(hits))
	for i, h := range hits {
		sources[i] = model.SourceDTO{
			DocumentID:   h.Segment.DocumentID,
			DocumentName: h.Segment.DocumentName,
			Page:         h.Segment.Page,
			Position:     h.Segment.Position,
			Score:        h.Score,
		}
		contextLines[i] = contextLine{name: h.Segment.DocumentName, page: h.Segment.Page, text: h.Segment.TextContent}
	}

	messages := composeMessages(s.buildSystemMessage(contextLines), history, query)

	start := time.Now()
	text, err := gen.Generate(ctx, messages)
	s.metrics.ObserveGeneration(string(gen.Provider()), generationOutcome(err), time.Since(start))
	if err != nil {
		log.Errorf("[ChatService] 生成失败, Provider: %s, Model: %s, Error: %v", gen.Provider(), gen.Model(), err)
		return Answer{}, err
	}
	return Answer{Text: text, Sources: sources}, nil
}

// History 返回某个会话的记录。
func (s *chatService) History(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if s.conversationRepo == nil {
		return nil, ErrTranscriptDisabled
	}
	return s.conversationRepo.GetConversationHistory(ctx, sessionID)
}

type contextLine struct {
	name string
	page int
	text string
}

func (s *chatService) buildSystemMessage(lines []contextLine) string {
	rules := s.prompt.Rules
	if rules == "" {
		rules = defaultRules
	}
	refStart := s.prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := s.prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\n")
	sys.WriteString(refStart)
	sys.WriteString("\n")
	for i, l := range lines {
		fmt.Fprintf(&sys, "[%d] (%s, page %d) %s\n", i+1, l.name, l.page, l.text)
	}
	sys.WriteString(refEnd)
	return sys.String()
}

// validateHistory 只接受 user 与 assistant 两种角色，系统提示只能由服务端生成。
func validateHistory(history []model.ChatMessage) error {
	for i, m := range history {
		if m.Role != "user" && m.Role != "assistant" {
			return fmt.Errorf("%w: history[%d] has role %q, want user or assistant", ErrInvalidHistory, i, m.Role)
		}
	}
	return nil
}

func composeMessages(systemMsg string, history []model.ChatMessage, query string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: query})
	return msgs
}

func generationOutcome(err error) string {
	if err == nil {
		return "success"
	}
	var genErr *llm.GenerationError
	if errors.As(err, &genErr) {
		return string(genErr.Kind)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}

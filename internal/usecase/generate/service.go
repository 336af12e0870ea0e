package generate

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"social-pilot/internal/domain"
	"social-pilot/internal/infra/metrics"
	openai "social-pilot/internal/infra/openai"
)

// FallbackMessage возвращается вместо контента при отказе модели.
const FallbackMessage = "Error generating content. Please try again without media or check backend logs."

const publishTimeout = 10 * time.Second

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service оркестрирует генерацию поста: медиа, RAG-контекст, вызов модели,
// разбор вариантов и публикация события. Вызывающая сторона всегда получает
// результат: отказ любой внешней зависимости деградирует, но не падает.
type Service struct {
	chat            chatClient
	model           string
	media           domain.MediaFetcher
	contexts        domain.ContextSource
	events          domain.EventPublisher
	maxExampleChars int
	defaultPlatform string
	log             zerolog.Logger
}

// NewService создаёт оркестратор генерации.
func NewService(chat chatClient, model string, media domain.MediaFetcher, contexts domain.ContextSource, events domain.EventPublisher, maxExampleChars int, defaultPlatform string, logger zerolog.Logger) *Service {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if maxExampleChars <= 0 {
		maxExampleChars = 500
	}
	if defaultPlatform == "" {
		defaultPlatform = string(domain.ProviderLinkedIn)
	}
	return &Service{
		chat:            chat,
		model:           model,
		media:           media,
		contexts:        contexts,
		events:          events,
		maxExampleChars: maxExampleChars,
		defaultPlatform: defaultPlatform,
		log:             logger,
	}
}

// Generate выполняет полный цикл генерации для одного запроса.
func (s *Service) Generate(ctx context.Context, req domain.GenerationRequest) domain.GenerationResult {
	metrics.GenerationRequestsTotal.Inc()
	s.log.Info().
		Str("prompt", clipRunes(req.Prompt, 50)).
		Int("media", len(req.MediaIDs)).
		Msg("generate: новый запрос")

	attachments := s.downloadMedia(ctx, req)
	examples := s.retrieveContext(ctx, req)

	systemPrompt := buildSystemPrompt(req.Tone, examples, s.maxExampleChars)
	userMessage := buildUserMessage(req.Prompt, attachments)

	resp, err := s.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			userMessage,
		},
	})
	if err != nil || len(resp.Choices) == 0 {
		if err == nil {
			err = fmt.Errorf("пустой ответ модели")
		}
		s.log.Error().Err(err).Msg("generate: отказ провайдера модели")
		metrics.GenerationFallbacksTotal.Inc()
		return domain.GenerationResult{RawContent: FallbackMessage, Options: []string{FallbackMessage}}
	}

	rawContent := resp.Choices[0].Message.Content
	options := splitOptions(rawContent)

	s.publishAsync(req, strings.Join(options, "\n\n---\n\n"))

	return domain.GenerationResult{RawContent: rawContent, Options: options}
}

// downloadMedia скачивает вложения. Недоступный файл пропускается.
func (s *Service) downloadMedia(ctx context.Context, req domain.GenerationRequest) []domain.MediaAttachment {
	if len(req.MediaIDs) == 0 {
		return nil
	}
	attachments := make([]domain.MediaAttachment, 0, len(req.MediaIDs))
	for _, mediaID := range req.MediaIDs {
		attachment, err := s.media.Download(ctx, mediaID)
		if err != nil {
			s.log.Warn().Err(err).Str("media", mediaID.String()).Msg("generate: пропускаем недоступный медиафайл")
			continue
		}
		attachments = append(attachments, attachment)
	}
	return attachments
}

// retrieveContext запрашивает прошлые посты аккаунта. Любая ошибка
// означает генерацию без контекста.
func (s *Service) retrieveContext(ctx context.Context, req domain.GenerationRequest) []string {
	if req.SocialAccountID == nil {
		return nil
	}
	examples, err := s.contexts.RelevantContext(ctx, *req.SocialAccountID, req.Prompt)
	if err != nil {
		s.log.Info().Err(err).Msg("generate: контекст недоступен, продолжаем без него")
		return nil
	}
	s.log.Info().Int("examples", len(examples)).Msg("generate: получен RAG-контекст")
	return examples
}

// publishAsync отправляет событие завершения, не блокируя ответ.
func (s *Service) publishAsync(req domain.GenerationRequest, content string) {
	platform := req.Platform
	if platform == "" {
		platform = s.defaultPlatform
	}
	event := domain.GenerationCompletedEvent{
		Prompt:           req.Prompt,
		GeneratedContent: content,
		Platform:         platform,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, event); err != nil {
			s.log.Error().Err(err).Msg("generate: не удалось опубликовать событие")
		}
	}()
}

// buildUserMessage собирает пользовательское сообщение: текст плюс
// изображения как data-URL.
func buildUserMessage(prompt string, attachments []domain.MediaAttachment) openai.ChatMessage {
	if len(attachments) == 0 {
		return openai.ChatMessage{Role: openai.RoleUser, Content: prompt}
	}
	parts := make([]openai.ChatContentPart, 0, len(attachments)+1)
	parts = append(parts, openai.ChatContentPart{Type: openai.ContentPartText, Text: prompt})
	for _, attachment := range attachments {
		dataURL := fmt.Sprintf("data:%s;base64,%s", attachment.MimeType, base64.StdEncoding.EncodeToString(attachment.Data))
		parts = append(parts, openai.ChatContentPart{
			Type:     openai.ContentPartImageURL,
			ImageURL: &openai.ChatImageURL{URL: dataURL},
		})
	}
	return openai.ChatMessage{Role: openai.RoleUser, Content: parts}
}

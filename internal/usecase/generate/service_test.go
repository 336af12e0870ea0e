package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"social-pilot/internal/domain"
	openai "social-pilot/internal/infra/openai"
)

type stubChat struct {
	response openai.ChatCompletionResponse
	err      error
	lastReq  openai.ChatCompletionRequest
}

func (s *stubChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	return s.response, s.err
}

type stubMedia struct {
	attachments map[uuid.UUID]domain.MediaAttachment
}

func (s *stubMedia) Download(_ context.Context, mediaID uuid.UUID) (domain.MediaAttachment, error) {
	attachment, ok := s.attachments[mediaID]
	if !ok {
		return domain.MediaAttachment{}, errors.New("media not found")
	}
	return attachment, nil
}

type stubContexts struct {
	examples []string
	err      error
	called   bool
}

func (s *stubContexts) RelevantContext(_ context.Context, _ uuid.UUID, _ string) ([]string, error) {
	s.called = true
	return s.examples, s.err
}

type stubPublisher struct {
	events chan domain.GenerationCompletedEvent
	err    error
}

func (s *stubPublisher) Publish(_ context.Context, event domain.GenerationCompletedEvent) error {
	if s.events != nil {
		s.events <- event
	}
	return s.err
}

func chatResponse(content string) openai.ChatCompletionResponse {
	var choice openai.ChatCompletionChoice
	choice.Message.Role = openai.RoleSystem
	choice.Message.Content = content
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{choice}}
}

func newTestService(chat *stubChat, media *stubMedia, contexts *stubContexts, events *stubPublisher) *Service {
	if media == nil {
		media = &stubMedia{}
	}
	if contexts == nil {
		contexts = &stubContexts{}
	}
	if events == nil {
		events = &stubPublisher{}
	}
	return NewService(chat, "gpt-4.1-mini", media, contexts, events, 500, "LINKEDIN", zerolog.Nop())
}

func TestGenerateSplitsOptions(t *testing.T) {
	chat := &stubChat{response: chatResponse("Option A ### Option B ###  ")}
	events := &stubPublisher{events: make(chan domain.GenerationCompletedEvent, 1)}
	svc := newTestService(chat, nil, nil, events)

	result := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "launch post"})
	if len(result.Options) != 2 {
		t.Fatalf("ожидали 2 варианта, получили %v", result.Options)
	}
	if result.Options[0] != "Option A" || result.Options[1] != "Option B" {
		t.Fatalf("варианты не очищены от пробелов: %v", result.Options)
	}

	select {
	case event := <-events.events:
		if event.Platform != "LINKEDIN" {
			t.Fatalf("ожидали платформу по умолчанию, получили %q", event.Platform)
		}
		if !strings.Contains(event.GeneratedContent, "Option A") || !strings.Contains(event.GeneratedContent, "Option B") {
			t.Fatalf("событие не содержит сгенерированных вариантов: %q", event.GeneratedContent)
		}
	case <-time.After(time.Second):
		t.Fatalf("событие завершения не было опубликовано")
	}
}

func TestGenerateModelFailureReturnsFallback(t *testing.T) {
	chat := &stubChat{err: errors.New("model overloaded")}
	svc := newTestService(chat, nil, nil, nil)

	result := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "hello"})
	if result.RawContent != FallbackMessage {
		t.Fatalf("ожидали заглушку, получили %q", result.RawContent)
	}
	if len(result.Options) != 1 || result.Options[0] != FallbackMessage {
		t.Fatalf("заглушка должна быть единственным вариантом: %v", result.Options)
	}
}

func TestGenerateEmptyChoicesReturnsFallback(t *testing.T) {
	chat := &stubChat{}
	svc := newTestService(chat, nil, nil, nil)

	result := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "hello"})
	if result.RawContent != FallbackMessage {
		t.Fatalf("пустой список choices должен давать заглушку, получили %q", result.RawContent)
	}
}

func TestGenerateDegradesWhenDependenciesFail(t *testing.T) {
	accountID := uuid.New()
	chat := &stubChat{response: chatResponse("Solid post about Go")}
	media := &stubMedia{} // любая загрузка падает
	contexts := &stubContexts{err: errors.New("analytics down")}
	events := &stubPublisher{events: make(chan domain.GenerationCompletedEvent, 1), err: errors.New("broker down")}
	svc := newTestService(chat, media, contexts, events)

	result := svc.Generate(context.Background(), domain.GenerationRequest{
		Prompt:          "write about Go",
		MediaIDs:        []uuid.UUID{uuid.New()},
		SocialAccountID: &accountID,
	})
	if len(result.Options) != 1 || result.Options[0] != "Solid post about Go" {
		t.Fatalf("отказ зависимостей не должен ломать генерацию: %v", result.Options)
	}
	if !contexts.called {
		t.Fatalf("контекст должен был запрашиваться")
	}
	select {
	case <-events.events:
	case <-time.After(time.Second):
		t.Fatalf("событие должно публиковаться даже при ошибке брокера")
	}
}

func TestGenerateAttachesImagesToUserMessage(t *testing.T) {
	mediaID := uuid.New()
	chat := &stubChat{response: chatResponse("post")}
	media := &stubMedia{attachments: map[uuid.UUID]domain.MediaAttachment{
		mediaID: {MimeType: "image/png", Data: []byte{1, 2, 3}},
	}}
	svc := newTestService(chat, media, nil, nil)

	svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "caption this", MediaIDs: []uuid.UUID{mediaID}})

	if len(chat.lastReq.Messages) != 2 {
		t.Fatalf("ожидали системное и пользовательское сообщения, получили %d", len(chat.lastReq.Messages))
	}
	parts, ok := chat.lastReq.Messages[1].Content.([]openai.ChatContentPart)
	if !ok {
		t.Fatalf("с вложениями пользовательское сообщение должно быть составным")
	}
	if len(parts) != 2 || parts[0].Type != openai.ContentPartText || parts[1].Type != openai.ContentPartImageURL {
		t.Fatalf("неожиданный состав сообщения: %+v", parts)
	}
	if !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,") {
		t.Fatalf("изображение должно кодироваться как data-URL, получили %q", parts[1].ImageURL.URL)
	}
}

func TestGenerateSkipsContextWithoutAccount(t *testing.T) {
	chat := &stubChat{response: chatResponse("post")}
	contexts := &stubContexts{}
	svc := newTestService(chat, nil, contexts, nil)

	svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "no account"})
	if contexts.called {
		t.Fatalf("без аккаунта контекст запрашиваться не должен")
	}
}

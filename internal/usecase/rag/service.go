package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"social-pilot/internal/domain"
	"social-pilot/internal/infra/metrics"
)

// Service поддерживает векторное хранилище постов в актуальном состоянии
// и отвечает на запросы ближайших соседей.
type Service struct {
	repo     domain.EmbeddingRepo
	embedder domain.Embedder
	log      zerolog.Logger
}

// NewService создаёт сервис векторного хранилища.
func NewService(repo domain.EmbeddingRepo, embedder domain.Embedder, logger zerolog.Logger) *Service {
	return &Service{repo: repo, embedder: embedder, log: logger}
}

type embeddingMetadata struct {
	EngagementScore int    `json:"engagement_score"`
	PostedAt        string `json:"posted_at"`
}

// postContent выводит каноничный текст поста для векторизации.
func postContent(post domain.HistoricalPost) string {
	return fmt.Sprintf("Post created on %s which received an engagement score of %d",
		post.CreatedAt.UTC().Format(time.RFC3339), post.EngagementCount)
}

func postKey(post domain.HistoricalPost) string {
	return post.CreatedAt.UTC().Format(time.RFC3339)
}

// IngestPosts синхронизирует векторы аккаунта с историей постов.
// Повторный вызов с теми же данными не делает записей: вектор пересоздаётся
// только если производный текст отличается от сохранённого. Ошибка
// векторизации одного поста не прерывает остальные.
func (s *Service) IngestPosts(ctx context.Context, accountID uuid.UUID, posts []domain.HistoricalPost) error {
	if len(posts) == 0 {
		s.log.Warn().Str("account", accountID.String()).Msg("rag: нет постов для загрузки")
		return nil
	}

	existing, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("чтение существующих векторов: %w", err)
	}

	existingByKey := make(map[string]domain.PostEmbedding, len(existing))
	for _, emb := range existing {
		var meta embeddingMetadata
		if err := json.Unmarshal(emb.Metadata, &meta); err != nil || meta.PostedAt == "" {
			s.log.Warn().Str("embedding", emb.ID.String()).Msg("rag: пропускаем запись с некорректными метаданными")
			continue
		}
		existingByKey[meta.PostedAt] = emb
	}

	var toSave []domain.PostEmbedding
	created, updated := 0, 0

	for _, post := range posts {
		key := postKey(post)
		content := postContent(post)

		current, ok := existingByKey[key]
		if ok && current.Content == content {
			continue
		}

		vector, err := s.embedder.Embed(ctx, content)
		if err != nil {
			s.log.Error().Err(err).Str("posted_at", key).Msg("rag: векторизация поста не удалась, пропускаем")
			continue
		}

		metadata, err := json.Marshal(embeddingMetadata{
			EngagementScore: post.EngagementCount,
			PostedAt:        key,
		})
		if err != nil {
			s.log.Error().Err(err).Str("posted_at", key).Msg("rag: сериализация метаданных не удалась, пропускаем")
			continue
		}

		if ok {
			current.Content = content
			current.Vector = vector
			current.Metadata = metadata
			toSave = append(toSave, current)
			updated++
		} else {
			toSave = append(toSave, domain.PostEmbedding{
				ID:              uuid.New(),
				SocialAccountID: accountID,
				Content:         content,
				Metadata:        metadata,
				Vector:          vector,
			})
			created++
		}
	}

	if len(toSave) == 0 {
		s.log.Info().Str("account", accountID.String()).Msg("rag: изменений нет, запись не требуется")
		return nil
	}

	if err := s.repo.SaveBatch(ctx, toSave); err != nil {
		return fmt.Errorf("сохранение векторов: %w", err)
	}
	metrics.IncEmbeddingUpserts("created", created)
	metrics.IncEmbeddingUpserts("updated", updated)
	s.log.Info().
		Str("account", accountID.String()).
		Int("created", created).
		Int("updated", updated).
		Msg("rag: векторы обновлены")
	return nil
}

// FindSimilar возвращает тексты не более limit ближайших постов аккаунта.
func (s *Service) FindSimilar(ctx context.Context, accountID uuid.UUID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("векторизация запроса: %w", err)
	}
	neighbors, err := s.repo.SearchSimilar(ctx, accountID, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("поиск ближайших векторов: %w", err)
	}
	contents := make([]string, 0, len(neighbors))
	for _, emb := range neighbors {
		contents = append(contents, emb.Content)
	}
	return contents, nil
}

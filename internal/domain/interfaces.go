package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AnalysisJobRepo управляет задачами анализа.
type AnalysisJobRepo interface {
	CreateJob(ctx context.Context, accountID uuid.UUID, provider Provider) (AnalysisJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (AnalysisJob, error)
	// NextPending возвращает самую старую задачу в статусе PENDING.
	NextPending(ctx context.Context) (AnalysisJob, bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status AnalysisStatus) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

// TimeSlotRepo управляет рекомендованными слотами публикации.
type TimeSlotRepo interface {
	// ReplaceForAccount атомарно заменяет полный набор слотов аккаунта.
	ReplaceForAccount(ctx context.Context, accountID uuid.UUID, slots []OptimalTimeSlot) error
	ListForAccount(ctx context.Context, accountID uuid.UUID) ([]OptimalTimeSlot, error)
}

// EmbeddingRepo управляет векторными представлениями постов.
type EmbeddingRepo interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]PostEmbedding, error)
	SaveBatch(ctx context.Context, embeddings []PostEmbedding) error
	// SearchSimilar возвращает не более limit ближайших векторов аккаунта,
	// отсортированных по возрастанию расстояния.
	SearchSimilar(ctx context.Context, accountID uuid.UUID, vector []float32, limit int) ([]PostEmbedding, error)
}

// HistoricalDataProvider выгружает историю постов платформы.
type HistoricalDataProvider interface {
	HistoricalData(ctx context.Context, accessToken string) ([]HistoricalPost, error)
}

// TokenResolver возвращает токен доступа аккаунта.
type TokenResolver interface {
	AccessToken(ctx context.Context, accountID uuid.UUID) (string, error)
}

// MediaFetcher скачивает медиафайл по идентификатору.
type MediaFetcher interface {
	Download(ctx context.Context, mediaID uuid.UUID) (MediaAttachment, error)
}

// Embedder строит векторное представление текста.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContextSource возвращает релевантные прошлые посты аккаунта.
type ContextSource interface {
	RelevantContext(ctx context.Context, accountID uuid.UUID, query string) ([]string, error)
}

// EventPublisher публикует событие завершения генерации.
type EventPublisher interface {
	Publish(ctx context.Context, event GenerationCompletedEvent) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provider определяет социальную платформу аккаунта.
type Provider string

const (
	// ProviderLinkedIn — аккаунт LinkedIn.
	ProviderLinkedIn Provider = "LINKEDIN"
	// ProviderTwitter — аккаунт Twitter/X.
	ProviderTwitter Provider = "TWITTER"
)

// AnalysisStatus описывает состояние задачи анализа.
type AnalysisStatus string

const (
	// StatusPending — задача ждёт обработки.
	StatusPending AnalysisStatus = "PENDING"
	// StatusFetchingData — идёт выгрузка истории постов.
	StatusFetchingData AnalysisStatus = "FETCHING_DATA"
	// StatusAnalyzing — идёт расчёт слотов.
	StatusAnalyzing AnalysisStatus = "ANALYZING"
	// StatusCompleted — задача завершена успешно.
	StatusCompleted AnalysisStatus = "COMPLETED"
	// StatusSkipped — у аккаунта нет истории, анализ пропущен.
	StatusSkipped AnalysisStatus = "SKIPPED"
	// StatusFailed — задача завершилась ошибкой.
	StatusFailed AnalysisStatus = "FAILED"
)

// Terminal сообщает, является ли статус конечным.
func (s AnalysisStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped || s == StatusFailed
}

// AnalysisJob описывает одну задачу анализа аккаунта.
type AnalysisJob struct {
	ID              uuid.UUID
	SocialAccountID uuid.UUID
	Provider        Provider
	Status          AnalysisStatus
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HistoricalPost представляет исторический пост из внешней платформы.
type HistoricalPost struct {
	CreatedAt       time.Time
	EngagementCount int
}

// OptimalTimeSlot хранит нормированную оценку вовлечённости для слота (день, час).
type OptimalTimeSlot struct {
	SocialAccountID uuid.UUID
	DayOfWeek       time.Weekday
	HourOfDay       int
	EngagementScore float64
}

// PostEmbedding хранит векторное представление одного исторического поста.
type PostEmbedding struct {
	ID              uuid.UUID
	SocialAccountID uuid.UUID
	Content         string
	Metadata        []byte
	Vector          []float32
}

// MediaAttachment содержит скачанный медиафайл для генерации.
type MediaAttachment struct {
	Data     []byte
	MimeType string
}

// GenerationRequest описывает запрос на генерацию поста.
type GenerationRequest struct {
	Prompt          string
	MediaIDs        []uuid.UUID
	Tone            string
	Platform        string
	SocialAccountID *uuid.UUID
}

// GenerationResult содержит сырой ответ модели и разобранные варианты.
type GenerationResult struct {
	RawContent string
	Options    []string
}

// GenerationCompletedEvent публикуется после каждой генерации.
type GenerationCompletedEvent struct {
	Prompt           string `json:"prompt"`
	GeneratedContent string `json:"generatedContent"`
	Platform         string `json:"platform"`
	Timestamp        string `json:"timestamp"`
}

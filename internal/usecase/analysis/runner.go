package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"social-pilot/internal/domain"
	"social-pilot/internal/infra/metrics"
)

const maxErrorLength = 1000

const ingestTimeout = 2 * time.Minute

// clientFactory выдаёт клиента платформы по провайдеру.
type clientFactory interface {
	Client(provider domain.Provider) (domain.HistoricalDataProvider, error)
}

// ingester выполняет фоновую загрузку постов в векторное хранилище.
type ingester interface {
	IngestPosts(ctx context.Context, accountID uuid.UUID, posts []domain.HistoricalPost) error
}

// Runner обрабатывает задачи анализа: выгрузка истории, расчёт слотов,
// фоновое обновление векторов. За один тик продвигается не больше одной
// задачи, поэтому пропускная способность — одна задача на интервал.
type Runner struct {
	jobs       domain.AnalysisJobRepo
	slots      domain.TimeSlotRepo
	tokens     domain.TokenResolver
	factory    clientFactory
	ingest     ingester
	noiseFloor float64
	log        zerolog.Logger
}

// NewRunner создаёт обработчик задач анализа.
func NewRunner(jobs domain.AnalysisJobRepo, slots domain.TimeSlotRepo, tokens domain.TokenResolver, factory clientFactory, ingest ingester, noiseFloor float64, logger zerolog.Logger) *Runner {
	if noiseFloor <= 0 {
		noiseFloor = DefaultNoiseFloor
	}
	return &Runner{
		jobs:       jobs,
		slots:      slots,
		tokens:     tokens,
		factory:    factory,
		ingest:     ingest,
		noiseFloor: noiseFloor,
		log:        logger,
	}
}

// Run запускает цикл опроса. Работает до отмены контекста.
// Приостановка возможна только на границе тика, не посреди задачи.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.log.Error().Err(err).Msg("runner: тик завершился ошибкой")
			}
		}
	}
}

// Tick выбирает самую старую PENDING-задачу и продвигает её до конечного
// статуса. Если очередь пуста, ничего не делает.
func (r *Runner) Tick(ctx context.Context) error {
	job, ok, err := r.jobs.NextPending(ctx)
	if err != nil {
		return fmt.Errorf("выборка pending-задачи: %w", err)
	}
	if !ok {
		r.log.Debug().Msg("runner: нет задач в очереди")
		return nil
	}

	start := time.Now()
	status, err := r.process(ctx, job)
	if err != nil {
		r.log.Error().Err(err).Str("job", job.ID.String()).Msg("runner: задача завершилась ошибкой")
		if markErr := r.jobs.MarkFailed(ctx, job.ID, truncateError(err)); markErr != nil {
			r.log.Error().Err(markErr).Str("job", job.ID.String()).Msg("runner: не удалось сохранить статус FAILED")
		}
		metrics.ObserveAnalysisJob(string(domain.StatusFailed), start)
		return nil
	}

	r.log.Info().Str("job", job.ID.String()).Str("status", string(status)).Msg("runner: задача обработана")
	metrics.ObserveAnalysisJob(string(status), start)
	return nil
}

func (r *Runner) process(ctx context.Context, job domain.AnalysisJob) (domain.AnalysisStatus, error) {
	r.log.Info().
		Str("job", job.ID.String()).
		Str("provider", string(job.Provider)).
		Msg("runner: начинаем анализ")

	if err := r.jobs.UpdateStatus(ctx, job.ID, domain.StatusFetchingData); err != nil {
		return "", fmt.Errorf("переход в FETCHING_DATA: %w", err)
	}

	accessToken, err := r.tokens.AccessToken(ctx, job.SocialAccountID)
	if err != nil {
		return "", fmt.Errorf("получение токена аккаунта: %w", err)
	}

	client, err := r.factory.Client(job.Provider)
	if err != nil {
		return "", err
	}

	posts, err := client.HistoricalData(ctx, accessToken)
	if err != nil {
		return "", fmt.Errorf("выгрузка истории постов: %w", err)
	}

	if len(posts) == 0 {
		r.log.Warn().Str("account", job.SocialAccountID.String()).Msg("runner: история пуста, анализ пропущен")
		if err := r.jobs.UpdateStatus(ctx, job.ID, domain.StatusSkipped); err != nil {
			return "", fmt.Errorf("переход в SKIPPED: %w", err)
		}
		return domain.StatusSkipped, nil
	}

	if err := r.jobs.UpdateStatus(ctx, job.ID, domain.StatusAnalyzing); err != nil {
		return "", fmt.Errorf("переход в ANALYZING: %w", err)
	}

	slots := ScoreTimeSlots(job.SocialAccountID, posts, r.noiseFloor)
	if err := r.slots.ReplaceForAccount(ctx, job.SocialAccountID, slots); err != nil {
		return "", fmt.Errorf("сохранение слотов: %w", err)
	}

	// Загрузка векторов идёт в фоне и не влияет на итог задачи.
	r.ingestAsync(job.SocialAccountID, posts)

	if err := r.jobs.UpdateStatus(ctx, job.ID, domain.StatusCompleted); err != nil {
		return "", fmt.Errorf("переход в COMPLETED: %w", err)
	}
	return domain.StatusCompleted, nil
}

func (r *Runner) ingestAsync(accountID uuid.UUID, posts []domain.HistoricalPost) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()
		if err := r.ingest.IngestPosts(ctx, accountID, posts); err != nil {
			r.log.Error().Err(err).Str("account", accountID.String()).Msg("runner: фоновая загрузка векторов не удалась")
		}
	}()
}

func truncateError(err error) string {
	msg := err.Error()
	if msg == "" {
		msg = "unknown error"
	}
	runes := []rune(msg)
	if len(runes) > maxErrorLength {
		return string(runes[:maxErrorLength])
	}
	return msg
}

package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"social-pilot/internal/domain"
	"social-pilot/internal/infra/metrics"
)

// ErrJobNotFound возвращается, если задача анализа не найдена.
var ErrJobNotFound = errors.New("задача анализа не найдена")

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.AnalysisJobRepo = (*Postgres)(nil)
	_ domain.TimeSlotRepo    = (*Postgres)(nil)
	_ domain.EmbeddingRepo   = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// CreateJob создаёт задачу анализа в статусе PENDING.
func (p *Postgres) CreateJob(ctx context.Context, accountID uuid.UUID, provider domain.Provider) (domain.AnalysisJob, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	job := domain.AnalysisJob{}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO analysis_jobs (id, social_account_id, provider, status)
VALUES (gen_random_uuid(), $1, $2, $3)
RETURNING id, social_account_id, provider, status, COALESCE(last_error, ''), created_at, updated_at
`, accountID, string(provider), string(domain.StatusPending)).
		Scan(&job.ID, &job.SocialAccountID, &job.Provider, &job.Status, &job.LastError, &job.CreatedAt, &job.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "insert", "analysis_jobs", start, err)
	if err != nil {
		return domain.AnalysisJob{}, err
	}
	return job, nil
}

// GetJob возвращает задачу по идентификатору.
func (p *Postgres) GetJob(ctx context.Context, id uuid.UUID) (domain.AnalysisJob, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	job := domain.AnalysisJob{}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, social_account_id, provider, status, COALESCE(last_error, ''), created_at, updated_at
FROM analysis_jobs
WHERE id = $1
`, id).Scan(&job.ID, &job.SocialAccountID, &job.Provider, &job.Status, &job.LastError, &job.CreatedAt, &job.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "select", "analysis_jobs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnalysisJob{}, ErrJobNotFound
	}
	if err != nil {
		return domain.AnalysisJob{}, err
	}
	return job, nil
}

// NextPending возвращает самую старую задачу в статусе PENDING.
func (p *Postgres) NextPending(ctx context.Context) (domain.AnalysisJob, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	job := domain.AnalysisJob{}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, social_account_id, provider, status, COALESCE(last_error, ''), created_at, updated_at
FROM analysis_jobs
WHERE status = $1
ORDER BY created_at ASC
LIMIT 1
`, string(domain.StatusPending)).
		Scan(&job.ID, &job.SocialAccountID, &job.Provider, &job.Status, &job.LastError, &job.CreatedAt, &job.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "select_pending", "analysis_jobs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnalysisJob{}, false, nil
	}
	if err != nil {
		return domain.AnalysisJob{}, false, err
	}
	return job, true, nil
}

// UpdateStatus переводит задачу в новый статус.
func (p *Postgres) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AnalysisStatus) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE analysis_jobs SET status = $2, updated_at = now() WHERE id = $1
`, id, string(status))
	metrics.ObserveNetworkRequest("postgres", "update_status", "analysis_jobs", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed переводит задачу в FAILED и сохраняет текст ошибки.
func (p *Postgres) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE analysis_jobs SET status = $2, last_error = $3, updated_at = now() WHERE id = $1
`, id, string(domain.StatusFailed), lastError)
	metrics.ObserveNetworkRequest("postgres", "mark_failed", "analysis_jobs", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ReplaceForAccount атомарно заменяет набор слотов аккаунта.
// Удаление и вставка идут в одной транзакции, читатель не увидит
// промежуточное пустое состояние.
func (p *Postgres) ReplaceForAccount(ctx context.Context, accountID uuid.UUID, slots []domain.OptimalTimeSlot) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "optimal_time_slots", start, err)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM optimal_time_slots WHERE social_account_id = $1`, accountID)
	metrics.ObserveNetworkRequest("postgres", "delete", "optimal_time_slots", start, err)
	if err != nil {
		return err
	}

	if len(slots) > 0 {
		batch := &pgx.Batch{}
		for _, slot := range slots {
			batch.Queue(`
INSERT INTO optimal_time_slots (social_account_id, day_of_week, hour_of_day, engagement_score)
VALUES ($1, $2, $3, $4)
`, slot.SocialAccountID, int(slot.DayOfWeek), slot.HourOfDay, slot.EngagementScore)
		}
		start = time.Now()
		err = tx.SendBatch(ctx, batch).Close()
		metrics.ObserveNetworkRequest("postgres", "insert_batch", "optimal_time_slots", start, err)
		if err != nil {
			return err
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "optimal_time_slots", start, err)
	return err
}

// ListForAccount возвращает слоты аккаунта по убыванию оценки.
func (p *Postgres) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]domain.OptimalTimeSlot, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT social_account_id, day_of_week, hour_of_day, engagement_score
FROM optimal_time_slots
WHERE social_account_id = $1
ORDER BY engagement_score DESC
`, accountID)
	metrics.ObserveNetworkRequest("postgres", "select", "optimal_time_slots", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []domain.OptimalTimeSlot
	for rows.Next() {
		var slot domain.OptimalTimeSlot
		var day int
		if err := rows.Scan(&slot.SocialAccountID, &day, &slot.HourOfDay, &slot.EngagementScore); err != nil {
			return nil, err
		}
		slot.DayOfWeek = time.Weekday(day)
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// ListByAccount возвращает все векторные записи аккаунта.
func (p *Postgres) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.PostEmbedding, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, social_account_id, content, metadata, embedding::text
FROM user_post_embeddings
WHERE social_account_id = $1
`, accountID)
	metrics.ObserveNetworkRequest("postgres", "select", "user_post_embeddings", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEmbeddings(rows)
}

// SaveBatch сохраняет новые и изменённые векторные записи одним батчем.
func (p *Postgres) SaveBatch(ctx context.Context, embeddings []domain.PostEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, emb := range embeddings {
		batch.Queue(`
INSERT INTO user_post_embeddings (id, social_account_id, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5::vector)
ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
`, emb.ID, emb.SocialAccountID, emb.Content, emb.Metadata, encodeVector(emb.Vector))
	}
	start := time.Now()
	err := p.pool.SendBatch(ctx, batch).Close()
	metrics.ObserveNetworkRequest("postgres", "upsert_batch", "user_post_embeddings", start, err)
	return err
}

// SearchSimilar возвращает ближайшие векторы аккаунта по косинусному расстоянию.
func (p *Postgres) SearchSimilar(ctx context.Context, accountID uuid.UUID, vector []float32, limit int) ([]domain.PostEmbedding, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, social_account_id, content, metadata, embedding::text
FROM user_post_embeddings
WHERE social_account_id = $1
ORDER BY embedding <=> $2::vector
LIMIT $3
`, accountID, encodeVector(vector), limit)
	metrics.ObserveNetworkRequest("postgres", "search_similar", "user_post_embeddings", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEmbeddings(rows)
}

func scanEmbeddings(rows pgx.Rows) ([]domain.PostEmbedding, error) {
	var embeddings []domain.PostEmbedding
	for rows.Next() {
		var emb domain.PostEmbedding
		var rawVector string
		if err := rows.Scan(&emb.ID, &emb.SocialAccountID, &emb.Content, &emb.Metadata, &rawVector); err != nil {
			return nil, err
		}
		vector, err := decodeVector(rawVector)
		if err != nil {
			return nil, err
		}
		emb.Vector = vector
		embeddings = append(embeddings, emb)
	}
	return embeddings, rows.Err()
}

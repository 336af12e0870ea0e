package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"social-pilot/internal/domain"
)

type stubJobs struct {
	pending   *domain.AnalysisJob
	statuses  []domain.AnalysisStatus
	failedMsg string
}

func (s *stubJobs) CreateJob(context.Context, uuid.UUID, domain.Provider) (domain.AnalysisJob, error) {
	return domain.AnalysisJob{}, nil
}

func (s *stubJobs) GetJob(context.Context, uuid.UUID) (domain.AnalysisJob, error) {
	return domain.AnalysisJob{}, nil
}

func (s *stubJobs) NextPending(context.Context) (domain.AnalysisJob, bool, error) {
	if s.pending == nil {
		return domain.AnalysisJob{}, false, nil
	}
	job := *s.pending
	s.pending = nil
	return job, true, nil
}

func (s *stubJobs) UpdateStatus(_ context.Context, _ uuid.UUID, status domain.AnalysisStatus) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *stubJobs) MarkFailed(_ context.Context, _ uuid.UUID, lastError string) error {
	s.statuses = append(s.statuses, domain.StatusFailed)
	s.failedMsg = lastError
	return nil
}

type stubSlots struct {
	replaced [][]domain.OptimalTimeSlot
}

func (s *stubSlots) ReplaceForAccount(_ context.Context, _ uuid.UUID, slots []domain.OptimalTimeSlot) error {
	s.replaced = append(s.replaced, slots)
	return nil
}

func (s *stubSlots) ListForAccount(context.Context, uuid.UUID) ([]domain.OptimalTimeSlot, error) {
	return nil, nil
}

type stubTokens struct {
	err error
}

func (s *stubTokens) AccessToken(context.Context, uuid.UUID) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "token", nil
}

type stubProvider struct {
	posts []domain.HistoricalPost
	err   error
}

func (s *stubProvider) HistoricalData(context.Context, string) ([]domain.HistoricalPost, error) {
	return s.posts, s.err
}

type stubFactory struct {
	provider domain.HistoricalDataProvider
}

func (s *stubFactory) Client(domain.Provider) (domain.HistoricalDataProvider, error) {
	if s.provider == nil {
		return nil, errors.New("нет клиента")
	}
	return s.provider, nil
}

type stubIngester struct {
	err  error
	done chan struct{}
}

func (s *stubIngester) IngestPosts(context.Context, uuid.UUID, []domain.HistoricalPost) error {
	if s.done != nil {
		defer close(s.done)
	}
	return s.err
}

func pendingJob() *domain.AnalysisJob {
	return &domain.AnalysisJob{
		ID:              uuid.New(),
		SocialAccountID: uuid.New(),
		Provider:        domain.ProviderLinkedIn,
		Status:          domain.StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
}

func newTestRunner(jobs *stubJobs, slots *stubSlots, tokens *stubTokens, provider domain.HistoricalDataProvider, ingest *stubIngester) *Runner {
	return NewRunner(jobs, slots, tokens, &stubFactory{provider: provider}, ingest, DefaultNoiseFloor, zerolog.Nop())
}

func TestTickCompletesJob(t *testing.T) {
	jobs := &stubJobs{pending: pendingJob()}
	slots := &stubSlots{}
	ingest := &stubIngester{done: make(chan struct{})}
	provider := &stubProvider{posts: []domain.HistoricalPost{{CreatedAt: monday, EngagementCount: 12}}}

	runner := newTestRunner(jobs, slots, &stubTokens{}, provider, ingest)
	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	want := []domain.AnalysisStatus{domain.StatusFetchingData, domain.StatusAnalyzing, domain.StatusCompleted}
	if len(jobs.statuses) != len(want) {
		t.Fatalf("ожидали переходы %v, получили %v", want, jobs.statuses)
	}
	for i, status := range want {
		if jobs.statuses[i] != status {
			t.Fatalf("ожидали переходы %v, получили %v", want, jobs.statuses)
		}
	}
	if len(slots.replaced) != 1 {
		t.Fatalf("ожидали одну замену слотов, получили %d", len(slots.replaced))
	}
	select {
	case <-ingest.done:
	case <-time.After(time.Second):
		t.Fatalf("фоновая загрузка векторов не была запущена")
	}
}

func TestTickNoPendingJobs(t *testing.T) {
	jobs := &stubJobs{}
	runner := newTestRunner(jobs, &stubSlots{}, &stubTokens{}, &stubProvider{}, &stubIngester{})
	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(jobs.statuses) != 0 {
		t.Fatalf("не ожидали переходов, получили %v", jobs.statuses)
	}
}

func TestTickFetchFailureMarksFailed(t *testing.T) {
	jobs := &stubJobs{pending: pendingJob()}
	slots := &stubSlots{}
	provider := &stubProvider{err: errors.New("api quota exceeded")}

	runner := newTestRunner(jobs, slots, &stubTokens{}, provider, &stubIngester{})
	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("ошибка задачи не должна всплывать из тика: %v", err)
	}

	last := jobs.statuses[len(jobs.statuses)-1]
	if last != domain.StatusFailed {
		t.Fatalf("ожидали FAILED, получили %s", last)
	}
	if !strings.Contains(jobs.failedMsg, "api quota exceeded") {
		t.Fatalf("ожидали текст ошибки в last_error, получили %q", jobs.failedMsg)
	}
	if len(slots.replaced) != 0 {
		t.Fatalf("слоты не должны меняться при ошибке выгрузки")
	}
}

func TestTickTokenFailureMarksFailed(t *testing.T) {
	jobs := &stubJobs{pending: pendingJob()}
	runner := newTestRunner(jobs, &stubSlots{}, &stubTokens{err: errors.New("нет токена")}, &stubProvider{}, &stubIngester{})
	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	last := jobs.statuses[len(jobs.statuses)-1]
	if last != domain.StatusFailed {
		t.Fatalf("ожидали FAILED, получили %s", last)
	}
}

func TestTickEmptyHistorySkips(t *testing.T) {
	jobs := &stubJobs{pending: pendingJob()}
	slots := &stubSlots{}
	runner := newTestRunner(jobs, slots, &stubTokens{}, &stubProvider{}, &stubIngester{})
	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	want := []domain.AnalysisStatus{domain.StatusFetchingData, domain.StatusSkipped}
	if len(jobs.statuses) != len(want) || jobs.statuses[1] != domain.StatusSkipped {
		t.Fatalf("ожидали переходы %v, получили %v", want, jobs.statuses)
	}
	if len(slots.replaced) != 0 {
		t.Fatalf("слоты не должны меняться для пустой истории")
	}
}

func TestTickIngestFailureDoesNotFailJob(t *testing.T) {
	jobs := &stubJobs{pending: pendingJob()}
	ingest := &stubIngester{err: errors.New("vector store down"), done: make(chan struct{})}
	provider := &stubProvider{posts: []domain.HistoricalPost{{CreatedAt: monday, EngagementCount: 3}}}

	runner := newTestRunner(jobs, &stubSlots{}, &stubTokens{}, provider, ingest)
	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	select {
	case <-ingest.done:
	case <-time.After(time.Second):
		t.Fatalf("фоновая загрузка не была запущена")
	}

	last := jobs.statuses[len(jobs.statuses)-1]
	if last != domain.StatusCompleted {
		t.Fatalf("отказ загрузки векторов не должен менять итог задачи, получили %s", last)
	}
	if jobs.failedMsg != "" {
		t.Fatalf("не ожидали записи last_error, получили %q", jobs.failedMsg)
	}
}

func TestTruncateErrorLimitsLength(t *testing.T) {
	long := strings.Repeat("x", 2500)
	got := truncateError(errors.New(long))
	if len([]rune(got)) != maxErrorLength {
		t.Fatalf("ожидали %d символов, получили %d", maxErrorLength, len([]rune(got)))
	}
}

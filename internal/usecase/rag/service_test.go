package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"social-pilot/internal/domain"
)

type stubEmbeddingRepo struct {
	existing []domain.PostEmbedding
	listErr  error
	saved    [][]domain.PostEmbedding

	similar   []domain.PostEmbedding
	searchErr error
	searchFor uuid.UUID
}

func (s *stubEmbeddingRepo) ListByAccount(context.Context, uuid.UUID) ([]domain.PostEmbedding, error) {
	return s.existing, s.listErr
}

func (s *stubEmbeddingRepo) SaveBatch(_ context.Context, embeddings []domain.PostEmbedding) error {
	s.saved = append(s.saved, embeddings)
	return nil
}

func (s *stubEmbeddingRepo) SearchSimilar(_ context.Context, accountID uuid.UUID, _ []float32, _ int) ([]domain.PostEmbedding, error) {
	s.searchFor = accountID
	return s.similar, s.searchErr
}

type stubEmbedder struct {
	calls   int
	failOn  int // с какого вызова (1-based) возвращать ошибку, 0 — никогда
	vectors [][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	if s.failOn != 0 && s.calls == s.failOn {
		return nil, errors.New("embedding api error")
	}
	vector := []float32{0.1, 0.2, 0.3}
	s.vectors = append(s.vectors, vector)
	return vector, nil
}

var postedAt = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func samplePost(engagement int) domain.HistoricalPost {
	return domain.HistoricalPost{CreatedAt: postedAt, EngagementCount: engagement}
}

func storedEmbedding(accountID uuid.UUID, post domain.HistoricalPost) domain.PostEmbedding {
	return domain.PostEmbedding{
		ID:              uuid.New(),
		SocialAccountID: accountID,
		Content:         postContent(post),
		Metadata:        []byte(`{"engagement_score":` + "5" + `,"posted_at":"` + postKey(post) + `"}`),
		Vector:          []float32{0.1, 0.2, 0.3},
	}
}

func TestIngestPostsCreatesNewEmbeddings(t *testing.T) {
	repo := &stubEmbeddingRepo{}
	emb := &stubEmbedder{}
	svc := NewService(repo, emb, zerolog.Nop())

	accountID := uuid.New()
	if err := svc.IngestPosts(context.Background(), accountID, []domain.HistoricalPost{samplePost(5)}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(repo.saved) != 1 || len(repo.saved[0]) != 1 {
		t.Fatalf("ожидали одну сохранённую запись, получили %v", repo.saved)
	}
	saved := repo.saved[0][0]
	if saved.SocialAccountID != accountID {
		t.Fatalf("вектор привязан к чужому аккаунту")
	}
	if saved.Content != postContent(samplePost(5)) {
		t.Fatalf("неожиданный текст вектора: %q", saved.Content)
	}
}

func TestIngestPostsIdempotent(t *testing.T) {
	accountID := uuid.New()
	post := samplePost(5)
	repo := &stubEmbeddingRepo{existing: []domain.PostEmbedding{storedEmbedding(accountID, post)}}
	emb := &stubEmbedder{}
	svc := NewService(repo, emb, zerolog.Nop())

	if err := svc.IngestPosts(context.Background(), accountID, []domain.HistoricalPost{post}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if emb.calls != 0 {
		t.Fatalf("не ожидали обращений к векторизации, получили %d", emb.calls)
	}
	if len(repo.saved) != 0 {
		t.Fatalf("повторная загрузка тех же постов не должна писать в хранилище")
	}
}

func TestIngestPostsUpdatesChangedPost(t *testing.T) {
	accountID := uuid.New()
	stored := storedEmbedding(accountID, samplePost(5))
	repo := &stubEmbeddingRepo{existing: []domain.PostEmbedding{stored}}
	svc := NewService(repo, &stubEmbedder{}, zerolog.Nop())

	// Тот же posted_at, но вовлечённость изменилась — текст другой.
	if err := svc.IngestPosts(context.Background(), accountID, []domain.HistoricalPost{samplePost(9)}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(repo.saved) != 1 || len(repo.saved[0]) != 1 {
		t.Fatalf("ожидали одну перезапись, получили %v", repo.saved)
	}
	if repo.saved[0][0].ID != stored.ID {
		t.Fatalf("изменённый пост должен обновлять существующую строку, а не создавать новую")
	}
	if repo.saved[0][0].Content != postContent(samplePost(9)) {
		t.Fatalf("текст вектора не обновился")
	}
}

func TestIngestPostsSkipsMalformedMetadata(t *testing.T) {
	accountID := uuid.New()
	broken := domain.PostEmbedding{ID: uuid.New(), SocialAccountID: accountID, Metadata: []byte("{oops")}
	repo := &stubEmbeddingRepo{existing: []domain.PostEmbedding{broken}}
	svc := NewService(repo, &stubEmbedder{}, zerolog.Nop())

	if err := svc.IngestPosts(context.Background(), accountID, []domain.HistoricalPost{samplePost(5)}); err != nil {
		t.Fatalf("битые метаданные не должны ломать загрузку: %v", err)
	}
	if len(repo.saved) != 1 || len(repo.saved[0]) != 1 {
		t.Fatalf("пост без валидной пары должен быть создан заново")
	}
	if repo.saved[0][0].ID == broken.ID {
		t.Fatalf("битую запись нельзя переиспользовать")
	}
}

func TestIngestPostsEmbedFailureIsolated(t *testing.T) {
	repo := &stubEmbeddingRepo{}
	emb := &stubEmbedder{failOn: 1}
	svc := NewService(repo, emb, zerolog.Nop())

	posts := []domain.HistoricalPost{
		samplePost(5),
		{CreatedAt: postedAt.Add(time.Hour), EngagementCount: 7},
	}
	if err := svc.IngestPosts(context.Background(), uuid.New(), posts); err != nil {
		t.Fatalf("ошибка одного поста не должна прерывать остальные: %v", err)
	}
	if len(repo.saved) != 1 || len(repo.saved[0]) != 1 {
		t.Fatalf("ожидали сохранение только второго поста, получили %v", repo.saved)
	}
}

func TestIngestPostsEmptyInput(t *testing.T) {
	repo := &stubEmbeddingRepo{}
	emb := &stubEmbedder{}
	svc := NewService(repo, emb, zerolog.Nop())

	if err := svc.IngestPosts(context.Background(), uuid.New(), nil); err != nil {
		t.Fatalf("пустой список не ошибка: %v", err)
	}
	if emb.calls != 0 || len(repo.saved) != 0 {
		t.Fatalf("пустой список не должен трогать хранилище")
	}
}

func TestFindSimilarScopesToAccount(t *testing.T) {
	accountID := uuid.New()
	repo := &stubEmbeddingRepo{similar: []domain.PostEmbedding{{Content: "first"}, {Content: "second"}}}
	svc := NewService(repo, &stubEmbedder{}, zerolog.Nop())

	contents, err := svc.FindSimilar(context.Background(), accountID, "growth tips", 5)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if repo.searchFor != accountID {
		t.Fatalf("поиск выполнен не по тому аккаунту")
	}
	if len(contents) != 2 || contents[0] != "first" || contents[1] != "second" {
		t.Fatalf("неожиданный контекст: %v", contents)
	}
}

func TestFindSimilarEmbedError(t *testing.T) {
	svc := NewService(&stubEmbeddingRepo{}, &stubEmbedder{failOn: 1}, zerolog.Nop())
	if _, err := svc.FindSimilar(context.Background(), uuid.New(), "q", 5); err == nil {
		t.Fatalf("ожидали ошибку векторизации запроса")
	}
}

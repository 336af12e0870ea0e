package rag

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type similaritySearcher interface {
	FindSimilar(ctx context.Context, accountID uuid.UUID, query string, limit int) ([]string, error)
}

// Retriever — тонкая обёртка над поиском контекста. Любая ошибка поиска
// превращается в пустой результат: обогащение контекстом не обязано
// блокировать вызывающую сторону.
type Retriever struct {
	search similaritySearcher
	limit  int
	log    zerolog.Logger
}

// NewRetriever создаёт обёртку с ограничением на размер контекста.
func NewRetriever(search similaritySearcher, limit int, logger zerolog.Logger) *Retriever {
	if limit <= 0 {
		limit = 5
	}
	return &Retriever{search: search, limit: limit, log: logger}
}

// Retrieve возвращает контекст аккаунта или пустой срез при ошибке.
func (r *Retriever) Retrieve(ctx context.Context, accountID uuid.UUID, query string) []string {
	contexts, err := r.search.FindSimilar(ctx, accountID, query, r.limit)
	if err != nil {
		r.log.Warn().Err(err).Str("account", accountID.String()).Msg("rag: поиск контекста не удался, продолжаем без него")
		return nil
	}
	return contexts
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"social-pilot/internal/adapters/accounts"
	"social-pilot/internal/adapters/embedder"
	"social-pilot/internal/adapters/platform"
	"social-pilot/internal/adapters/repo"
	"social-pilot/internal/domain"
	"social-pilot/internal/infra/cache"
	"social-pilot/internal/infra/config"
	"social-pilot/internal/infra/db"
	httpinfra "social-pilot/internal/infra/http"
	applog "social-pilot/internal/infra/log"
	"social-pilot/internal/infra/metrics"
	"social-pilot/internal/infra/openai"
	"social-pilot/internal/usecase/analysis"
	"social-pilot/internal/usecase/rag"
)

const jobEnqueueTTL = time.Minute

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("analytics: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var appCache domain.Cache
	if cfg.RedisAddr != "" {
		appCache = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	if cfg.Clients.AccountsURL == "" {
		logger.Fatal().Msg("analytics: не указан адрес сервиса аккаунтов (ACCOUNTS_SERVICE_URL)")
	}
	accountsClient, err := accounts.New(cfg.Clients.AccountsURL, cfg.Clients.Timeout, appCache)
	if err != nil {
		logger.Fatal().Err(err).Msg("analytics: не удалось создать клиента аккаунтов")
	}

	linkedInClient, err := platform.NewLinkedIn(cfg.Clients.LinkedInURL, cfg.Clients.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("analytics: не удалось создать клиента LinkedIn")
	}
	twitterClient, err := platform.NewTwitter(cfg.Clients.TwitterURL, cfg.Clients.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("analytics: не удалось создать клиента Twitter")
	}
	factory := platform.NewFactory(map[domain.Provider]domain.HistoricalDataProvider{
		domain.ProviderLinkedIn: linkedInClient,
		domain.ProviderTwitter:  twitterClient,
	})

	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	embedderAdapter := embedder.NewOpenAI(openaiClient, cfg.OpenAI.EmbeddingModel, cfg.Analysis.EmbeddingDim, cfg.OpenAI.Timeout)

	ragService := rag.NewService(repoAdapter, embedderAdapter, logger.With().Str("component", "rag").Logger())
	retriever := rag.NewRetriever(ragService, cfg.Analysis.ContextLimit, logger.With().Str("component", "rag").Logger())

	runner := analysis.NewRunner(
		repoAdapter,
		repoAdapter,
		accountsClient,
		factory,
		ragService,
		cfg.Analysis.NoiseFloor,
		logger.With().Str("component", "runner").Logger(),
	)
	go runner.Run(ctx, cfg.Analysis.PollInterval)

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())

	server.Router.Get("/api/v1/analytics/rag/context/{socialAccountId}", func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(chi.URLParam(r, "socialAccountId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid social account id")
			return
		}
		query := r.URL.Query().Get("query")
		if query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		contexts := retriever.Retrieve(r.Context(), accountID, query)
		if contexts == nil {
			contexts = []string{}
		}
		writeJSON(w, contexts)
	})

	server.Router.Post("/api/v1/analytics/jobs", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		accountID, err := uuid.Parse(req.SocialAccountID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid social_account_id")
			return
		}
		provider := domain.Provider(req.Provider)
		if provider != domain.ProviderLinkedIn && provider != domain.ProviderTwitter {
			writeError(w, http.StatusBadRequest, "unknown provider")
			return
		}

		job, err := enqueueJob(r.Context(), repoAdapter, appCache, accountID, provider)
		if errors.Is(err, errAlreadyQueued) {
			writeError(w, http.StatusConflict, "job already queued for this account")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create job")
			return
		}
		writeJSONStatus(w, http.StatusAccepted, jobResponse{
			JobID:           job.ID.String(),
			SocialAccountID: job.SocialAccountID.String(),
			Provider:        string(job.Provider),
			Status:          string(job.Status),
			CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		})
	})

	server.Router.Get("/api/v1/analytics/jobs/{jobId}", func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid job id")
			return
		}
		job, err := repoAdapter.GetJob(r.Context(), jobID)
		if errors.Is(err, repo.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load job")
			return
		}
		writeJSON(w, jobResponse{
			JobID:           job.ID.String(),
			SocialAccountID: job.SocialAccountID.String(),
			Provider:        string(job.Provider),
			Status:          string(job.Status),
			LastError:       job.LastError,
			CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		})
	})

	server.Router.Get("/api/v1/analytics/slots/{socialAccountId}", func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(chi.URLParam(r, "socialAccountId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid social account id")
			return
		}
		slots, err := repoAdapter.ListForAccount(r.Context(), accountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load slots")
			return
		}
		out := make([]slotResponse, 0, len(slots))
		for _, slot := range slots {
			out = append(out, slotResponse{
				DayOfWeek:       slot.DayOfWeek.String(),
				HourOfDay:       slot.HourOfDay,
				EngagementScore: slot.EngagementScore,
			})
		}
		writeJSON(w, out)
	})

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("analytics: HTTP сервер остановился с ошибкой")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("analytics: ошибка остановки HTTP сервера")
	}
}

var errAlreadyQueued = errors.New("job already queued")

// enqueueJob создаёт PENDING-задачу. Повторная постановка для того же
// аккаунта в течение jobEnqueueTTL отклоняется через кэш.
func enqueueJob(ctx context.Context, jobs domain.AnalysisJobRepo, appCache domain.Cache, accountID uuid.UUID, provider domain.Provider) (domain.AnalysisJob, error) {
	if appCache == nil {
		return jobs.CreateJob(ctx, accountID, provider)
	}
	var created *domain.AnalysisJob
	err := appCache.Once("analysis_job_enqueue:"+accountID.String(), jobEnqueueTTL, func() error {
		job, err := jobs.CreateJob(ctx, accountID, provider)
		if err != nil {
			return err
		}
		created = &job
		return nil
	})
	if err != nil {
		return domain.AnalysisJob{}, err
	}
	if created == nil {
		return domain.AnalysisJob{}, errAlreadyQueued
	}
	return *created, nil
}

type createJobRequest struct {
	SocialAccountID string `json:"social_account_id"`
	Provider        string `json:"provider"`
}

type jobResponse struct {
	JobID           string `json:"job_id"`
	SocialAccountID string `json:"social_account_id"`
	Provider        string `json:"provider"`
	Status          string `json:"status"`
	LastError       string `json:"last_error,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type slotResponse struct {
	DayOfWeek       string  `json:"day_of_week"`
	HourOfDay       int     `json:"hour_of_day"`
	EngagementScore float64 `json:"engagement_score"`
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

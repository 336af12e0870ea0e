package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"social-pilot/internal/adapters/analytics"
	"social-pilot/internal/adapters/media"
	"social-pilot/internal/domain"
	"social-pilot/internal/infra/config"
	httpinfra "social-pilot/internal/infra/http"
	applog "social-pilot/internal/infra/log"
	"social-pilot/internal/infra/metrics"
	"social-pilot/internal/infra/openai"
	"social-pilot/internal/infra/queue"
	"social-pilot/internal/usecase/generate"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9091")

	if cfg.Clients.MediaURL == "" {
		logger.Fatal().Msg("ai-gateway: не указан адрес медиасервиса (MEDIA_SERVICE_URL)")
	}
	mediaClient, err := media.New(cfg.Clients.MediaURL, cfg.Clients.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai-gateway: не удалось создать клиента медиасервиса")
	}

	if cfg.Clients.AnalyticsURL == "" {
		logger.Fatal().Msg("ai-gateway: не указан адрес аналитики (ANALYTICS_SERVICE_URL)")
	}
	analyticsClient, err := analytics.New(cfg.Clients.AnalyticsURL, cfg.Clients.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai-gateway: не удалось создать клиента аналитики")
	}

	if cfg.RabbitURL == "" {
		logger.Fatal().Msg("ai-gateway: не указан адрес RabbitMQ (RABBITMQ_URL)")
	}
	publisher, err := queue.NewRabbitPublisher(cfg.RabbitURL, cfg.Queues.Completed)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai-gateway: не удалось подключиться к RabbitMQ")
	}
	defer publisher.Close()

	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)

	service := generate.NewService(
		openaiClient,
		cfg.OpenAI.ChatModel,
		mediaClient,
		analyticsClient,
		publisher,
		cfg.AI.ExampleMaxChars,
		cfg.AI.DefaultPlatform,
		logger.With().Str("component", "generate").Logger(),
	)

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())

	server.Router.Post("/api/v1/ai/generate", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeError(w, http.StatusBadRequest, "prompt cannot be empty")
			return
		}

		domainReq := domain.GenerationRequest{
			Prompt:   req.Prompt,
			Tone:     req.Tone,
			Platform: req.Platform,
		}
		for _, raw := range req.MediaIDs {
			mediaID, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid media id: "+raw)
				return
			}
			domainReq.MediaIDs = append(domainReq.MediaIDs, mediaID)
		}
		if req.SocialAccountID != "" {
			accountID, err := uuid.Parse(req.SocialAccountID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid social_account_id")
				return
			}
			domainReq.SocialAccountID = &accountID
		}

		result := service.Generate(r.Context(), domainReq)
		writeJSON(w, generateResponse{Content: result.RawContent, Options: result.Options})
	})

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("ai-gateway: HTTP сервер остановился с ошибкой")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ai-gateway: ошибка остановки HTTP сервера")
	}
}

type generateRequest struct {
	Prompt          string   `json:"prompt"`
	MediaIDs        []string `json:"media_ids"`
	Tone            string   `json:"tone"`
	Platform        string   `json:"platform"`
	SocialAccountID string   `json:"social_account_id"`
}

type generateResponse struct {
	Content string   `json:"content"`
	Options []string `json:"options"`
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"voice-auth/internal/audio"
	"voice-auth/internal/audit"
	"voice-auth/internal/auth"
	"voice-auth/internal/authflow"
	"voice-auth/internal/config"
	"voice-auth/internal/enrollment"
	"voice-auth/internal/httpapi"
	"voice-auth/internal/identify"
	"voice-auth/internal/inference"
	"voice-auth/internal/phrase"
	"voice-auth/internal/security"
	"voice-auth/internal/store"
	"voice-auth/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const inferenceSlotsKey = "voice-auth:inference:slots"

// app holds the long-lived services. ML clients are built once here and
// injected; nothing below cmd/ reaches for globals.
type app struct {
	tokens   *auth.Manager
	handlers httpapi.Handlers
	limiter  *httpapi.IPRateLimiter
	rdb      *redis.Client
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

func buildApp(ctx context.Context, cfg config.Config, db *sql.DB, log *slog.Logger) (*app, error) {
	a := &app{}

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	a.tokens = tokens

	var slots inference.SlotLimiter
	if cfg.Inference.MaxConcurrency > 0 {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		// A crashed holder's slots expire after twice the call budget.
		slots = inference.NewRedisSlots(rdb, inferenceSlotsKey, cfg.Inference.MaxConcurrency, 2*cfg.Inference.DependencyTimeout)
	}

	var extractor authflow.Extractor = inference.Unconfigured{Setting: "EXTRACTOR_URL"}
	if cfg.Inference.ExtractorURL != "" {
		guard := inference.NewGuard(inference.GuardConfig{Name: "embedding", Timeout: cfg.Inference.DependencyTimeout}, slots)
		extractor = inference.NewSidecarExtractor(inference.SidecarConfig{
			BaseURL:      cfg.Inference.ExtractorURL,
			Dimension:    cfg.Voice.EmbeddingDim,
			ModelVersion: cfg.Voice.ModelVersion,
			Timeout:      cfg.Inference.DependencyTimeout,
		}, guard)
	} else {
		log.Warn("EXTRACTOR_URL not set; voice matching is disabled")
	}

	var transcriber authflow.Transcriber = inference.Unconfigured{Setting: "OPENAI_API_KEY"}
	if cfg.Inference.OpenAIAPIKey != "" {
		guard := inference.NewGuard(inference.GuardConfig{Name: "transcription", Timeout: cfg.Inference.DependencyTimeout}, slots)
		transcriber = inference.NewWhisperTranscriber(inference.WhisperConfig{
			APIKey:  cfg.Inference.OpenAIAPIKey,
			BaseURL: cfg.Inference.OpenAIBaseURL,
			Model:   cfg.Inference.TranscribeModel,
			Timeout: cfg.Inference.DependencyTimeout,
		}, guard)
	} else {
		log.Warn("OPENAI_API_KEY not set; phrase verification is disabled")
	}

	var fallback audio.Decoder
	if cfg.Inference.FFmpegPath != "" {
		fallback = audio.FFmpegDecoder{Path: cfg.Inference.FFmpegPath}
	}

	pg := store.NewPostgres(db)
	auditSvc := audit.NewService(pg)

	enroller, err := enrollment.NewManager(pg, auditSvc, enrollment.Config{
		SampleCount:  cfg.Voice.EnrollSampleCount,
		Dimension:    cfg.Voice.EmbeddingDim,
		ModelVersion: cfg.Voice.ModelVersion,
	})
	if err != nil {
		return nil, err
	}
	engine, err := identify.NewEngine(pg, identify.Config{
		Dimension: cfg.Voice.EmbeddingDim,
		Threshold: cfg.Voice.IdentifyThreshold,
	})
	if err != nil {
		return nil, err
	}

	flow, err := authflow.New(authflow.Deps{
		Store:       pg,
		Enroller:    enroller,
		Identifier:  engine,
		Phrases:     phrase.NewVerifier(cfg.Voice.PhraseThreshold),
		Audit:       auditSvc,
		Decoder:     audio.NewChain(fallback),
		Extractor:   extractor,
		Transcriber: transcriber,
		Tokens:      tokens,
		Passwords:   security.NewHasher(cfg.Auth.BcryptCost),
		Language:    cfg.Inference.TranscribeLanguage,
	})
	if err != nil {
		return nil, err
	}

	a.handlers = httpapi.Handlers{Flow: flow, Audit: auditSvc, DB: pg}
	a.limiter = httpapi.NewIPRateLimiter(cfg.RateLimit.VoiceLoginRate, cfg.RateLimit.VoiceLoginBurst)
	return a, nil
}

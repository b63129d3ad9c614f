// Recalld is the recall service: the remote memory store the smriti
// companion saves to and asks questions of.
//
// All configuration is loaded from environment variables.
//
// Optional environment variables:
//
//	RECALL_ADDR           - listen address (default ":8000")
//	RECALL_DB_PATH        - path to the SQLite database (default: ./recall.db)
//	RECALL_TOKEN          - bearer token clients must send; empty disables auth
//	RECALL_CORS_ORIGINS   - comma-separated origins allowed to call the API ("*" for any)
//	RECALL_TOP_K          - memories retrieved per question (default: 3)
//	LLM_API_KEY           - API key for the OpenAI-compatible LLM endpoint
//	LLM_BASE_URL          - override LLM API base URL (e.g. for Ollama)
//	LLM_MODEL             - model name (default: mistralai/mistral-7b-instruct)
//	LLM_TIMEOUT           - per-request LLM timeout (default: 120s)
//	EMBED_API_KEY         - API key for the embeddings endpoint; unset uses the local hashing embedder
//	EMBED_BASE_URL        - override embeddings API base URL
//	EMBED_MODEL           - embeddings model name
//	LOG_LEVEL             - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT            - "text" or "json" (default: "text")
//
// Without LLM_API_KEY or LLM_BASE_URL the service still stores and lists
// memories; /ask answers 503.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/environment"
	"github.com/HrishitaRaj/smriti-ai/common/redact"
	"github.com/HrishitaRaj/smriti-ai/common/version"
	"github.com/HrishitaRaj/smriti-ai/internal/recall/answer"
	"github.com/HrishitaRaj/smriti-ai/internal/recall/embed"
	"github.com/HrishitaRaj/smriti-ai/internal/recall/llm"
	"github.com/HrishitaRaj/smriti-ai/internal/recall/server"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/observability"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/store"
)

func main() {
	logLevel, err := environment.OneOfOr("LOG_LEVEL", "info", "debug", "info", "warn", "error")
	if err != nil {
		fatal(err)
	}
	logFormat, err := environment.OneOfOr("LOG_FORMAT", "text", "text", "json")
	if err != nil {
		fatal(err)
	}

	var (
		addr       = environment.StringOr("RECALL_ADDR", ":8000")
		dbPath     = environment.StringOr("RECALL_DB_PATH", "./recall.db")
		token      = os.Getenv("RECALL_TOKEN")
		origins    = environment.StringSliceOr("RECALL_CORS_ORIGINS", nil)
		topK       = environment.IntOr("RECALL_TOP_K", answer.DefaultTopK)
		llmKey     = os.Getenv("LLM_API_KEY")
		llmBaseURL = os.Getenv("LLM_BASE_URL")
		llmModel   = environment.StringOr("LLM_MODEL", llm.DefaultModel)
		llmTimeout = environment.DurationOr("LLM_TIMEOUT", 120*time.Second)
		embedKey   = os.Getenv("EMBED_API_KEY")
	)

	logger := observability.Setup(logLevel, logFormat, token, llmKey, embedKey)
	logger.Info("starting recalld", "version", version.Info())
	logger.Debug("recalld settings", "settings", redact.Map(map[string]any{
		"addr":          addr,
		"db_path":       dbPath,
		"recall_token":  token,
		"cors_origins":  origins,
		"top_k":         topK,
		"llm_api_key":   llmKey,
		"llm_base_url":  llmBaseURL,
		"llm_model":     llmModel,
		"embed_api_key": embedKey,
	}))

	st, err := store.New(dbPath, logger)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	var embedder embed.Embedder = embed.Hashing{}
	if embedKey != "" {
		embedder = embed.NewOpenAI(embed.OpenAIConfig{
			APIKey:  embedKey,
			BaseURL: os.Getenv("EMBED_BASE_URL"),
			Model:   os.Getenv("EMBED_MODEL"),
		})
	}

	var provider llm.Provider
	if llmKey != "" || llmBaseURL != "" {
		provider = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  llmKey,
			BaseURL: llmBaseURL,
			Model:   llmModel,
			Timeout: llmTimeout,
		})
	} else {
		logger.Warn("no LLM configured; /ask will answer 503")
	}

	srv := server.New(server.Config{
		Addr:           addr,
		Token:          token,
		AllowedOrigins: origins,
		Store:          st,
		Embedder:       embedder,
		Answerer:       answer.New(st, embedder, provider, answer.WithTopK(topK), answer.WithLogger(logger)),
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start recall server", "err", err)
		os.Exit(1)
	}
	<-ctx.Done()
	slog.Info("shutting down")
	srv.Stop()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	os.Exit(1)
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"support-agent/handler"
	"support-agent/internal/behavior"
	"support-agent/internal/integrations/huggingface"
	"support-agent/internal/integrations/openai"
	"support-agent/internal/integrations/paramstore"
	"support-agent/internal/repository"
	"support-agent/internal/usecase"
)

// logStore is what both the chat log writer and the alert pass need.
type logStore interface {
	usecase.LogWriter
	usecase.AlertStore
}

func main() {
	ctx := context.Background()

	// Local runs only; Lambda configuration comes from the function env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "err", err)
	}

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := strings.TrimRight(mustEnv("PARAM_PREFIX"), "/")
	logStoreKind := envString("LOG_STORE", "dynamodb")
	scoringStrategy := envString("SCORING_STRATEGY", "lexical")
	provider := envString("GENERATION_PROVIDER", "huggingface")
	upstreamTimeout := envDuration("UPSTREAM_TIMEOUT", 30*time.Second)
	empatheticOpenings := envBool("EMPATHETIC_OPENINGS", scoringStrategy == "lexical")
	greetingScoresTurn := envBool("GREETING_SCORES_TURN", false)
	analyzeWindow := envInt("ANALYZE_WINDOW", usecase.DefaultAnalyzeWindow)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", usecase.DefaultMaxMessageLength)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		fatal("failed to create SSM client", err)
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		fatal("failed to create state client", err)
	}

	var logs logStore = stateClient
	if logStoreKind == "postgres" {
		db, err := sql.Open("postgres", mustEnv("DATABASE_URL"))
		if err != nil {
			fatal("failed to open postgres", err)
		}
		pg, err := repository.NewPostgresLogStore(db)
		if err != nil {
			fatal("failed to create postgres log store", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			fatal("failed to migrate postgres log store", err)
		}
		logs = pg
	}

	hf, err := huggingface.NewClient(ssmClient, paramPrefix+"/hf-token",
		huggingface.WithGenerationURL(envString("HF_GENERATION_URL", huggingface.DefaultGenerationURL)),
		huggingface.WithClassifierURL(envString("HF_CLASSIFIER_URL", huggingface.DefaultClassifierURL)),
		huggingface.WithSentimentURL(envString("HF_SENTIMENT_URL", huggingface.DefaultSentimentURL)),
		huggingface.WithTimeout(upstreamTimeout),
	)
	if err != nil {
		fatal("failed to create Hugging Face client", err)
	}

	var generator usecase.Generator = hf
	switch provider {
	case "huggingface":
	case "openai":
		generator, err = openai.NewClient(ssmClient, paramPrefix+"/open-ai-token",
			openai.WithModel(os.Getenv("OPENAI_MODEL")),
			openai.WithBaseURL(os.Getenv("OPENAI_BASE_URL")),
			openai.WithTimeout(upstreamTimeout),
		)
		if err != nil {
			fatal("failed to create OpenAI client", err)
		}
	default:
		fatal("unknown generation provider", errors.New(provider))
	}

	var strategy behavior.Strategy
	switch scoringStrategy {
	case "lexical":
		strategy = behavior.NewLexical()
	case "classifier":
		strategy, err = behavior.NewZeroShot(hf)
		if err != nil {
			fatal("failed to create classifier strategy", err)
		}
	default:
		fatal("unknown scoring strategy", errors.New(scoringStrategy))
	}
	scorer, err := behavior.NewScorer(strategy)
	if err != nil {
		fatal("failed to create scorer", err)
	}

	// ---- Handler ----
	chatService, err := usecase.NewChatService(hf, scorer, generator, stateClient, logs, usecase.ChatConfig{
		EmpatheticOpenings: empatheticOpenings,
		GreetingScoresTurn: greetingScoresTurn,
		UpstreamTimeout:    upstreamTimeout,
		MaxMessageLength:   maxMessageLen,
	})
	if err != nil {
		fatal("failed to create chat service", err)
	}
	analyzeService, err := usecase.NewAnalyzeService(logs, analyzeWindow)
	if err != nil {
		fatal("failed to create analyze service", err)
	}

	h, err := handler.NewHandler(chatService, analyzeService)
	if err != nil {
		fatal("failed to create handler", err)
	}

	slog.Info("support agent ready", "strategy", scoringStrategy, "provider", provider, "log_store", logStoreKind)
	lambda.Start(h.Handle)
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

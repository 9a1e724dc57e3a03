package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/chatbot"
	"github.com/spigell/recruitbot/internal/docstore"
	"github.com/spigell/recruitbot/internal/document"
	"github.com/spigell/recruitbot/internal/embedding"
	"github.com/spigell/recruitbot/internal/intent"
	"github.com/spigell/recruitbot/internal/jobstore"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/llm/gemini"
	"github.com/spigell/recruitbot/internal/llm/ollama"
	"github.com/spigell/recruitbot/internal/llm/openai"
	"github.com/spigell/recruitbot/internal/logger"
	"github.com/spigell/recruitbot/internal/metrics"
	"github.com/spigell/recruitbot/internal/reflection"
	"github.com/spigell/recruitbot/internal/retrieval"
	"github.com/spigell/recruitbot/internal/retrieval/pgvector"
	"github.com/spigell/recruitbot/internal/retrieval/qdrant"
	"github.com/spigell/recruitbot/internal/secrets"
	"github.com/spigell/recruitbot/internal/session"
	"github.com/spigell/recruitbot/internal/tools"
)

// deps holds everything the commands share. Build it once per process.
type deps struct {
	cfg     *Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	generator  llm.Generator
	searcher   retrieval.Searcher
	store      docstore.Store
	extractor  *document.Extractor
	cv         *tools.CVEvaluator
	jobs       *tools.JobMatcher
	interviews *tools.InterviewSimulator
	// jd is nil when no job database is configured.
	jd *tools.JDEvaluator

	closers []func()
}

// newLogger builds the process logger from the persistent flags. stderr
// keeps stdout free for protocols such as mcp.
func newLogger(stderr bool) *zap.Logger {
	l, err := logger.New(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Stderr: stderr,
		File:   viper.GetString("log-file"),
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

func newDeps(ctx context.Context, log *zap.Logger) (*deps, error) {
	config, err := getConfig()
	if err != nil {
		return nil, err
	}

	d := &deps{
		cfg:       config,
		logger:    log,
		metrics:   metrics.New(),
		extractor: document.NewExtractor(),
	}

	d.generator, err = newGenerator(ctx, config.LLM, d.metrics, log, config.MaxLogLength)
	if err != nil {
		return nil, err
	}

	if d.searcher, err = d.newSearcher(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if d.store, err = d.newDocStore(ctx); err != nil {
		d.Close()
		return nil, err
	}

	d.cv = tools.NewCVEvaluator(d.generator, d.store, d.extractor, log.Named("cv"))
	d.jobs = tools.NewJobMatcher(d.generator, d.store, d.extractor, d.searcher, log.Named("jobs"))
	d.interviews = tools.NewInterviewSimulator(d.generator, d.extractor, log.Named("interview"))

	source, err := d.newJobSource(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}
	if source != nil {
		d.jd = tools.NewJDEvaluator(d.generator, d.store, source, log.Named("jd"))
	}

	return d, nil
}

// newGenerator picks the language model backend named in the config and
// wraps it with logging and metrics.
func newGenerator(ctx context.Context, cfg *LLMConfig, recorder llm.Recorder, log *zap.Logger, maxLogLength int) (llm.Generator, error) {
	var (
		generator llm.Generator
		model     string
	)

	switch cfg.Provider {
	case "ollama":
		client, err := ollama.New(ollama.Options{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		generator, model = client, client.Model()

	case "openai":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			Value: cfg.APIKey,
			File:  cfg.APIKeyFile,
			Env:   "OPENAI_API_KEY",
		})
		if err != nil {
			return nil, err
		}
		client, err := openai.New(openai.Options{
			APIKey:      apiKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: float32(cfg.Temperature),
		})
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		generator, model = client, client.Model()

	case "gemini":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.APIKey,
			File:  cfg.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, err
		}
		client, err := gemini.NewGenerator(ctx, gemini.Options{
			APIKey:     apiKey,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		generator, model = client, client.Model()

	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	return llm.Observe(generator, cfg.Provider, model, recorder, log, maxLogLength), nil
}

func (d *deps) newSearcher(ctx context.Context) (retrieval.Searcher, error) {
	cfg := d.cfg.Retrieval
	embedder := embedding.NewCached(
		embedding.NewOllama(d.cfg.Embedding.BaseURL, d.cfg.Embedding.Model, d.cfg.Embedding.Timeout, d.logger),
		d.cfg.Embedding.CacheTTL,
	)

	var base retrieval.Searcher
	switch cfg.Backend {
	case "qdrant":
		opts := qdrant.Options{}
		if cfg.Qdrant != nil {
			apiKey, err := secrets.Optional(secrets.Source{
				Name:  "qdrant api key",
				Value: cfg.Qdrant.APIKey,
				File:  cfg.Qdrant.APIKeyFile,
				Env:   "QDRANT_API_KEY",
			})
			if err != nil {
				return nil, err
			}
			opts = qdrant.Options{
				URL:        cfg.Qdrant.URL,
				Collection: cfg.Qdrant.Collection,
				APIKey:     apiKey,
				HNSWEf:     cfg.Qdrant.HNSWEf,
				Timeout:    cfg.Qdrant.Timeout,
			}
		}
		client, err := qdrant.New(opts, embedder, d.logger.Named("qdrant"))
		if err != nil {
			return nil, fmt.Errorf("create qdrant client: %w", err)
		}
		base = client

	case "pgvector":
		if cfg.Pgvector == nil {
			return nil, fmt.Errorf("retrieval.pgvector section is required for the pgvector backend")
		}
		dsn, err := secrets.Load(secrets.Source{
			Name:  "pgvector dsn",
			Value: cfg.Pgvector.DSN,
			File:  cfg.Pgvector.DSNFile,
		})
		if err != nil {
			return nil, err
		}
		pool, err := pgvector.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, pool.Close)

		store, err := pgvector.New(pool, cfg.Pgvector.Table, embedder, d.logger.Named("pgvector"))
		if err != nil {
			return nil, err
		}
		base = store

	default:
		return nil, fmt.Errorf("unsupported retrieval backend %q", cfg.Backend)
	}

	return retrieval.NewPipeline(base, d.logger, d.metrics, retrieval.DefaultFilters(cfg.MinScore)...), nil
}

func (d *deps) newDocStore(ctx context.Context) (docstore.Store, error) {
	cfg := d.cfg.DocStore
	switch cfg.Backend {
	case "memory":
		return docstore.NewMemory(), nil
	case "redis":
		client, err := docstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { client.Close() })
		return docstore.NewRedis(client, cfg.Prefix, d.logger.Named("docstore")), nil
	default:
		return nil, fmt.Errorf("unsupported docstore backend %q", cfg.Backend)
	}
}

// newJobSource returns nil when no job database is configured.
func (d *deps) newJobSource(ctx context.Context) (jobstore.Source, error) {
	if d.cfg.Jobs == nil {
		return nil, nil
	}
	dsn, err := secrets.Optional(secrets.Source{
		Name:  "jobs dsn",
		Value: d.cfg.Jobs.DSN,
		File:  d.cfg.Jobs.DSNFile,
	})
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, nil
	}

	pool, err := jobstore.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, pool.Close)
	return jobstore.NewPostgres(pool, d.logger.Named("jobstore")), nil
}

// newBot is the session factory: every session gets its own history.
func (d *deps) newBot() (*chatbot.Bot, error) {
	return chatbot.New(chatbot.Options{
		Generator:       d.generator,
		Reflector:       reflection.New(d.generator, d.cfg.Chat.MaxReflectTurns, d.logger.Named("reflection")),
		Classifier:      intent.NewClassifier(d.generator, d.logger.Named("intent")),
		AgentClassifier: intent.NewAgentClassifier(d.generator, d.logger.Named("intent")),
		Searcher:        d.searcher,
		Tools: map[string]chatbot.Tool{
			chatbot.SentinelEvaluateCV:        d.cv,
			chatbot.SentinelSuggestJobs:       d.jobs,
			chatbot.SentinelSimulateInterview: d.interviews,
		},
		Interviews:    d.interviews,
		System:        chatbot.SystemPrompt,
		TopK:          d.cfg.Retrieval.TopK,
		SteerChitchat: d.cfg.Chat.SteerChitchat,
		Recorder:      d.metrics,
		Logger:        d.logger.Named("chatbot"),
	})
}

func (d *deps) newRegistry() *session.Registry {
	return session.NewRegistry(d.newBot, d.cfg.Session.TTL,
		session.WithLogger(d.logger.Named("session")),
		session.WithRecorder(d.metrics),
	)
}

// Close releases database and cache connections.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

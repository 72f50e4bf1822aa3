package cli

import (
	"fmt"

	"go.uber.org/zap"

	cachemem "github.com/custodia-labs/searchlight/internal/adapters/driven/cache/memory"
	"github.com/custodia-labs/searchlight/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/searchlight/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/searchlight/internal/adapters/driven/embedding/retry"
	bleveindex "github.com/custodia-labs/searchlight/internal/adapters/driven/keyword/bleve"
	"github.com/custodia-labs/searchlight/internal/adapters/driven/provider/dir"
	"github.com/custodia-labs/searchlight/internal/adapters/driven/provider/rest"
	"github.com/custodia-labs/searchlight/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/searchlight/internal/adapters/driven/vector/chromem"
	"github.com/custodia-labs/searchlight/internal/chunker"
	"github.com/custodia-labs/searchlight/internal/config"
	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
	"github.com/custodia-labs/searchlight/internal/core/services"
	"github.com/custodia-labs/searchlight/internal/logging"
)

// app owns the wired adapter graph behind the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *sqlite.Store
	keyword  *bleveindex.KeywordIndex
	vector   driven.VectorIndex
	embedder driven.EmbeddingService
	provider driven.Provider
	engine   *services.SyncEngine
	query    *services.QueryService
}

// runtime is the live application, set by initApp. Commands driven by
// injected test services leave it nil.
var runtime *app

// initApp loads configuration, builds the adapter graph, and wires the
// package-level services.
func initApp() error {
	a, err := buildApp(cfgFile)
	if err != nil {
		return err
	}
	runtime = a
	searchService = a.query
	syncOrchestrator = a.engine
	return nil
}

// closeApp tears down whatever initApp built.
func closeApp() {
	if runtime == nil {
		return
	}
	runtime.Close()
	runtime = nil
}

func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	keyword, err := bleveindex.NewKeywordIndex(cfg.KeywordPath(), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening keyword index: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		keyword: keyword,
	}

	// Vector search is optional: without an embedding provider the
	// engine stores and keyword-indexes only, and queries degrade to
	// keyword-only.
	if cfg.Embedding.Provider != "" {
		embedder, err := buildEmbedder(cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		vector, err := chromem.NewVectorIndex(cfg.VectorPath(), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening vector index: %w", err)
		}
		a.embedder = embedder
		a.vector = vector
	}

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.provider = provider

	splitter := chunker.New(chunker.WithMaxSize(cfg.Chunking.MaxChunkSize))

	query := services.NewQueryService(
		store.DocumentStore(), keyword, a.vector, a.embedder, logger)
	if err := query.SetWeights(domain.FusionWeights{
		Vector:  cfg.Query.VectorWeight,
		Keyword: cfg.Query.KeywordWeight,
		Recency: cfg.Query.RecencyWeight,
	}); err != nil {
		a.Close()
		return nil, err
	}
	query.SetSignalTimeout(cfg.Query.SignalTimeout.Duration())
	query.SetRecencyHalfLife(cfg.Query.RecencyHalfLife.Duration())
	if cfg.Cache.Enabled {
		query.SetCache(cachemem.NewResultCache(
			cfg.Cache.TTL.Duration(), cfg.Cache.MaxEntries))
	}
	a.query = query

	engine := services.NewSyncEngine(
		provider,
		store.DocumentStore(),
		store.SyncStateStore(),
		store.SyncRunStore(),
		keyword,
		a.vector,
		a.embedder,
		splitter,
		logger,
	)
	engine.SetHistoryKeep(cfg.Sync.HistoryKeep)
	a.engine = engine

	return a, nil
}

// Close releases adapters in reverse dependency order.
func (a *app) Close() {
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.logger.Warn("closing provider", zap.Error(err))
		}
	}
	if a.vector != nil {
		if err := a.vector.Close(); err != nil {
			a.logger.Warn("closing vector index", zap.Error(err))
		}
	}
	if a.keyword != nil {
		if err := a.keyword.Close(); err != nil {
			a.logger.Warn("closing keyword index", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func buildEmbedder(cfg *config.Config, logger *zap.Logger) (driven.EmbeddingService, error) {
	var inner driven.EmbeddingService
	switch cfg.Embedding.Provider {
	case "openai":
		svc, err := openai.NewEmbeddingService(openai.Config{
			APIKey:     cfg.Embedding.APIKey.Value(),
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Timeout:    cfg.Embedding.Timeout.Duration(),
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		inner = svc
	case "ollama":
		inner = ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Timeout:    cfg.Embedding.Timeout.Duration(),
			Dimensions: cfg.Embedding.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	return retry.NewEmbeddingService(inner, cfg.Embedding.MaxRetries, logger), nil
}

func buildProvider(cfg *config.Config, logger *zap.Logger) (driven.Provider, error) {
	switch cfg.Provider.Type {
	case "":
		// No source configured. Search still works against whatever
		// was indexed before; sync reports the missing provider.
		return nil, nil
	case "rest":
		rc := rest.Config{
			BaseURL:           cfg.Provider.REST.BaseURL,
			Token:             cfg.Provider.REST.Token.Value(),
			PageSize:          cfg.Provider.REST.PageSize,
			Timeout:           cfg.Provider.REST.Timeout.Duration(),
			RequestsPerSecond: cfg.Provider.REST.RequestsPerSecond,
			Burst:             cfg.Provider.REST.Burst,
		}
		if cfg.Provider.REST.ClientID != "" {
			rc.OAuth = &rest.OAuthConfig{
				TokenURL:     cfg.Provider.REST.TokenURL,
				ClientID:     cfg.Provider.REST.ClientID,
				ClientSecret: cfg.Provider.REST.ClientSecret.Value(),
			}
		}
		return rest.NewProvider(rc, logger)
	case "dir":
		return dir.NewProvider(cfg.Provider.Dir.Path, cfg.Provider.Dir.Scopes, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
}

// Package tools assembles the capability set from configuration.
package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	agrisage "github.com/ZanzyTHEbar/agrisage-genkit"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/adapters"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/cache"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/classifier"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/config"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/eventbus"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/market"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/retrieval"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/weather"
	"github.com/rs/zerolog/log"
)

// Deps are the runtime collaborators shared by the capabilities.
type Deps struct {
	// Embedder turns queries into vectors. Without one the retrieval
	// capability reports its index as unavailable.
	Embedder retrieval.Embedder
	EventBus eventbus.EventBus
}

// Toolkit owns the capabilities and the resources behind them.
type Toolkit struct {
	Capabilities []agrisage.Capability
	closers      []io.Closer
}

// Close releases caches, indexes and connections.
func (t *Toolkit) Close() error {
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup builds every configured capability. The classifier is only added
// when an endpoint is configured.
func Setup(ctx context.Context, cfg *config.Config, deps Deps) (*Toolkit, error) {
	t := &Toolkit{}
	capOpts := []adapters.CapabilityOption{adapters.WithEventBus(deps.EventBus)}

	weatherCap, err := t.weather(cfg, deps, capOpts)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	marketCap, err := t.market(cfg, deps, capOpts)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	retrievalCap, err := t.retrieval(cfg, deps, capOpts)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	t.Capabilities = append(t.Capabilities, retrievalCap, weatherCap, marketCap)

	if cfg.Classifier.Endpoint != "" {
		classifierCap, err := newClassifier(cfg, capOpts)
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		t.Capabilities = append(t.Capabilities, classifierCap)
	}
	return t, nil
}

// openCache opens the configured store for name.
func (t *Toolkit) openCache(cfg config.CacheConfig, name string, freshness *cache.Freshness, opts ...cache.Option) (*cache.DataCache, error) {
	var store cache.Store
	switch cfg.Backend {
	case "sqlite":
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		s, err := cache.OpenSQLiteStore(filepath.Join(cfg.Dir, name+"_cache.db"))
		if err != nil {
			return nil, err
		}
		store = s
	case "file":
		s, err := cache.NewFileStore(filepath.Join(cfg.Dir, name+"_cache"))
		if err != nil {
			return nil, err
		}
		store = s
	default:
		store = cache.NewMemoryStore()
	}
	dc := cache.New(name, store, freshness, opts...)
	t.closers = append(t.closers, dc)
	return dc, nil
}

func (t *Toolkit) weather(cfg *config.Config, deps Deps, capOpts []adapters.CapabilityOption) (agrisage.Capability, error) {
	loc, err := time.LoadLocation(cfg.Weather.Timezone)
	if err != nil {
		return nil, fmt.Errorf("weather.timezone: %w", err)
	}
	dc, err := t.openCache(cfg.Cache, "weather", cache.MustFreshness(cache.WeatherFreshness),
		cache.WithTodayFunc(weather.TodayFunc(loc)),
		cache.WithEventBus(deps.EventBus),
	)
	if err != nil {
		return nil, err
	}
	client := weather.NewClient(cfg.Weather.APIKey, cfg.Weather.Timeout)
	if cfg.Weather.BaseURL != "" {
		client.BaseURL = cfg.Weather.BaseURL
	}
	if cfg.Weather.APIKey == "" {
		log.Warn().Msg("weather API key is not set, WeatherInfo calls will fail")
	}
	return weather.NewLookup(client, dc, weather.WithLocation(loc)).Capability(capOpts...), nil
}

func (t *Toolkit) market(cfg *config.Config, deps Deps, capOpts []adapters.CapabilityOption) (agrisage.Capability, error) {
	dc, err := t.openCache(cfg.Cache, "market", cache.MustFreshness(cache.MarketFreshness), cache.WithEventBus(deps.EventBus))
	if err != nil {
		return nil, err
	}
	client := market.NewClient(cfg.Market.APIKey, cfg.Market.Timeout)
	if cfg.Market.Endpoint != "" {
		client.Endpoint = cfg.Market.Endpoint
	}
	if cfg.Market.Limit > 0 {
		client.Limit = cfg.Market.Limit
	}
	if cfg.Market.APIKey == "" {
		log.Warn().Msg("market API key is not set, MarketInfo calls will fail")
	}
	return market.NewLookup(client, dc).Capability(capOpts...), nil
}

func (t *Toolkit) retrieval(cfg *config.Config, deps Deps, capOpts []adapters.CapabilityOption) (agrisage.Capability, error) {
	rc := cfg.Retrieval
	engineOpts := []retrieval.EngineOption{retrieval.WithK(rc.K), retrieval.WithEventBus(deps.EventBus)}

	fallback, err := retrieval.LoadFallback(rc.FallbackPath)
	if err != nil {
		return nil, err
	}
	t.closers = append(t.closers, fallback)
	engineOpts = append(engineOpts, retrieval.WithFallback(fallback))

	var searcher retrieval.Searcher
	switch {
	case deps.Embedder == nil:
		engineOpts = append(engineOpts, retrieval.WithLoadError(fmt.Errorf("%w: no embedder configured", retrieval.ErrIndexMissing)))
	case rc.Backend == "qdrant":
		qs, err := retrieval.NewQdrantSearcher(rc.QdrantAddr, rc.Collection, deps.Embedder, float32(rc.MinScore))
		if err != nil {
			engineOpts = append(engineOpts, retrieval.WithLoadError(err))
			break
		}
		t.closers = append(t.closers, qs)
		searcher = qs
	default:
		idx, err := retrieval.LoadIndex(rc.IndexPath)
		if err != nil {
			log.Warn().Err(err).Str("path", rc.IndexPath).Msg("retrieval index unavailable")
			engineOpts = append(engineOpts, retrieval.WithLoadError(err))
			break
		}
		searcher = retrieval.NewVectorSearcher(idx, deps.Embedder, rc.MinScore)
	}
	return retrieval.NewEngine(searcher, engineOpts...).Capability(capOpts...), nil
}

func newClassifier(cfg *config.Config, capOpts []adapters.CapabilityOption) (agrisage.Capability, error) {
	cc := cfg.Classifier
	labels, err := classifier.LoadLabels(cc.LabelsPath)
	if err != nil {
		return nil, err
	}
	opts := []classifier.Option{
		classifier.WithUploadDir(cfg.Server.UploadDir),
		classifier.WithInputSize(cc.InputSize),
	}

	procPath := cc.ProcessorPath
	if procPath == "" {
		sibling := filepath.Join(filepath.Dir(cc.LabelsPath), "preprocessor_config.json")
		if _, err := os.Stat(sibling); err == nil {
			procPath = sibling
		}
	}
	if procPath != "" {
		proc, err := classifier.LoadProcessorConfig(procPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, classifier.WithProcessorConfig(proc))
		log.Info().Str("path", procPath).Msg("classifier preprocessing loaded from model config")
	}

	engine := classifier.NewKServeEngine(cc.Endpoint, cc.Model, cc.Timeout)
	return classifier.New(engine, labels, opts...).Capability(capOpts...), nil
}

package profile

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/adapter"
	"github.com/tonearm/tonearm/internal/adapter/scrape"
	"github.com/tonearm/tonearm/internal/adapter/torznab"
	"github.com/tonearm/tonearm/internal/adapter/ytmusic"
)

// Factory instantiates adapter sets from profiles.
type Factory struct {
	logger zerolog.Logger
}

// NewFactory creates an adapter factory.
func NewFactory(logger zerolog.Logger) *Factory {
	return &Factory{
		logger: logger.With().Str("component", "adapter-factory").Logger(),
	}
}

// BuildFromFile loads the profile document at path and builds the
// named profile (document default when name is empty). A missing
// file or unknown profile falls back to the built-in minimal profile
// so the service always starts with something searchable.
func (f *Factory) BuildFromFile(path, name string, context map[string]string) ([]adapter.Adapter, string) {
	doc, err := LoadDocument(path)
	if err != nil {
		f.logger.Warn().Err(err).Str("path", path).
			Msg("Profile document unavailable, using built-in profile")
		return f.Build(builtinProfile(context), context), "builtin"
	}

	p, resolved, ok := doc.Resolve(name)
	if !ok {
		f.logger.Warn().Str("profile", resolved).Strs("available", doc.Names()).
			Msg("Unknown profile, using built-in profile")
		return f.Build(builtinProfile(context), context), "builtin"
	}

	return f.Build(p, context), resolved
}

// Build substitutes variables and instantiates every enabled adapter
// in profile order. Unknown adapter types are skipped with a warning.
func (f *Factory) Build(p Profile, context map[string]string) []adapter.Adapter {
	expanded := p.Substitute(context)

	adapters := make([]adapter.Adapter, 0, len(expanded.Indexers))
	for _, cfg := range expanded.Indexers {
		if !cfg.Enabled {
			f.logger.Debug().Str("indexer", cfg.Name).Msg("Indexer disabled in profile")
			continue
		}

		timeout := time.Duration(cfg.Timeout) * time.Second

		switch cfg.Type {
		case TypeTorznab:
			adapters = append(adapters, torznab.New(torznab.Config{
				Name:       cfg.Name,
				BaseURL:    cfg.BaseURL,
				APIKey:     cfg.APIKey,
				IndexerID:  cfg.IndexerID,
				Categories: cfg.Categories,
				Timeout:    timeout,
			}, f.logger))
		case TypeHTML:
			adapters = append(adapters, scrape.New(scrape.Config{
				Name:    cfg.Name,
				BaseURL: cfg.BaseURL,
				Timeout: timeout,
			}, f.logger))
		case TypeStream:
			adapters = append(adapters, ytmusic.New(ytmusic.Config{
				Name:    cfg.Name,
				BaseURL: cfg.BaseURL,
				Timeout: timeout,
			}, f.logger))
		default:
			f.logger.Warn().
				Str("indexer", cfg.Name).
				Str("type", cfg.Type).
				Msg("Unknown indexer type in profile, skipping")
		}
	}

	return adapters
}

// builtinProfile is the fallback lineup: a local Jackett instance
// plus the streaming catalog. The Jackett slot stays inert until an
// API key is present in the context.
func builtinProfile(context map[string]string) Profile {
	return Profile{
		Description: "Built-in fallback profile",
		Indexers: []IndexerConfig{
			{
				Name:      "Jackett (all)",
				Type:      TypeTorznab,
				Enabled:   true,
				BaseURL:   context["JACKETT_URL"],
				APIKey:    context["JACKETT_API_KEY"],
				IndexerID: "all",
			},
			{
				Name:    "YouTube Music",
				Type:    TypeStream,
				Enabled: true,
				BaseURL: context["RESOLVER_URL"],
			},
		},
	}
}

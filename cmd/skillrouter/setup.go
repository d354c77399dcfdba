package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillrouter/pkg/catalog"
	"github.com/jingkaihe/skillrouter/pkg/matcher"
	"github.com/jingkaihe/skillrouter/pkg/resolver"
	"github.com/jingkaihe/skillrouter/pkg/router"
	"github.com/jingkaihe/skillrouter/pkg/session"
)

// newCatalogStore builds the catalog store from viper configuration and
// loads the initial snapshot.
func newCatalogStore(ctx context.Context) (*catalog.Store, error) {
	var opts []catalog.Option
	if dirs := viper.GetStringSlice("catalog.dirs"); len(dirs) > 0 {
		opts = append(opts, catalog.WithDirs(dirs...))
	}
	if allowed := viper.GetStringSlice("catalog.allowed"); len(allowed) > 0 {
		opts = append(opts, catalog.WithAllowlist(allowed...))
	}

	store, err := catalog.NewStore(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create catalog store")
	}
	if _, err := store.Load(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to load catalog")
	}
	return store, nil
}

// newSessionStore picks the session backend from configuration: "memory"
// (default) or "sqlite".
func newSessionStore(ctx context.Context) (session.Store, error) {
	windowSize := viper.GetInt("session.window_size")

	switch kind := viper.GetString("session.store"); kind {
	case "", "memory":
		return session.NewMemoryStore(windowSize), nil
	case "sqlite":
		dbPath := viper.GetString("session.db_path")
		if dbPath == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, errors.Wrap(err, "failed to get user home directory")
			}
			dbPath = filepath.Join(homeDir, ".skillrouter", "sessions.db")
		}
		return session.NewSQLiteStore(ctx, dbPath, windowSize)
	default:
		return nil, errors.Errorf("unknown session store %q (want memory or sqlite)", kind)
	}
}

// newRouter assembles the full pipeline from configuration.
func newRouter(ctx context.Context) (*router.Router, *catalog.Store, session.Store, error) {
	store, err := newCatalogStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	sessions, err := newSessionStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	matchCfg := matcher.Config{
		MinScore:             viper.GetFloat64("match.min_score"),
		KeywordWeight:        viper.GetFloat64("match.keyword_weight"),
		DescriptionWeight:    viper.GetFloat64("match.description_weight"),
		ErrorSignatureWeight: viper.GetFloat64("match.error_signature_weight"),
	}
	resolveCfg := resolver.Config{
		MarginRatio:   viper.GetFloat64("resolver.margin_ratio"),
		ActivationCap: viper.GetInt("resolver.activation_cap"),
	}

	core := router.New(store, sessions,
		router.WithMatcherConfig(matchCfg),
		router.WithResolverConfig(resolveCfg),
	)
	return core, store, sessions, nil
}

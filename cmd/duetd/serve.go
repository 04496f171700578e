package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/chess-duet/internal/adapter/chesspresenter"
	"github.com/park285/chess-duet/internal/aimove"
	"github.com/park285/chess-duet/internal/aimove/uci"
	"github.com/park285/chess-duet/internal/archive"
	"github.com/park285/chess-duet/internal/coach"
	"github.com/park285/chess-duet/internal/config"
	"github.com/park285/chess-duet/internal/lobby"
	"github.com/park285/chess-duet/internal/match"
	"github.com/park285/chess-duet/internal/msgcat"
	"github.com/park285/chess-duet/internal/obslog"
	"github.com/park285/chess-duet/internal/relay"
	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/internal/store"
)

type serveOptions struct {
	addr    string
	migrate bool
	origins []string
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP and feed server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer obslog.Sync()
			if opts.addr != "" {
				cfg.RelayAddr = opts.addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides RELAY_ADDR)")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply archive migrations before serving")
	cmd.Flags().StringSliceVar(&opts.origins, "origin", nil, "allowed cross-origin feed host patterns")
	return cmd
}

// closers runs cleanup in reverse registration order.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close(logger *zap.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("shutdown_close_error", zap.Error(err))
		}
	}
}

func serve(ctx context.Context, cfg *config.AppConfig, opts *serveOptions) error {
	logger := obslog.Named("duetd")
	var cleanup closers
	defer func() { cleanup.close(logger) }()

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	oracle := rules.NewStandard()

	deps := match.Deps{Oracle: oracle, Logger: obslog.Named("match")}
	var lob *lobby.Lobby
	if cfg.RedisURL != "" {
		rs, err := store.NewRedis(cfg.RedisURL,
			store.WithTTL(cfg.SessionTTL),
			store.WithFeedBuffer(cfg.FeedBuffer),
			store.WithLogger(obslog.Named("store")))
		if err != nil {
			return err
		}
		cleanup.add(rs.Close)
		deps.Store = rs
		lob = lobby.New(rs.Client(), rs, cfg.SessionTTL, obslog.Named("lobby"))
	} else {
		// without Redis only local sessions are served
		ls, err := store.OpenLocal(cfg.LocalStorePath, obslog.Named("store"))
		if err != nil {
			return err
		}
		cleanup.add(ls.Close)
		deps.Store = ls
		logger.Info("local_store_only", zap.String("path", cfg.LocalStorePath))
	}

	if cfg.DatabaseURL != "" {
		if opts.migrate {
			if err := archive.Migrate(cfg.DatabaseURL, obslog.Named("archive")); err != nil {
				return err
			}
		}
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		cleanup.add(repo.Close)
		deps.Archive = repo
	}

	capability, model, err := buildCapability(ctx, cfg, &cleanup)
	if err != nil {
		return err
	}
	if cfg.OpeningBookPath != "" {
		book, err := aimove.LoadBook(cfg.OpeningBookPath)
		if err != nil {
			return err
		}
		capability = aimove.NewBook(capability, book, cfg.OpeningBookMoves)
		logger.Info("opening_book_loaded", zap.String("path", cfg.OpeningBookPath))
	}
	deps.AI = aimove.NewCoordinator(capability, oracle,
		aimove.WithTimeout(cfg.AITimeout),
		aimove.WithLogger(obslog.Named("aimove")))
	deps.Tutor = coach.NewTutor(oracle, model, catalog, obslog.Named("coach"))
	if model != nil {
		deps.Analyst = coach.NewAnalyzer(model)
	}

	formatter := chesspresenter.NewFormatter(catalog)
	hub := relay.NewHub(deps, match.Config{PersistMaxAttempts: cfg.PersistMaxAttempts}, formatter)
	cleanup.add(hub.Close)

	srv := relay.NewServer(relay.Options{
		Store:          deps.Store,
		Hub:            hub,
		Lobby:          lob,
		Catalog:        catalog,
		Formatter:      formatter,
		Logger:         obslog.L(),
		OriginPatterns: opts.origins,
	})
	err = srv.ListenAndServe(ctx, cfg.RelayAddr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildCapability returns the move capability for the configured provider and,
// when the provider also generates prose, the text model used for coaching.
func buildCapability(ctx context.Context, cfg *config.AppConfig, cleanup *closers) (aimove.MoveCapability, aimove.TextModel, error) {
	switch cfg.AIProvider {
	case config.ProviderGemini:
		g, err := aimove.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini init: %w", err)
		}
		cleanup.add(g.Close)
		return g, g, nil
	case config.ProviderRemote:
		return aimove.NewRemote(cfg.AIRemoteURL, aimove.WithRemoteTimeout(cfg.AITimeout)), nil, nil
	case config.ProviderStockfish:
		pool, err := uci.NewPool(uci.PoolConfig{
			BinaryPath: cfg.StockfishPath,
			Capacity:   cfg.StockfishPoolSize,
			Logger:     obslog.Named("uci"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("stockfish init: %w", err)
		}
		sf := aimove.NewStockfish(pool)
		cleanup.add(sf.Close)
		return sf, nil, nil
	default:
		return nil, nil, nil
	}
}

// Package groupd initializes and runs the group relay server. It opens the
// identity store, unlocks the server keypair, connects the stream broker and
// the mixnet transport, and drives the request loop until a shutdown signal
// arrives.
package groupd

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nymstr/nymstr-groupd/internal/filex"
	"github.com/nymstr/nymstr-groupd/internal/groupd/config"
	"github.com/nymstr/nymstr-groupd/internal/groupd/dispatcher"
	"github.com/nymstr/nymstr-groupd/internal/groupd/pgp"
	"github.com/nymstr/nymstr-groupd/internal/groupd/repositories/identity"
	"github.com/nymstr/nymstr-groupd/internal/groupd/session"
	"github.com/nymstr/nymstr-groupd/internal/groupd/stream"
	"github.com/nymstr/nymstr-groupd/internal/groupd/transport"
	"github.com/nymstr/nymstr-groupd/internal/groupd/vault"
	"github.com/nymstr/nymstr-groupd/internal/logging"
)

// sweepInterval paces the idle-session eviction loop.
const sweepInterval = time.Minute

type App struct {
	config     *config.Config
	logger     logging.Logger
	logCloser  io.Closer
	db         *sql.DB
	redis      *redis.Client
	transport  *transport.NymClient
	sessions   *session.Table
	dispatcher *dispatcher.Dispatcher
	keys       *vault.ServerKeys
}

// NewApp wires every component from the config. Any failure here is fatal:
// the server never starts with a partial stack.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, logCloser, err := logging.NewFileLogger(cfg.LogFilePath)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err.Error())
		_ = logCloser.Close()
		return nil, err
	}
	app.logCloser = logCloser
	return app, nil
}

func build(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	if err := bootstrapDirs(cfg); err != nil {
		return nil, err
	}

	passphrase, err := readPassphrase(cfg.SecretPath)
	if err != nil {
		return nil, err
	}

	adminKey, err := resolveAdminKey(cfg)
	if err != nil {
		return nil, err
	}

	db, err := identity.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("identity store init error: %w", err)
	}

	keys, err := vault.LoadOrInit(cfg.KeysDir, cfg.NymClientID, passphrase)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("key vault init error: %w", err)
	}
	logger.Info(ctx, "server keypair ready", "fingerprint", keys.Fingerprint())

	rdb, err := stream.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("stream broker init error: %w", err)
	}

	nc, err := transport.Dial(ctx, cfg.NymWSURL, logger)
	if err != nil {
		_ = rdb.Close()
		_ = db.Close()
		return nil, fmt.Errorf("mixnet transport init error: %w", err)
	}

	sessions := session.NewTable(cfg.SessionIdleTimeout)
	d := dispatcher.New(
		identity.NewSQLiteRepository(db),
		sessions,
		stream.NewRedisBroker(rdb),
		nc,
		keys.Signer,
		adminKey,
		cfg.RequestTimeout,
		logger,
	)

	return &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      rdb,
		transport:  nc,
		sessions:   sessions,
		dispatcher: d,
		keys:       keys,
	}, nil
}

// bootstrapDirs creates the working directories the server expects, so a
// fresh deployment starts from an empty filesystem.
func bootstrapDirs(cfg *config.Config) error {
	if err := filex.EnsureParentDir(cfg.DatabasePath); err != nil {
		return err
	}
	if err := filex.EnsureDir(cfg.KeysDir); err != nil {
		return err
	}
	return filex.EnsureDir(cfg.NymSDKStorage)
}

// readPassphrase loads and trims the vault passphrase. A missing or empty
// secret file is a refusal to start, never a prompt.
func readPassphrase(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret %s: %w", path, err)
	}
	passphrase := bytes.TrimSpace(data)
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("secret %s is empty", path)
	}
	return passphrase, nil
}

// resolveAdminKey returns the armored admin public key from the inline
// setting or, failing that, from the configured file. The key must parse;
// a relay without a working admin key could never approve anyone.
func resolveAdminKey(cfg *config.Config) (string, error) {
	armored := cfg.AdminPublicKey
	if armored == "" {
		if cfg.AdminPublicKeyPath == "" {
			return "", errors.New("no admin public key configured")
		}
		data, err := os.ReadFile(cfg.AdminPublicKeyPath)
		if err != nil {
			return "", fmt.Errorf("read admin key %s: %w", cfg.AdminPublicKeyPath, err)
		}
		armored = string(data)
	}

	if _, err := pgp.ParsePublicKey(armored); err != nil {
		return "", fmt.Errorf("admin key rejected: %w", err)
	}
	return armored, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run processes inbound requests until ctx is cancelled or a shutdown
// signal arrives, then drains in-flight handlers and releases resources.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting group relay",
		"mixnetAddress", app.transport.Address(),
		"database", app.config.DatabasePath,
	)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweepSessions(ctx)
	}()

	// Cancellation closes the transport, which ends the receive loop.
	go func() {
		<-ctx.Done()
		_ = app.transport.Close()
	}()

	var handlers sync.WaitGroup
	for in := range app.transport.Receive() {
		handlers.Add(1)
		go func(in transport.Inbound) {
			defer handlers.Done()
			app.dispatcher.Handle(ctx, in)
		}(in)
	}
	handlers.Wait()

	shutdownRequested := ctx.Err() != nil
	cancelFunc()
	wg.Wait()

	app.close(ctx)

	if !shutdownRequested {
		// The receive loop ended without a shutdown request: the link to
		// the nym-client dropped.
		return errors.New("mixnet transport closed unexpectedly")
	}
	app.logger.Info(context.Background(), "shutdown complete")
	return nil
}

func (app *App) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if evicted := app.sessions.ExpireIdle(now); evicted > 0 {
				app.logger.Info(ctx, "idle sessions evicted", "count", evicted, "live", app.sessions.Len())
			}
		}
	}
}

func (app *App) close(ctx context.Context) {
	if err := app.redis.Close(); err != nil {
		app.logger.Warn(ctx, "redis close failed", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close failed", "error", err.Error())
	}
	if app.logCloser != nil {
		_ = app.logCloser.Close()
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/driveindex/driveindex/internal/cache"
	"github.com/driveindex/driveindex/internal/config"
	"github.com/driveindex/driveindex/internal/nodeid"
	"github.com/driveindex/driveindex/internal/remote"
)

// dataDirPerms is used when creating the directory holding the cache.
const dataDirPerms = 0o700

// session bundles the handles a command needs to talk to the remote and the
// cache. Close releases them in reverse order.
type session struct {
	client *remote.Client
	store  *cache.Store
	root   nodeid.Identity
	unlock func()
}

// openSession takes the cache lock for mode, opens the store, builds the
// remote client and resolves the traversal root.
func openSession(ctx context.Context, cc *CLIContext, mode string) (*session, error) {
	client, err := newRemoteClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	unlock, err := writePIDFile(lockPath(cc.Cfg.Index.DBPath), mode)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cc)
	if err != nil {
		unlock()
		return nil, err
	}

	s := &session{client: client, store: store, unlock: unlock}

	root, err := client.RootIdentity(ctx, cc.Cfg.Remote.VolumeID, cc.Cfg.Remote.ShareID)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	s.root = root
	cc.Logger.Info("resolved traversal root", slog.String("root", root.String()))

	return s, nil
}

// Close closes the store and releases the lock.
func (s *session) Close() error {
	err := s.store.Close()
	s.unlock()

	return err
}

// openStore opens the cache database named by the resolved config.
func openStore(ctx context.Context, cc *CLIContext) (*cache.Store, error) {
	dir := filepath.Dir(cc.Cfg.Index.DBPath)
	if err := os.MkdirAll(dir, dataDirPerms); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
	}

	return cache.Open(ctx, cc.Cfg.Index.DBPath, cache.Options{
		MaxConnections: cc.Cfg.Index.MaxConnections,
	}, cc.Logger)
}

// newRemoteClient builds a client for the configured API root.
func newRemoteClient(ctx context.Context, cc *CLIContext) (*remote.Client, error) {
	if err := config.ValidateResolved(cc.Cfg); err != nil {
		return nil, fmt.Errorf("config: %w (set it in the config file or %s)", err, config.EnvBaseURL)
	}

	ts, err := tokenSource(ctx, cc)
	if err != nil {
		return nil, err
	}

	rc := cc.Cfg.Remote
	httpClient := &http.Client{Timeout: rc.TimeoutDuration()}

	return remote.NewClient(rc.BaseURL, httpClient, ts, cc.Logger, remote.Options{
		RequestsPerSecond: rc.RequestsPerSecond,
		Burst:             rc.Burst,
	}), nil
}

// tokenSource prefers DRIVEINDEX_TOKEN and falls back to the saved token file.
func tokenSource(ctx context.Context, cc *CLIContext) (remote.TokenSource, error) {
	if cc.Env.Token != "" {
		return remote.StaticToken(cc.Env.Token), nil
	}

	rc := cc.Cfg.Remote

	ts, err := remote.TokenSourceFromPath(ctx, rc.TokenFile, remote.OAuthSettings{
		ClientID: rc.ClientID,
		TokenURL: rc.TokenURL,
	}, cc.Logger)
	if errors.Is(err, remote.ErrNotLoggedIn) {
		return nil, fmt.Errorf("not logged in, run 'driveindex login' or set %s", config.EnvToken)
	}

	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}

	return ts, nil
}

// lockPath is the flock file guarding a cache database.
func lockPath(dbPath string) string {
	return dbPath + ".lock"
}

// Package cache is the local SQLite mirror of the remote tree. It owns the
// files and folders tables, keyed by full path, and the upsert semantics the
// indexer and updater rely on.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// SQL statements for node rows.
const (
	sqlUpsertFolder = `INSERT INTO folders (full_path, folder_name, checked, node)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(full_path) DO UPDATE SET
		 node = excluded.node,
		 folder_name = excluded.folder_name,
		 checked = 0`

	sqlUpsertFile = `INSERT INTO files (full_path, file_name, checked, node)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(full_path) DO UPDATE SET
		 node = excluded.node,
		 file_name = excluded.file_name,
		 checked = 0`

	sqlInsertFolderIfAbsent = `INSERT INTO folders (full_path, folder_name, checked, node)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(full_path) DO NOTHING`

	sqlInsertFileIfAbsent = `INSERT INTO files (full_path, file_name, checked, node)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(full_path) DO NOTHING`

	sqlFolderExists = `SELECT EXISTS(SELECT 1 FROM folders WHERE full_path = ?)`
	sqlFileExists   = `SELECT EXISTS(SELECT 1 FROM files WHERE full_path = ?)`

	sqlKnownFolders = `SELECT full_path, node FROM folders ORDER BY id`
)

// defaultMaxConnections bounds the pool when Options leaves it unset.
const defaultMaxConnections = 8

// Options tunes the database handle.
type Options struct {
	// MaxConnections caps the connection pool. Updater workers each check
	// out their own connection per statement, so this is usually set to the
	// worker count plus one for the reader.
	MaxConnections int
}

// Store is the path-indexed node cache. It is safe for concurrent use; each
// call checks out its own pooled connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	schemaMu sync.Mutex
}

// KnownFolder is a cached folder as loaded to seed the updater's queue.
type KnownFolder struct {
	FullPath string
	Node     []byte
}

// Open opens (creating if needed) the cache database at dbPath and ensures
// the schema exists. The database uses WAL mode with synchronous=FULL so an
// interrupted index keeps every row written before the interruption.
func Open(ctx context.Context, dbPath string, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)&_pragma=journal_size_limit(67108864)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: opening database %s: %w", dbPath, err)
	}

	maxConns := opts.MaxConnections
	if maxConns < 1 {
		maxConns = defaultMaxConnections
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("cache opened",
		slog.String("db_path", dbPath),
		slog.Int("max_connections", maxConns),
	)

	return s, nil
}

// EnsureSchema creates the files and folders tables if absent. Calls are
// serialized, so it may run while other goroutines read or write.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	return runMigrations(ctx, s.db, s.logger)
}

// UpsertFolder inserts a folder row or, when fullPath already exists,
// overwrites its name and node and resets checked.
func (s *Store) UpsertFolder(ctx context.Context, fullPath, name string, node []byte) error {
	if _, err := s.db.ExecContext(ctx, sqlUpsertFolder, fullPath, name, node); err != nil {
		return fmt.Errorf("cache: upserting folder %s: %w", fullPath, err)
	}

	return nil
}

// UpsertFile is UpsertFolder for the files table.
func (s *Store) UpsertFile(ctx context.Context, fullPath, name string, node []byte) error {
	if _, err := s.db.ExecContext(ctx, sqlUpsertFile, fullPath, name, node); err != nil {
		return fmt.Errorf("cache: upserting file %s: %w", fullPath, err)
	}

	return nil
}

// InsertFolderIfAbsent inserts a folder row unless fullPath is already
// present, in one statement. inserted reports whether a row was written.
func (s *Store) InsertFolderIfAbsent(ctx context.Context, fullPath, name string, node []byte) (inserted bool, err error) {
	return s.insertIfAbsent(ctx, sqlInsertFolderIfAbsent, "folder", fullPath, name, node)
}

// InsertFileIfAbsent is InsertFolderIfAbsent for the files table.
func (s *Store) InsertFileIfAbsent(ctx context.Context, fullPath, name string, node []byte) (inserted bool, err error) {
	return s.insertIfAbsent(ctx, sqlInsertFileIfAbsent, "file", fullPath, name, node)
}

func (s *Store) insertIfAbsent(ctx context.Context, query, kind, fullPath, name string, node []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, fullPath, name, node)
	if err != nil {
		return false, fmt.Errorf("cache: inserting %s %s: %w", kind, fullPath, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cache: rows affected for %s %s: %w", kind, fullPath, err)
	}

	return n > 0, nil
}

// FolderExists reports whether a folder row exists for fullPath.
func (s *Store) FolderExists(ctx context.Context, fullPath string) (bool, error) {
	return s.exists(ctx, sqlFolderExists, fullPath)
}

// FileExists reports whether a file row exists for fullPath.
func (s *Store) FileExists(ctx context.Context, fullPath string) (bool, error) {
	return s.exists(ctx, sqlFileExists, fullPath)
}

func (s *Store) exists(ctx context.Context, query, fullPath string) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, fullPath).Scan(&ok); err != nil {
		return false, fmt.Errorf("cache: checking %s: %w", fullPath, err)
	}

	return ok, nil
}

// KnownFolders returns every cached folder with its node blob, in insertion
// order.
func (s *Store) KnownFolders(ctx context.Context) ([]KnownFolder, error) {
	rows, err := s.db.QueryContext(ctx, sqlKnownFolders)
	if err != nil {
		return nil, fmt.Errorf("cache: loading folders: %w", err)
	}
	defer rows.Close()

	var out []KnownFolder

	for rows.Next() {
		var kf KnownFolder
		if err := rows.Scan(&kf.FullPath, &kf.Node); err != nil {
			return nil, fmt.Errorf("cache: scanning folder row: %w", err)
		}

		out = append(out, kf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: iterating folder rows: %w", err)
	}

	s.logger.Debug("known folders loaded", slog.Int("folders", len(out)))

	return out, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/driveindex/driveindex/internal/tree"
)

// Read-side statements. Both tables are queried through one UNION so callers
// see a single listing ordered by path.
const (
	sqlAllNodes = `SELECT kind, full_path, name, checked, node FROM (
		SELECT 'folder' AS kind, full_path, folder_name AS name, checked, node FROM folders
		UNION ALL
		SELECT 'file' AS kind, full_path, file_name AS name, checked, node FROM files
	)`

	sqlCounts = `SELECT (SELECT COUNT(*) FROM folders), (SELECT COUNT(*) FROM files)`

	sqlSearch = sqlAllNodes + ` WHERE full_path LIKE ? ESCAPE '\' OR full_path LIKE ? ESCAPE '\'
		ORDER BY full_path LIMIT ?`

	sqlChildren = sqlAllNodes + ` WHERE substr(full_path, 1, ?) = ?
		AND length(full_path) > ?
		AND instr(substr(full_path, ? + 1), '/') = 0
		ORDER BY kind DESC, full_path`

	sqlLookup = sqlAllNodes + ` WHERE full_path = ? LIMIT 1`
)

// defaultSearchLimit applies when Search is called with a non-positive limit.
const defaultSearchLimit = 100

// Row is one cached node from either table.
type Row struct {
	Kind     tree.Kind
	FullPath string
	Name     string
	Checked  bool
	Node     []byte
}

// Counts holds per-table row counts.
type Counts struct {
	Folders int `json:"folders"`
	Files   int `json:"files"`
}

// Counts returns the number of rows in each table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.db.QueryRowContext(ctx, sqlCounts).Scan(&c.Folders, &c.Files); err != nil {
		return Counts{}, fmt.Errorf("cache: counting rows: %w", err)
	}

	return c, nil
}

// Children returns the cached immediate children of parent (folders first).
// The empty parent lists top-level nodes.
func (s *Store) Children(ctx context.Context, parent string) ([]Row, error) {
	prefix := ""
	if parent != "" {
		prefix = strings.TrimSuffix(parent, "/") + "/"
	}

	// SQLite substr/length count characters, not bytes.
	n := utf8.RuneCountInString(prefix)

	return s.queryRows(ctx, sqlChildren, n, prefix, n, n)
}

// Search returns nodes whose full path contains text, case-insensitively for
// ASCII. Paths are stored as the remote spells them, which may be composed or
// decomposed, so the query is matched in both NFC and NFD.
func (s *Store) Search(ctx context.Context, text string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	composed := "%" + escapeLike(norm.NFC.String(text)) + "%"
	decomposed := "%" + escapeLike(norm.NFD.String(text)) + "%"

	return s.queryRows(ctx, sqlSearch, composed, decomposed, limit)
}

// Lookup returns the node cached at fullPath. ok is false when neither table
// has the path.
func (s *Store) Lookup(ctx context.Context, fullPath string) (row Row, ok bool, err error) {
	rows, err := s.queryRows(ctx, sqlLookup, fullPath)
	if err != nil {
		return Row{}, false, err
	}

	if len(rows) == 0 {
		return Row{}, false, nil
	}

	return rows[0], true, nil
}

func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cache: querying nodes: %w", err)
	}
	defer rows.Close()

	var out []Row

	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: iterating nodes: %w", err)
	}

	return out, nil
}

func scanRow(rows *sql.Rows) (Row, error) {
	var (
		r    Row
		kind string
	)

	if err := rows.Scan(&kind, &r.FullPath, &r.Name, &r.Checked, &r.Node); err != nil {
		return Row{}, fmt.Errorf("cache: scanning node row: %w", err)
	}

	switch kind {
	case "folder":
		r.Kind = tree.KindFolder
	case "file":
		r.Kind = tree.KindFile
	default:
		return Row{}, errors.New("cache: unknown row kind " + kind)
	}

	return r, nil
}

// escapeLike escapes LIKE wildcards so user text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

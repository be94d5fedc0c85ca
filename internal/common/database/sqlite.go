package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/doug-martin/goqu/v9"
	// Registers the sqlite3 dialect with goqu.
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/fogwell/fogwell/internal/common/config"
	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
)

const sqliteBusy = 5

// OpenSqlite opens (creating if needed) the sqlite database at cfg.Path and wraps it for goqu.
// The pool is limited to one connection: sqlite allows a single writer and the pragmas below are per-connection.
func OpenSqlite(ctx context.Context, cfg config.SqliteConfig) (*goqu.Database, func(), error) {
	path, err := homedir.Expand(cfg.Path)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, errors.Wrapf(err, "could not make directory for sqlite db %s", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error opening sqlite db %s", path)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA journal_mode=WAL"}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()))
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, nil, errors.Wrapf(err, "error executing %s", pragma)
		}
	}
	return goqu.New("sqlite3", db), func() { _ = db.Close() }, nil
}

// ClassifySqliteError wraps err as an ErrStorage. A busy or locked database is retryable.
func ClassifySqliteError(source string, err error) error {
	if err == nil {
		return nil
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) && coded.Code()&0xff == sqliteBusy {
		return fogwellerrors.NewStorageError(source, err, true)
	}
	msg := err.Error()
	retryable := strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
	return fogwellerrors.NewStorageError(source, err, retryable)
}

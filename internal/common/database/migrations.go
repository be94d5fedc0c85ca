package database

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgtype/pgxtype"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Migration struct {
	id   int
	name string
	sql  string
}

func NewMigration(id int, name string, sql string) Migration {
	return Migration{id: id, name: name, sql: sql}
}

// UpdateDatabase applies, in id order, every migration newer than the version recorded in the
// database_version sequence owned by namespace.
func UpdateDatabase(ctx context.Context, db pgxtype.Querier, namespace string, migrations []Migration) error {
	log.Infof("Updating postgres schema %s...", namespace)
	sequence := namespace + "_database_version"
	version, err := readVersion(ctx, db, sequence)
	if err != nil {
		return err
	}
	log.Infof("Current version %v", version)

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].id < migrations[j].id })
	for _, m := range migrations {
		if m.id > version {
			_, err := db.Exec(ctx, m.sql)
			if err != nil {
				return errors.WithMessagef(err, "error applying migration %s", m.name)
			}

			version = m.id
			err = setVersion(ctx, db, sequence, version)
			if err != nil {
				return err
			}
		}
	}
	log.Infof("Schema %s updated to version %d.", namespace, version)
	return nil
}

func readVersion(ctx context.Context, db pgxtype.Querier, sequence string) (int, error) {
	_, err := db.Exec(ctx,
		`CREATE SEQUENCE IF NOT EXISTS `+sequence+` START WITH 0 MINVALUE 0;`)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	var version int
	err = db.QueryRow(ctx, `SELECT last_value FROM `+sequence).Scan(&version)
	return version, errors.WithStack(err)
}

func setVersion(ctx context.Context, db pgxtype.Querier, sequence string, version int) error {
	_, err := db.Exec(ctx, `SELECT setval($1, $2)`, sequence, version)
	return errors.WithStack(err)
}

// ReadMigrations loads every <id>_<name>.sql file in dir, sorted by id.
func ReadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	migrations := []Migration{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		contents, err := fs.ReadFile(fsys, path.Join(dir, f.Name()))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		id, err := strconv.Atoi(strings.Split(f.Name(), "_")[0])
		if err != nil {
			return nil, errors.WithMessagef(err, "migration %s does not start with a numeric id", f.Name())
		}
		migrations = append(migrations, Migration{
			id:   id,
			name: f.Name(),
			sql:  string(contents),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].id < migrations[j].id })
	return migrations, nil
}

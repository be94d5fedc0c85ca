package assettracking

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/common/database"
	"github.com/fogwell/fogwell/internal/ingest"
)

const postgresNamespace = "asset_tracking"

//go:embed migrations/*.sql
var migrationFs embed.FS

func PostgresMigrations() ([]database.Migration, error) {
	return database.ReadMigrations(migrationFs, "migrations")
}

func MigratePostgres(ctx context.Context, db *pgxpool.Pool) error {
	migrations, err := PostgresMigrations()
	if err != nil {
		return err
	}
	return database.UpdateDatabase(ctx, db, postgresNamespace, migrations)
}

// PostgresEmitter records each distinct tracking tuple once in the asset_tracker table.
type PostgresEmitter struct {
	db *pgxpool.Pool
}

var _ ingest.Emitter = &PostgresEmitter{}

func NewPostgresEmitter(db *pgxpool.Pool) *PostgresEmitter {
	return &PostgresEmitter{db: db}
}

func (e *PostgresEmitter) Emit(ctx context.Context, event ingest.AssetTrackingEvent) error {
	_, err := e.db.Exec(ctx,
		`INSERT INTO asset_tracker (asset, event, service, plugin) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (asset, event, service, plugin) DO NOTHING`,
		event.Asset, event.Event, event.Service, event.Plugin)
	return errors.WithStack(err)
}

func (e *PostgresEmitter) Events(ctx context.Context, asset string) ([]ingest.AssetTrackingEvent, error) {
	rows, err := e.db.Query(ctx,
		`SELECT asset, event, service, plugin FROM asset_tracker WHERE asset = $1 ORDER BY id`, asset)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	var events []ingest.AssetTrackingEvent
	for rows.Next() {
		var event ingest.AssetTrackingEvent
		if err := rows.Scan(&event.Asset, &event.Event, &event.Service, &event.Plugin); err != nil {
			return nil, errors.WithStack(err)
		}
		events = append(events, event)
	}
	return events, errors.WithStack(rows.Err())
}

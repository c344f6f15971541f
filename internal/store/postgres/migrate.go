package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migration directions accepted by Migrate.
const (
	DirectionUp     = "up"
	DirectionDown   = "down"
	DirectionStatus = "status"
)

// OpenSQL opens a database/sql handle through the pgx driver. goose needs it.
func OpenSQL(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Migrate applies, rolls back one step of, or reports the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, direction string) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	var err error
	switch direction {
	case DirectionUp, "":
		err = goose.UpContext(ctx, db, "migrations")
	case DirectionDown:
		err = goose.DownContext(ctx, db, "migrations")
	case DirectionStatus:
		err = goose.StatusContext(ctx, db, "migrations")
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	return nil
}

// MigrationFiles lists the embedded migration file names in order.
func MigrationFiles() ([]string, error) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

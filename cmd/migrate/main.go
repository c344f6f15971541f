package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dvloznov/finko-backend/internal/logger"
	"github.com/dvloznov/finko-backend/internal/store/postgres"
	"github.com/joho/godotenv"
)

var errNoDatabaseURL = errors.New("database URL is required: set DATABASE_URL or pass -database-url")

type options struct {
	direction   string
	databaseURL string
	list        bool
}

func parseFlags(args []string, getenv func(string) string) (*options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.direction, "direction", postgres.DirectionUp, "Migration direction: up, down or status")
	fs.StringVar(&opts.databaseURL, "database-url", getenv("DATABASE_URL"), "Postgres connection URL (or set DATABASE_URL env)")
	fs.BoolVar(&opts.list, "list", false, "List embedded migration files and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch opts.direction {
	case postgres.DirectionUp, postgres.DirectionDown, postgres.DirectionStatus:
	default:
		return nil, fmt.Errorf("unknown direction %q", opts.direction)
	}
	if !opts.list && opts.databaseURL == "" {
		return nil, errNoDatabaseURL
	}
	return opts, nil
}

func listMigrations(w io.Writer) error {
	names, err := postgres.MigrationFiles()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
	return nil
}

func main() {
	log := logger.New()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid arguments")
	}

	if opts.list {
		if err := listMigrations(os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("Failed to list migrations")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.OpenSQL(opts.databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	log.Info().Str("direction", opts.direction).Msg("Running migrations")
	if err := postgres.Migrate(ctx, db, opts.direction); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Msg("Migrations finished")
}

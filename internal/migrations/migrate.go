package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// migrationsFS holds embedded SQL migrations in migrations/sql.
//
//go:embed sql/*.sql
var migrationsFS embed.FS

const dir = "sql"

// Options defines how to run migrations.
type Options struct {
	DSN     string
	Command string // up, down, status, version, up-to, down-to, redo, reset
	Target  int64  // used with up-to/down-to
	Logger  *zerolog.Logger
}

// Run executes the migration command against the Postgres database at DSN.
func Run(opts Options) error {
	if strings.TrimSpace(opts.DSN) == "" {
		return fmt.Errorf("migrations: empty DSN")
	}

	if opts.Logger != nil {
		goose.SetLogger(gooseLogger{opts.Logger})
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	switch strings.ToLower(strings.TrimSpace(opts.Command)) {
	case "", "up":
		return goose.Up(db, dir)
	case "down":
		return goose.Down(db, dir)
	case "status":
		return goose.Status(db, dir)
	case "version":
		return goose.Version(db, dir)
	case "up-to":
		return goose.UpTo(db, dir, opts.Target)
	case "down-to":
		return goose.DownTo(db, dir, opts.Target)
	case "redo":
		return goose.Redo(db, dir)
	case "reset":
		return goose.Reset(db, dir)
	default:
		return fmt.Errorf("unknown migration command: %s", opts.Command)
	}
}

// Files lists the embedded migration file names in apply order.
func Files() ([]string, error) {
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	l *zerolog.Logger
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Fatal().Msgf(strings.TrimSpace(format), v...)
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Info().Msgf(strings.TrimSpace(format), v...)
}

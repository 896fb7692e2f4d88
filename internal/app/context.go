// Package app wires the workspace together for the CLI and server:
// database, migrations, configuration and the engine.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"pressroom/internal/config"
	"pressroom/internal/db"
	"pressroom/internal/engine"
	"pressroom/internal/events"
	"pressroom/internal/filestore"
	"pressroom/internal/migrate"
	"pressroom/internal/repo"
)

// Env is an opened workspace: connection, config and engine, ready for
// command handlers.
type Env struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Log    zerolog.Logger
}

// Open opens the workspace database, applies migrations, loads the
// optional pressroom.yml and builds the engine with bus as its
// post-commit notifier.
func Open(workspace string, bus events.Bus, log zerolog.Logger) (*Env, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	eng := engine.New(conn, cfg, bus, filestore.Disk{}, log)
	return &Env{DB: conn, Config: cfg, Engine: eng, Log: log}, nil
}

// Close releases the workspace connection.
func (e *Env) Close() error {
	return e.DB.Close()
}

// ResolveArticle picks the working article: an explicit override wins,
// otherwise a workspace holding exactly one article selects it.
func ResolveArticle(ctx context.Context, r repo.Repo, override string) (string, error) {
	if override != "" {
		if _, err := r.GetArticle(ctx, override); err != nil {
			return "", err
		}
		return override, nil
	}
	articles, err := r.ListArticles(ctx)
	if err != nil {
		return "", err
	}
	switch len(articles) {
	case 0:
		return "", fmt.Errorf("no articles registered; run: press article register")
	case 1:
		return articles[0].ID, nil
	default:
		return "", fmt.Errorf("workspace has %d articles; use --article", len(articles))
	}
}

package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// import the SQLite driver to register it with the database/sql package.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
	"github.com/rocketscienceinc/fourinline-backend/internal/pkg"
)

const defaultName = "Someone"

// Provider hands out stable anonymous identities. A player id is generated
// once, persisted locally, and reused on every later connect.
type Provider struct {
	db *sql.DB
}

func Open(path string) (*Provider, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}

	if err = conn.Ping(); err != nil {
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	return &Provider{db: conn}, nil
}

func (that *Provider) Init(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS players (id TEXT PRIMARY KEY, name TEXT)`

	_, err := that.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("can't create table: %w", err)
	}

	return nil
}

// GetOrCreate returns the stored player for the id, or mints a fresh identity
// when the id is unknown or empty.
func (that *Provider) GetOrCreate(ctx context.Context, id string) (*entity.Player, error) {
	if id != "" {
		player, err := that.get(ctx, id)
		if err == nil {
			return player, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	player := &entity.Player{ID: pkg.NewID(), Name: defaultName}

	query := `INSERT INTO players (id, name) VALUES (?, ?)`
	if _, err := that.db.ExecContext(ctx, query, player.ID, player.Name); err != nil {
		return nil, fmt.Errorf("can't insert player: %w", err)
	}

	return player, nil
}

func (that *Provider) get(ctx context.Context, id string) (*entity.Player, error) {
	query := `SELECT id, name FROM players WHERE id = ?`

	player := &entity.Player{}
	err := that.db.QueryRowContext(ctx, query, id).Scan(&player.ID, &player.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("can't select player: %w", err)
	}

	return player, nil
}

// Rename updates the display name of a stored player.
func (that *Provider) Rename(ctx context.Context, id, name string) error {
	query := `UPDATE players SET name = ? WHERE id = ?`

	if _, err := that.db.ExecContext(ctx, query, name, id); err != nil {
		return fmt.Errorf("can't update player: %w", err)
	}

	return nil
}

func (that *Provider) Close() error {
	if err := that.db.Close(); err != nil {
		return fmt.Errorf("can't close database: %w", err)
	}

	return nil
}

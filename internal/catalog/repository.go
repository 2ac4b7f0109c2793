package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	_ "modernc.org/sqlite"
)

var ErrItemNotFound = errors.New("menu item not found")

type Item struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Price       money.Amount `json:"price"`
	Available   bool         `json:"available"`
	CreatedAt   time.Time    `json:"created_at"`
}

type RepoInterface interface {
	FindItem(ctx context.Context, id string) (*Item, error)
	ListItems(ctx context.Context, category string) ([]*Item, error)
	Close() error
	RunMigrations(string) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection keeps ":memory:" databases shared between migrate and queries
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

// FindItem returns an available menu item. Items switched off by the kitchen
// are reported as not found.
func (r *Repository) FindItem(ctx context.Context, id string) (*Item, error) {
	query := `
		SELECT id, name, description, category, price, available, created_at
		FROM menu_items
		WHERE id = ? AND available = 1
	`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query menu item: %w", err)
	}
	return item, nil
}

// ListItems returns available items, optionally filtered by category.
func (r *Repository) ListItems(ctx context.Context, category string) ([]*Item, error) {
	query := `
		SELECT id, name, description, category, price, available, created_at
		FROM menu_items
		WHERE available = 1 AND (? = '' OR category = ?)
		ORDER BY category, position, id
	`

	rows, err := r.db.QueryContext(ctx, query, category, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query menu items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*Item, error) {
	item := &Item{}
	err := s.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.Category,
		&item.Price,
		&item.Available,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

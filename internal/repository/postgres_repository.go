package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	*pgRepository
	db *sql.DB
}

// pgRepository runs the cart queries against either the pool or an open
// transaction. Inside a transaction the cart row is selected FOR UPDATE.
type pgRepository struct {
	q    querier
	inTx bool
}

func NewPostgresStore(cred *Credentials) (*PostgresStore, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresStore{pgRepository: &pgRepository{q: db}, db: db}, nil
}

func (s *PostgresStore) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(s.db, &postgres.Config{
		MigrationsTable: "cart_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(repo CartRepository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&pgRepository{q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return pgError("commit transaction", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (r *pgRepository) lockClause() string {
	if r.inTx {
		return " FOR UPDATE"
	}
	return ""
}

func (r *pgRepository) GetOrCreateCart(ctx context.Context, owner string) (*domain.Cart, error) {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO carts (owner) VALUES ($1) ON CONFLICT (owner) DO NOTHING`, owner)
	if err != nil {
		return nil, pgError("insert cart", err)
	}
	return r.FindCart(ctx, owner)
}

func (r *pgRepository) FindCart(ctx context.Context, owner string) (*domain.Cart, error) {
	query := `SELECT id, owner, created_at, updated_at FROM carts WHERE owner = $1` + r.lockClause()

	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, query, owner).Scan(
		&cart.ID,
		&cart.Owner,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, pgError("query cart by owner", err)
	}
	return &cart, nil
}

func (r *pgRepository) GetOrCreateLine(ctx context.Context, cartID string, productID int64) (*domain.CartLine, bool, error) {
	query := `INSERT INTO cart_lines (cart_id, product_id, quantity)
	          VALUES ($1, $2, 0)
	          ON CONFLICT (cart_id, product_id) DO NOTHING
	          RETURNING id, cart_id, product_id, quantity, created_at, updated_at`

	line, err := scanLine(r.q.QueryRowContext(ctx, query, cartID, productID))
	if err == nil {
		return line, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, pgError("insert cart line", err)
	}

	line, err = r.FindLine(ctx, cartID, productID)
	if err != nil {
		return nil, false, err
	}
	return line, false, nil
}

func (r *pgRepository) FindLine(ctx context.Context, cartID string, productID int64) (*domain.CartLine, error) {
	query := `SELECT id, cart_id, product_id, quantity, created_at, updated_at
	          FROM cart_lines WHERE cart_id = $1 AND product_id = $2`

	line, err := scanLine(r.q.QueryRowContext(ctx, query, cartID, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, pgError("query cart line", err)
	}
	return line, nil
}

func (r *pgRepository) SaveLine(ctx context.Context, line *domain.CartLine) error {
	query := `UPDATE cart_lines SET quantity = $1, updated_at = NOW()
	          WHERE id = $2
	          RETURNING updated_at`

	err := r.q.QueryRowContext(ctx, query, line.Quantity, line.ID).Scan(&line.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLineNotFound
	}
	if err != nil {
		return pgError("update cart line", err)
	}
	return nil
}

func (r *pgRepository) DeleteLine(ctx context.Context, line *domain.CartLine) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = $1`, line.ID)
	if err != nil {
		return pgError("delete cart line", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pgError("delete cart line", err)
	}
	if n == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *pgRepository) ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	query := `SELECT id, cart_id, product_id, quantity, created_at, updated_at
	          FROM cart_lines WHERE cart_id = $1 ORDER BY product_id`

	rows, err := r.q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, pgError("query cart lines", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, *line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}

func (r *pgRepository) DeleteAllLines(ctx context.Context, cartID string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, pgError("delete cart lines", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, pgError("delete cart lines", err)
	}
	return n, nil
}

func (r *pgRepository) RecordEvent(ctx context.Context, event *domain.CartEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal cart event: %w", err)
	}

	query := `INSERT INTO cart_outbox (id, aggregate_id, event_type, payload, created_at)
	          VALUES ($1, $2, $3, $4, $5)`

	_, err = r.q.ExecContext(ctx, query, event.ID, event.Owner, string(event.Type), string(payload), event.OccurredAt)
	if err != nil {
		return pgError("insert outbox event", err)
	}
	return nil
}

func (r *pgRepository) GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.CartEvent, error) {
	query := `SELECT payload FROM cart_outbox
	          WHERE published_at IS NULL
	          ORDER BY seq
	          LIMIT $1`

	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, pgError("query outbox events", err)
	}
	defer rows.Close()

	var events []*domain.CartEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		var event domain.CartEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal outbox event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *pgRepository) MarkEventPublished(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE cart_outbox SET published_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return pgError("mark outbox event published", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLine(row rowScanner) (*domain.CartLine, error) {
	var line domain.CartLine
	err := row.Scan(
		&line.ID,
		&line.CartID,
		&line.ProductID,
		&line.Quantity,
		&line.CreatedAt,
		&line.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// pgError wraps err and tags races lost to a concurrent transaction with
// ErrConflict.
func pgError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "40001", "40P01":
			return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

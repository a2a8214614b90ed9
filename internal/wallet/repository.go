package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
)

// Repository persists wallet records.
type Repository interface {
	Create(ctx context.Context, w Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	GetByName(ctx context.Context, name string) (Wallet, error)
	// SearchIn returns the wallets among ids whose name contains nameLike
	// (case-insensitive). An empty nameLike matches everything.
	SearchIn(ctx context.Context, ids []string, nameLike string) ([]Wallet, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record. A duplicate name surfaces as Conflict.
func (r *PostgresRepository) Create(ctx context.Context, w Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, name, password_hash, created_at)
        VALUES ($1, $2, $3, $4)`, walletID, w.Name, w.PasswordHash, w.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("wallet name %s already exists", w.Name)
	}
	return err
}

// Get fetches a wallet by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	walletUUID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, apperr.NotFound("wallet %s not found", id)
	}
	row := r.db.QueryRow(ctx, `SELECT id, name, password_hash, created_at
        FROM wallets WHERE id = $1`, walletUUID)
	return scanWallet(row, id)
}

// GetByName fetches a wallet by its unique name.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, password_hash, created_at
        FROM wallets WHERE name = $1`, name)
	return scanWallet(row, name)
}

// SearchIn lists wallets among ids matching the substring filter, ordered by
// creation time.
func (r *PostgresRepository) SearchIn(ctx context.Context, ids []string, nameLike string) ([]Wallet, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		parsed = append(parsed, u)
	}
	rows, err := r.db.Query(ctx, `SELECT id, name, password_hash, created_at
        FROM wallets WHERE id = ANY($1) AND name ILIKE $2
        ORDER BY created_at`, parsed, "%"+nameLike+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wallet
	for rows.Next() {
		var (
			w         Wallet
			idVal     uuid.UUID
			createdAt time.Time
		)
		if err := rows.Scan(&idVal, &w.Name, &w.PasswordHash, &createdAt); err != nil {
			return nil, err
		}
		w.ID = idVal.String()
		w.CreatedAt = createdAt.UTC()
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row, key string) (Wallet, error) {
	var (
		w         Wallet
		idVal     uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&idVal, &w.Name, &w.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, apperr.NotFound("wallet %s not found", key)
		}
		return Wallet{}, err
	}
	w.ID = idVal.String()
	w.CreatedAt = createdAt.UTC()
	return w, nil
}

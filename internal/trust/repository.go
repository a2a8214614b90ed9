package trust

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
)

// Repository persists trust relationships. Lookups are expressed as indexed
// pair/state queries; callers never scan whole relationship sets.
type Repository interface {
	Create(ctx context.Context, rel Relationship) error
	Get(ctx context.Context, id string) (Relationship, error)
	// UpdateState transitions id from one state to another. The update is
	// conditional on the current state so concurrent transitions cannot
	// both win; a lost race surfaces as Conflict.
	UpdateState(ctx context.Context, id string, from, to State, at time.Time) error
	// ExistsActive reports whether a relationship with the exact request
	// type and actor/target pair exists in requested or trusted state.
	ExistsActive(ctx context.Context, rt RequestType, actorID, targetID string) (bool, error)
	// ExistsTrusted reports whether such a relationship exists in trusted state.
	ExistsTrusted(ctx context.Context, rt RequestType, actorID, targetID string) (bool, error)
	// TrustedChildren returns the wallets directly controlled by walletID:
	// targets of its trusted manage grants plus actors of trusted yield
	// grants naming it as target.
	TrustedChildren(ctx context.Context, walletID string) ([]string, error)
	// ListByTargets returns relationships whose target is one of ids.
	ListByTargets(ctx context.Context, ids []string) ([]Relationship, error)
	// ListByWallet returns relationships naming walletID in any role.
	ListByWallet(ctx context.Context, walletID string) ([]Relationship, error)
}

// PostgresRepository stores relationships in PostgreSQL. A partial unique
// index over (request_type, actor_wallet_id, target_wallet_id) for active
// states backstops the engine's duplicate pre-check.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed trust repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const relationshipColumns = `id, type, request_type, actor_wallet_id, target_wallet_id,
        originator_wallet_id, state, created_at, updated_at`

// Create inserts a relationship record.
func (r *PostgresRepository) Create(ctx context.Context, rel Relationship) error {
	relID, err := uuid.Parse(rel.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO trust_relationships
        (id, type, request_type, actor_wallet_id, target_wallet_id, originator_wallet_id, state, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		relID, string(rel.Type), string(rel.RequestType),
		rel.ActorWalletID, rel.TargetWalletID, rel.OriginatorWalletID,
		string(rel.State), rel.CreatedAt.UTC(), rel.UpdatedAt.UTC())
	return err
}

// Get fetches a relationship by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Relationship, error) {
	relID, err := uuid.Parse(id)
	if err != nil {
		return Relationship{}, apperr.NotFound("trust relationship %s not found", id)
	}
	row := r.db.QueryRow(ctx, `SELECT `+relationshipColumns+`
        FROM trust_relationships WHERE id = $1`, relID)
	rel, err := scanRelationship(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Relationship{}, apperr.NotFound("trust relationship %s not found", id)
		}
		return Relationship{}, err
	}
	return rel, nil
}

// UpdateState performs the conditional state transition.
func (r *PostgresRepository) UpdateState(ctx context.Context, id string, from, to State, at time.Time) error {
	relID, err := uuid.Parse(id)
	if err != nil {
		return apperr.NotFound("trust relationship %s not found", id)
	}
	cmd, err := r.db.Exec(ctx, `UPDATE trust_relationships
        SET state = $1, updated_at = $2
        WHERE id = $3 AND state = $4`, string(to), at.UTC(), relID, string(from))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.Conflict("trust relationship %s is not in %s state", id, from)
	}
	return nil
}

// ExistsActive checks for an exact active pair match.
func (r *PostgresRepository) ExistsActive(ctx context.Context, rt RequestType, actorID, targetID string) (bool, error) {
	return r.exists(ctx, rt, actorID, targetID, []State{StateRequested, StateTrusted})
}

// ExistsTrusted checks for an exact trusted pair match.
func (r *PostgresRepository) ExistsTrusted(ctx context.Context, rt RequestType, actorID, targetID string) (bool, error) {
	return r.exists(ctx, rt, actorID, targetID, []State{StateTrusted})
}

func (r *PostgresRepository) exists(ctx context.Context, rt RequestType, actorID, targetID string, states []State) (bool, error) {
	stateStrs := make([]string, len(states))
	for i, s := range states {
		stateStrs[i] = string(s)
	}
	var found bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
            SELECT 1 FROM trust_relationships
            WHERE request_type = $1 AND actor_wallet_id = $2 AND target_wallet_id = $3 AND state = ANY($4)
        )`, string(rt), actorID, targetID, stateStrs).Scan(&found)
	return found, err
}

// TrustedChildren lists the wallets walletID directly controls.
func (r *PostgresRepository) TrustedChildren(ctx context.Context, walletID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT target_wallet_id FROM trust_relationships
        WHERE request_type = $1 AND actor_wallet_id = $2 AND state = $3
        UNION
        SELECT actor_wallet_id FROM trust_relationships
        WHERE request_type = $4 AND target_wallet_id = $2 AND state = $3`,
		string(RequestManage), walletID, string(StateTrusted), string(RequestYield))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var children []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		children = append(children, id)
	}
	return children, rows.Err()
}

// ListByTargets returns relationships addressed to any of the given wallets.
func (r *PostgresRepository) ListByTargets(ctx context.Context, ids []string) ([]Relationship, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+relationshipColumns+`
        FROM trust_relationships WHERE target_wallet_id = ANY($1)
        ORDER BY created_at`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// ListByWallet returns relationships involving the wallet in any role.
func (r *PostgresRepository) ListByWallet(ctx context.Context, walletID string) ([]Relationship, error) {
	rows, err := r.db.Query(ctx, `SELECT `+relationshipColumns+`
        FROM trust_relationships
        WHERE actor_wallet_id = $1 OR target_wallet_id = $1 OR originator_wallet_id = $1
        ORDER BY created_at`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

func scanRelationships(rows pgx.Rows) ([]Relationship, error) {
	var out []Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func scanRelationship(row pgx.Row) (Relationship, error) {
	var (
		rel          Relationship
		relID        uuid.UUID
		typ, rt, st  string
		created, upd time.Time
	)
	if err := row.Scan(&relID, &typ, &rt, &rel.ActorWalletID, &rel.TargetWalletID,
		&rel.OriginatorWalletID, &st, &created, &upd); err != nil {
		return Relationship{}, err
	}
	rel.ID = relID.String()
	rel.Type = Type(typ)
	rel.RequestType = RequestType(rt)
	rel.State = State(st)
	rel.CreatedAt = created.UTC()
	rel.UpdatedAt = upd.UTC()
	return rel, nil
}

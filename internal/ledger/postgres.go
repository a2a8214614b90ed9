package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
)

// PostgresLedger persists token custody in PostgreSQL. Every mutation runs
// in a transaction and re-checks the expected pre-state under row locks, so
// concurrent transfers of the same token cannot both succeed.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed custody ledger.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const tokenColumns = `id, wallet_id, capture_id, transfer_pending, created_at, updated_at`
const transferColumns = `id, sender_wallet_id, receiver_wallet_id, state, bundle_size, claim, created_at, updated_at`

// MintTokens creates one token per capture id inside the wallet.
func (l *PostgresLedger) MintTokens(ctx context.Context, walletID string, captureIDs []string) ([]Token, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := time.Now().UTC()
	minted := make([]Token, 0, len(captureIDs))
	for i, captureID := range captureIDs {
		// Stagger timestamps so creation order stays total within a batch.
		created := now.Add(time.Duration(i) * time.Microsecond)
		token := Token{
			ID:        uuid.NewString(),
			WalletID:  walletID,
			CaptureID: captureID,
			CreatedAt: created,
			UpdatedAt: created,
		}
		if _, err := tx.Exec(ctx, `INSERT INTO tokens (id, wallet_id, capture_id, transfer_pending, created_at, updated_at)
            VALUES ($1, $2, $3, false, $4, $5)`,
			uuid.MustParse(token.ID), walletID, captureID, created, created); err != nil {
			return nil, err
		}
		minted = append(minted, token)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return minted, nil
}

// ListTokens pages a wallet's tokens in creation order.
func (l *PostgresLedger) ListTokens(ctx context.Context, walletID string, start, limit int) ([]Token, error) {
	if start < 1 {
		start = 1
	}
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE wallet_id = $1 ORDER BY created_at, id OFFSET $2`
	args := []any{walletID, start - 1}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokens(rows)
}

// ListTokensByTransfer pages the tokens referenced by a transfer.
func (l *PostgresLedger) ListTokensByTransfer(ctx context.Context, transferID string, start, limit int) ([]Token, error) {
	transferUUID, err := uuid.Parse(transferID)
	if err != nil {
		return nil, apperr.NotFound("transfer %s not found", transferID)
	}
	if start < 1 {
		start = 1
	}
	query := `SELECT ` + prefixed("t", tokenColumns) + `
        FROM tokens t INNER JOIN transfer_tokens tt ON tt.token_id = t.id
        WHERE tt.transfer_id = $1 ORDER BY t.created_at, t.id OFFSET $2`
	args := []any{transferUUID, start - 1}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokens(rows)
}

// GetToken fetches a token by id.
func (l *PostgresLedger) GetToken(ctx context.Context, id string) (Token, error) {
	tokenUUID, err := uuid.Parse(id)
	if err != nil {
		return Token{}, apperr.NotFound("token %s not found", id)
	}
	row := l.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, tokenUUID)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, apperr.NotFound("token %s not found", id)
		}
		return Token{}, err
	}
	return token, nil
}

// CountTokens returns the number of tokens held by the wallet.
func (l *PostgresLedger) CountTokens(ctx context.Context, walletID string) (int, error) {
	var count int
	err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM tokens WHERE wallet_id = $1`, walletID).Scan(&count)
	return count, err
}

// Transfer moves the listed tokens, completing synchronously when trusted
// and locking them behind a pending transfer otherwise.
func (l *PostgresLedger) Transfer(ctx context.Context, senderID, receiverID string, tokenIDs []string, trusted, claim bool) (Transfer, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transfer{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, id := range tokenIDs {
		if err := lockAvailableToken(ctx, tx, id, senderID); err != nil {
			return Transfer{}, err
		}
	}

	now := time.Now().UTC()
	transfer := Transfer{
		ID:               uuid.NewString(),
		SenderWalletID:   senderID,
		ReceiverWalletID: receiverID,
		State:            TransferPendingState,
		TokenIDs:         append([]string(nil), tokenIDs...),
		Claim:            claim,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if trusted {
		transfer.State = TransferCompleted
	}

	if err := insertTransfer(ctx, tx, transfer); err != nil {
		return Transfer{}, err
	}
	if err := moveOrLockTokens(ctx, tx, tokenIDs, senderID, receiverID, trusted, now); err != nil {
		return Transfer{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

// TransferBundle reserves exactly bundleSize available tokens or fails whole.
func (l *PostgresLedger) TransferBundle(ctx context.Context, senderID, receiverID string, bundleSize int, trusted, claim bool) (Transfer, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transfer{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	rows, err := tx.Query(ctx, `SELECT id FROM tokens
        WHERE wallet_id = $1 AND transfer_pending = false
        ORDER BY created_at, id LIMIT $2 FOR UPDATE`, senderID, bundleSize)
	if err != nil {
		return Transfer{}, err
	}
	var reserved []string
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return Transfer{}, err
		}
		reserved = append(reserved, id.String())
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Transfer{}, err
	}
	if len(reserved) < bundleSize {
		return Transfer{}, apperr.Conflict("sender wallet holds %d available tokens, bundle needs %d", len(reserved), bundleSize)
	}

	now := time.Now().UTC()
	transfer := Transfer{
		ID:               uuid.NewString(),
		SenderWalletID:   senderID,
		ReceiverWalletID: receiverID,
		State:            TransferPendingState,
		TokenIDs:         reserved,
		BundleSize:       bundleSize,
		Claim:            claim,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if trusted {
		transfer.State = TransferCompleted
	}

	if err := insertTransfer(ctx, tx, transfer); err != nil {
		return Transfer{}, err
	}
	if err := moveOrLockTokens(ctx, tx, reserved, senderID, receiverID, trusted, now); err != nil {
		return Transfer{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

// Fulfill finalizes a pending transfer's reserved tokens.
func (l *PostgresLedger) Fulfill(ctx context.Context, transferID string, tokenIDs []string) (Transfer, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transfer{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	transfer, err := lockTransfer(ctx, tx, transferID)
	if err != nil {
		return Transfer{}, err
	}
	if transfer.State != TransferPendingState {
		return Transfer{}, apperr.Conflict("transfer %s is not pending", transferID)
	}
	if len(tokenIDs) > 0 {
		if err := matchReserved(transfer.TokenIDs, tokenIDs); err != nil {
			return Transfer{}, err
		}
	}

	now := time.Now().UTC()
	for _, id := range transfer.TokenIDs {
		cmd, err := tx.Exec(ctx, `UPDATE tokens
            SET wallet_id = $1, transfer_pending = false, updated_at = $2
            WHERE id = $3 AND wallet_id = $4 AND transfer_pending = true`,
			transfer.ReceiverWalletID, now, uuid.MustParse(id), transfer.SenderWalletID)
		if err != nil {
			return Transfer{}, err
		}
		if cmd.RowsAffected() == 0 {
			return Transfer{}, apperr.Conflict("token %s is no longer reserved for transfer %s", id, transferID)
		}
	}

	if err := updateTransferState(ctx, tx, transfer.ID, TransferPendingState, TransferCompleted, now); err != nil {
		return Transfer{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transfer{}, err
	}
	transfer.State = TransferCompleted
	transfer.UpdatedAt = now
	return transfer, nil
}

// CancelTransfer voids a pending transfer on the sender's behalf.
func (l *PostgresLedger) CancelTransfer(ctx context.Context, transferID string) (Transfer, error) {
	return l.release(ctx, transferID, TransferCancelled)
}

// DeclineTransfer rejects a pending transfer on the receiver's behalf.
func (l *PostgresLedger) DeclineTransfer(ctx context.Context, transferID string) (Transfer, error) {
	return l.release(ctx, transferID, TransferRejected)
}

func (l *PostgresLedger) release(ctx context.Context, transferID string, state TransferState) (Transfer, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transfer{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	transfer, err := lockTransfer(ctx, tx, transferID)
	if err != nil {
		return Transfer{}, err
	}
	if transfer.State != TransferPendingState {
		return Transfer{}, apperr.Conflict("transfer %s is not pending", transferID)
	}

	now := time.Now().UTC()
	for _, id := range transfer.TokenIDs {
		if _, err := tx.Exec(ctx, `UPDATE tokens
            SET transfer_pending = false, updated_at = $1
            WHERE id = $2 AND transfer_pending = true`, now, uuid.MustParse(id)); err != nil {
			return Transfer{}, err
		}
	}

	if err := updateTransferState(ctx, tx, transfer.ID, TransferPendingState, state, now); err != nil {
		return Transfer{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transfer{}, err
	}
	transfer.State = state
	transfer.UpdatedAt = now
	return transfer, nil
}

// GetTransfer fetches a transfer with its token references.
func (l *PostgresLedger) GetTransfer(ctx context.Context, id string) (Transfer, error) {
	transferUUID, err := uuid.Parse(id)
	if err != nil {
		return Transfer{}, apperr.NotFound("transfer %s not found", id)
	}
	row := l.db.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1`, transferUUID)
	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, apperr.NotFound("transfer %s not found", id)
		}
		return Transfer{}, err
	}
	transfer.TokenIDs, err = l.transferTokenIDs(ctx, transferUUID)
	if err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

// ListTransfers pages transfers involving the wallet.
func (l *PostgresLedger) ListTransfers(ctx context.Context, walletID string, state TransferState, start, limit int) ([]Transfer, error) {
	if start < 1 {
		start = 1
	}
	query := `SELECT ` + transferColumns + ` FROM transfers
        WHERE (sender_wallet_id = $1 OR receiver_wallet_id = $1)`
	args := []any{walletID}
	if state != "" {
		query += ` AND state = $2`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at, id OFFSET $` + strconv.Itoa(len(args)+1)
	args = append(args, start-1)
	if limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1)
		args = append(args, limit)
	}
	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, transfer)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) transferTokenIDs(ctx context.Context, transferID uuid.UUID) ([]string, error) {
	rows, err := l.db.Query(ctx, `SELECT tt.token_id FROM transfer_tokens tt
        INNER JOIN tokens t ON t.id = tt.token_id
        WHERE tt.transfer_id = $1 ORDER BY t.created_at, t.id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id.String())
	}
	return ids, rows.Err()
}

func lockAvailableToken(ctx context.Context, tx pgx.Tx, id, senderID string) error {
	tokenUUID, err := uuid.Parse(id)
	if err != nil {
		return apperr.NotFound("token %s not found", id)
	}
	var walletID string
	var pending bool
	if err := tx.QueryRow(ctx, `SELECT wallet_id, transfer_pending FROM tokens
        WHERE id = $1 FOR UPDATE`, tokenUUID).Scan(&walletID, &pending); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("token %s not found", id)
		}
		return err
	}
	if walletID != senderID {
		return apperr.Forbidden("token %s is not held by the sender wallet", id)
	}
	if pending {
		return apperr.Conflict("token %s is locked by a pending transfer", id)
	}
	return nil
}

// moveOrLockTokens reassigns ownership (trusted) or sets the pending lock
// (untrusted). Updates are conditional on the expected pre-state; a zero
// row count means a concurrent transfer won the token.
func moveOrLockTokens(ctx context.Context, tx pgx.Tx, tokenIDs []string, senderID, receiverID string, trusted bool, now time.Time) error {
	query := `UPDATE tokens SET transfer_pending = true, updated_at = $1
        WHERE id = $2 AND wallet_id = $3 AND transfer_pending = false`
	if trusted {
		query = `UPDATE tokens SET wallet_id = $4, updated_at = $1
            WHERE id = $2 AND wallet_id = $3 AND transfer_pending = false`
	}
	for _, id := range tokenIDs {
		args := []any{now, uuid.MustParse(id), senderID}
		if trusted {
			args = append(args, receiverID)
		}
		cmd, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return apperr.Conflict("token %s was claimed by a concurrent transfer", id)
		}
	}
	return nil
}

func insertTransfer(ctx context.Context, tx pgx.Tx, transfer Transfer) error {
	if _, err := tx.Exec(ctx, `INSERT INTO transfers
        (id, sender_wallet_id, receiver_wallet_id, state, bundle_size, claim, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.MustParse(transfer.ID), transfer.SenderWalletID, transfer.ReceiverWalletID,
		string(transfer.State), transfer.BundleSize, transfer.Claim,
		transfer.CreatedAt, transfer.UpdatedAt); err != nil {
		return err
	}
	for _, tokenID := range transfer.TokenIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO transfer_tokens (transfer_id, token_id)
            VALUES ($1, $2)`, uuid.MustParse(transfer.ID), uuid.MustParse(tokenID)); err != nil {
			return err
		}
	}
	return nil
}

func lockTransfer(ctx context.Context, tx pgx.Tx, id string) (Transfer, error) {
	transferUUID, err := uuid.Parse(id)
	if err != nil {
		return Transfer{}, apperr.NotFound("transfer %s not found", id)
	}
	row := tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, transferUUID)
	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, apperr.NotFound("transfer %s not found", id)
		}
		return Transfer{}, err
	}

	rows, err := tx.Query(ctx, `SELECT token_id FROM transfer_tokens WHERE transfer_id = $1`, transferUUID)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var tokenID uuid.UUID
		if err := rows.Scan(&tokenID); err != nil {
			return Transfer{}, err
		}
		transfer.TokenIDs = append(transfer.TokenIDs, tokenID.String())
	}
	return transfer, rows.Err()
}

func updateTransferState(ctx context.Context, tx pgx.Tx, id string, from, to TransferState, at time.Time) error {
	cmd, err := tx.Exec(ctx, `UPDATE transfers SET state = $1, updated_at = $2
        WHERE id = $3 AND state = $4`, string(to), at, uuid.MustParse(id), string(from))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.Conflict("transfer %s is not in %s state", id, from)
	}
	return nil
}

func scanTokens(rows pgx.Rows) ([]Token, error) {
	var out []Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, token)
	}
	return out, rows.Err()
}

func scanToken(row pgx.Row) (Token, error) {
	var (
		token        Token
		tokenID      uuid.UUID
		created, upd time.Time
	)
	if err := row.Scan(&tokenID, &token.WalletID, &token.CaptureID, &token.TransferPending, &created, &upd); err != nil {
		return Token{}, err
	}
	token.ID = tokenID.String()
	token.CreatedAt = created.UTC()
	token.UpdatedAt = upd.UTC()
	return token, nil
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var (
		transfer     Transfer
		transferID   uuid.UUID
		state        string
		created, upd time.Time
	)
	if err := row.Scan(&transferID, &transfer.SenderWalletID, &transfer.ReceiverWalletID,
		&state, &transfer.BundleSize, &transfer.Claim, &created, &upd); err != nil {
		return Transfer{}, err
	}
	transfer.ID = transferID.String()
	transfer.State = TransferState(state)
	transfer.CreatedAt = created.UTC()
	transfer.UpdatedAt = upd.UTC()
	return transfer, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

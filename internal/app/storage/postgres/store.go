// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/boostly/kudos/internal/app/domain/member"
	"github.com/boostly/kudos/internal/app/domain/recognition"
	"github.com/boostly/kudos/internal/app/domain/redemption"
	"github.com/boostly/kudos/internal/app/period"
	"github.com/boostly/kudos/internal/app/storage"
)

// Transactions run at serializable isolation and are retried a bounded
// number of times when Postgres aborts them with a serialization failure
// or deadlock.
const maxTxAttempts = 3

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// Store implements storage.Store on a PostgreSQL database handle.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn inside one serializable transaction, retrying the whole
// function on transient serialization conflicts.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("transaction retries exhausted: %w", lastErr)
}

func (s *Store) runTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation {
		return fmt.Errorf("%s: %w", pqErr.Constraint, storage.ErrDuplicate)
	}
	return err
}

// pgTx implements storage.Tx on an open *sql.Tx.
type pgTx struct {
	tx *sql.Tx
}

var _ storage.Tx = (*pgTx)(nil)

// --- members ----------------------------------------------------------------

func (t *pgTx) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO members (id, name, email, current_balance, monthly_sending_limit, last_reset_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.Name, m.Email, m.CurrentBalance, m.MonthlySendingLimit, m.LastResetAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return member.Member{}, mapError(err)
	}
	return m, nil
}

func (t *pgTx) UpdateMember(ctx context.Context, m member.Member) (member.Member, error) {
	m.UpdatedAt = time.Now().UTC()

	result, err := t.tx.ExecContext(ctx, `
		UPDATE members
		SET name = $2, email = $3, current_balance = $4, monthly_sending_limit = $5, last_reset_at = $6, updated_at = $7
		WHERE id = $1
	`, m.ID, m.Name, m.Email, m.CurrentBalance, m.MonthlySendingLimit, m.LastResetAt, m.UpdatedAt)
	if err != nil {
		return member.Member{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return member.Member{}, storage.ErrNotFound
	}
	return m, nil
}

const memberColumns = `id, name, email, current_balance, monthly_sending_limit, last_reset_at, created_at, updated_at`

// GetMember locks the member row for the rest of the transaction so
// concurrent check-then-mutate sequences cannot interleave.
func (t *pgTx) GetMember(ctx context.Context, id string) (member.Member, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanMember(row)
}

func (t *pgTx) GetMemberByEmail(ctx context.Context, email string) (member.Member, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE lower(email) = lower($1)
	`, email)
	return scanMember(row)
}

func (t *pgTx) ListMembers(ctx context.Context) ([]member.Member, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		ORDER BY created_at
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (member.Member, error) {
	var m member.Member
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.CurrentBalance, &m.MonthlySendingLimit, &m.LastResetAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return member.Member{}, mapError(err)
	}
	m.LastResetAt = m.LastResetAt.UTC()
	return m, nil
}

// --- recognitions -----------------------------------------------------------

const recognitionColumns = `id, sender_id, receiver_id, credits, message, period_key, created_at`

func (t *pgTx) CreateRecognition(ctx context.Context, rec recognition.Recognition) (recognition.Recognition, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO recognitions (id, sender_id, receiver_id, credits, message, period_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.SenderID, rec.ReceiverID, rec.Credits, rec.Message, rec.PeriodKey.String(), rec.CreatedAt)
	if err != nil {
		return recognition.Recognition{}, mapError(err)
	}
	return rec, nil
}

func (t *pgTx) GetRecognition(ctx context.Context, id string) (recognition.Recognition, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+recognitionColumns+`
		FROM recognitions
		WHERE id = $1
	`, id)
	return scanRecognition(row)
}

func (t *pgTx) ListRecognitions(ctx context.Context) ([]recognition.Recognition, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+recognitionColumns+`
		FROM recognitions
		ORDER BY created_at
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []recognition.Recognition
	for rows.Next() {
		rec, err := scanRecognition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func scanRecognition(row rowScanner) (recognition.Recognition, error) {
	var (
		rec recognition.Recognition
		key string
	)
	if err := row.Scan(&rec.ID, &rec.SenderID, &rec.ReceiverID, &rec.Credits, &rec.Message, &key, &rec.CreatedAt); err != nil {
		return recognition.Recognition{}, mapError(err)
	}
	rec.PeriodKey = period.Key(key)
	return rec, nil
}

func (t *pgTx) SumSentCredits(ctx context.Context, senderID string, key period.Key) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(credits), 0)
		FROM recognitions
		WHERE sender_id = $1 AND period_key = $2
	`, senderID, key.String()).Scan(&total)
	if err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

// --- endorsements -----------------------------------------------------------

func (t *pgTx) CreateEndorsement(ctx context.Context, e recognition.Endorsement) (recognition.Endorsement, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO endorsements (id, recognition_id, endorser_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, e.ID, e.RecognitionID, e.EndorserID, e.CreatedAt)
	if err != nil {
		return recognition.Endorsement{}, mapError(err)
	}
	return e, nil
}

func (t *pgTx) GetEndorsement(ctx context.Context, id string) (recognition.Endorsement, error) {
	var e recognition.Endorsement
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, recognition_id, endorser_id, created_at
		FROM endorsements
		WHERE id = $1
	`, id).Scan(&e.ID, &e.RecognitionID, &e.EndorserID, &e.CreatedAt)
	if err != nil {
		return recognition.Endorsement{}, mapError(err)
	}
	return e, nil
}

func (t *pgTx) HasEndorsement(ctx context.Context, recognitionID, endorserID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM endorsements
			WHERE recognition_id = $1 AND endorser_id = $2
		)
	`, recognitionID, endorserID).Scan(&exists)
	if err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

func (t *pgTx) CountEndorsements(ctx context.Context, recognitionID string) (int64, error) {
	var count int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(id)
		FROM endorsements
		WHERE recognition_id = $1
	`, recognitionID).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

// --- redemptions ------------------------------------------------------------

func (t *pgTx) CreateRedemption(ctx context.Context, r redemption.Redemption) (redemption.Redemption, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO redemptions (id, member_id, credits_redeemed, voucher_amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ID, r.MemberID, r.CreditsRedeemed, r.VoucherAmount, r.CreatedAt)
	if err != nil {
		return redemption.Redemption{}, mapError(err)
	}
	return r, nil
}

func (t *pgTx) GetRedemption(ctx context.Context, id string) (redemption.Redemption, error) {
	var r redemption.Redemption
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, member_id, credits_redeemed, voucher_amount, created_at
		FROM redemptions
		WHERE id = $1
	`, id).Scan(&r.ID, &r.MemberID, &r.CreditsRedeemed, &r.VoucherAmount, &r.CreatedAt)
	if err != nil {
		return redemption.Redemption{}, mapError(err)
	}
	return r, nil
}

func (t *pgTx) ListRedemptions(ctx context.Context, memberID string) ([]redemption.Redemption, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, member_id, credits_redeemed, voucher_amount, created_at
		FROM redemptions
		WHERE member_id = $1
		ORDER BY created_at
	`, memberID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []redemption.Redemption
	for rows.Next() {
		var r redemption.Redemption
		if err := rows.Scan(&r.ID, &r.MemberID, &r.CreditsRedeemed, &r.VoucherAmount, &r.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// --- leaderboard ------------------------------------------------------------

// Leaderboard ranks members by credits received. Members without a received
// recognition are excluded by the inner join.
func (t *pgTx) Leaderboard(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT m.id,
		       m.name,
		       SUM(r.credits)  AS total_credits,
		       COUNT(r.id)     AS total_recognitions,
		       COALESCE(e.total, 0) AS total_endorsements
		FROM members m
		JOIN recognitions r ON r.receiver_id = m.id
		LEFT JOIN (
			SELECT rec.receiver_id, COUNT(en.id) AS total
			FROM endorsements en
			JOIN recognitions rec ON rec.id = en.recognition_id
			GROUP BY rec.receiver_id
		) e ON e.receiver_id = m.id
		GROUP BY m.id, m.name, e.total
		ORDER BY total_credits DESC, m.id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []storage.LeaderboardEntry
	for rows.Next() {
		var entry storage.LeaderboardEntry
		if err := rows.Scan(&entry.MemberID, &entry.MemberName, &entry.TotalCreditsReceived, &entry.TotalRecognitionsReceived, &entry.TotalEndorsementsReceived); err != nil {
			return nil, mapError(err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

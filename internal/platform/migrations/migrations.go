// Package migrations owns the database schema. Statements are idempotent so
// Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		current_balance BIGINT NOT NULL DEFAULT 100,
		monthly_sending_limit BIGINT NOT NULL DEFAULT 100,
		last_reset_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT members_balance_non_negative CHECK (current_balance >= 0),
		CONSTRAINT members_sending_limit_non_negative CHECK (monthly_sending_limit >= 0)
	)`,

	`CREATE TABLE IF NOT EXISTS recognitions (
		id UUID PRIMARY KEY,
		sender_id UUID NOT NULL REFERENCES members(id),
		receiver_id UUID NOT NULL REFERENCES members(id),
		credits BIGINT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		period_key TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT recognitions_credits_positive CHECK (credits > 0),
		CONSTRAINT recognitions_no_self_send CHECK (sender_id <> receiver_id)
	)`,

	`CREATE INDEX IF NOT EXISTS recognitions_sender_period_idx
		ON recognitions (sender_id, period_key)`,

	`CREATE INDEX IF NOT EXISTS recognitions_receiver_idx
		ON recognitions (receiver_id)`,

	`CREATE TABLE IF NOT EXISTS endorsements (
		id UUID PRIMARY KEY,
		recognition_id UUID NOT NULL REFERENCES recognitions(id),
		endorser_id UUID NOT NULL REFERENCES members(id),
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT endorsements_unique_pair UNIQUE (recognition_id, endorser_id)
	)`,

	`CREATE TABLE IF NOT EXISTS redemptions (
		id UUID PRIMARY KEY,
		member_id UUID NOT NULL REFERENCES members(id),
		credits_redeemed BIGINT NOT NULL,
		voucher_amount BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT redemptions_credits_positive CHECK (credits_redeemed > 0)
	)`,
}

// Apply executes every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

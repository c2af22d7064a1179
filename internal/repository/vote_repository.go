package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"awards-api/internal/domain"
	"awards-api/pkg/database"
	apperrors "awards-api/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type voteRepository struct {
	db *database.PostgresDB
}

// NewVoteRepository creates a new vote repository backed by PostgreSQL.
func NewVoteRepository(db *database.PostgresDB) VoteRepository {
	return &voteRepository{db: db}
}

// HasVoted reports whether this voter already voted in the subcategory
func (r *voteRepository) HasVoted(ctx context.Context, subcategoryID int, voterEmail string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM votes WHERE subcategory_id = $1 AND voter_email = $2
		)
	`

	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, subcategoryID, domain.NormalizeEmail(voterEmail)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing vote: %w", err)
	}

	return exists, nil
}

// CreateVoteWithOutbox inserts the vote, bumps the denormalized counter, and
// enqueues the outbox entries in one transaction
func (r *voteRepository) CreateVoteWithOutbox(ctx context.Context, vote *domain.Vote, entries []*domain.OutboxEntry) error {
	if vote.ID == "" {
		vote.ID = uuid.New().String()
	}
	vote.VoterEmail = domain.NormalizeEmail(vote.VoterEmail)

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO votes (id, nomination_id, subcategory_id, voter_email, voter_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err = tx.QueryRow(ctx, insertQuery,
		vote.ID,
		vote.NominationID,
		vote.SubcategoryID,
		vote.VoterEmail,
		vote.VoterName,
	).Scan(&vote.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "voter") {
			return apperrors.NewConflictError("voter has already voted in this subcategory")
		}
		return fmt.Errorf("failed to insert vote: %w", err)
	}

	counterQuery := `
		UPDATE nominations SET votes = votes + 1, updated_at = NOW()
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, counterQuery, vote.NominationID)
	if err != nil {
		return fmt.Errorf("failed to increment vote counter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("nomination not found")
	}

	if err := insertOutboxEntries(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit vote transaction: %w", err)
	}

	return nil
}

// CountForNomination returns the ledger vote count for a nomination
func (r *voteRepository) CountForNomination(ctx context.Context, nominationID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM votes WHERE nomination_id = $1`

	err := r.db.Pool.QueryRow(ctx, query, nominationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}

	return count, nil
}

// ReconcileVoteCounts repairs denormalized counters that drifted from the
// ledger
func (r *voteRepository) ReconcileVoteCounts(ctx context.Context) (int64, error) {
	query := `
		UPDATE nominations n SET
			votes = ledger.count,
			updated_at = NOW()
		FROM (
			SELECT n2.id, COALESCE(COUNT(v.id), 0) AS count
			FROM nominations n2
			LEFT JOIN votes v ON v.nomination_id = n2.id
			GROUP BY n2.id
		) AS ledger
		WHERE n.id = ledger.id AND n.votes <> ledger.count
	`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile vote counts: %w", err)
	}

	return result.RowsAffected(), nil
}

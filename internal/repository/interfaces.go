package repository

import (
	"context"
	"time"

	"awards-api/internal/domain"
)

// NominationRepository defines the interface for nominator, nominee, and
// nomination data operations. Methods that change nomination state and
// announce it externally take the outbox entries to insert in the same
// transaction; if the outbox insert fails the whole write rolls back.
type NominationRepository interface {
	// SubmitWithOutbox runs a full submission in one transaction: the
	// nominator upsert, the nominee resolve (create, or content refresh by
	// natural identity), the nomination insert, and the outbox entries all
	// commit or roll back together. When the nominee already has an active
	// nomination in the subcategory, mergeExisting decides whether it is
	// reassigned to the new nominator and reset to submitted, or returned
	// untouched; either way the result carries Duplicate=true.
	SubmitWithOutbox(ctx context.Context, nominator *domain.Nominator, nominee *domain.Nominee, nomination *domain.Nomination, entries []*domain.OutboxEntry, mergeExisting bool) (*domain.SubmitResult, error)

	// TransitionWithOutbox moves a nomination between states with a
	// conditional update on the current state, writing the outbox entries
	// in the same transaction. Returns false when the row was not in one
	// of the expected source states.
	TransitionWithOutbox(ctx context.Context, nominationID string, from []domain.NominationState, to domain.NominationState, liveURL string, approvedAt *time.Time, entries []*domain.OutboxEntry) (bool, error)

	// GetNomination retrieves a nomination by ID
	GetNomination(ctx context.Context, id string) (*domain.Nomination, error)

	// GetNominationDetail retrieves a nomination joined with its nominator
	// and nominee
	GetNominationDetail(ctx context.Context, id string) (*domain.NominationDetail, error)

	// ListNominations lists nominations matching a filter
	ListNominations(ctx context.Context, filter domain.NominationFilter) ([]*domain.Nomination, error)

	// SetAdditionalVotes sets the administrator vote adjustment
	SetAdditionalVotes(ctx context.Context, nominationID string, additionalVotes int) error
}

// VoteRepository defines the interface for vote ledger operations.
type VoteRepository interface {
	// HasVoted reports whether this voter already voted in the subcategory
	HasVoted(ctx context.Context, subcategoryID int, voterEmail string) (bool, error)

	// CreateVoteWithOutbox inserts the vote, increments the nomination's
	// denormalized counter, and writes the outbox entries in one
	// transaction. Returns a conflict error on a duplicate voter.
	CreateVoteWithOutbox(ctx context.Context, vote *domain.Vote, entries []*domain.OutboxEntry) error

	// CountForNomination returns the ledger vote count for a nomination
	CountForNomination(ctx context.Context, nominationID string) (int, error)

	// ReconcileVoteCounts repairs any denormalized counters that drifted
	// from the ledger, returning the number of rows fixed
	ReconcileVoteCounts(ctx context.Context) (int64, error)
}

// OutboxRepository defines the interface for outbox entry operations.
type OutboxRepository interface {
	// ClaimBatch atomically flips up to limit due pending entries to
	// processing and returns them, oldest first. Concurrent dispatchers
	// never claim the same entry twice.
	ClaimBatch(ctx context.Context, limit int) ([]*domain.OutboxEntry, error)

	// MarkDone marks a processing entry as delivered and clears its error
	MarkDone(ctx context.Context, id string) error

	// MarkRetry returns a processing entry to pending with the attempt
	// count, last error, and next attempt time set
	MarkRetry(ctx context.Context, id string, attemptCount int, lastError string, nextAttemptAt time.Time) error

	// MarkDead dead-letters a processing entry, preserving its error
	MarkDead(ctx context.Context, id string, lastError string) error

	// ReapStale returns entries stuck in processing past the threshold to
	// pending, reporting how many were recovered
	ReapStale(ctx context.Context, claimedBefore time.Time) (int64, error)

	// List lists entries matching a filter, newest first
	List(ctx context.Context, filter domain.OutboxFilter) ([]*domain.OutboxEntry, error)

	// CountByStatus returns entry counts grouped by status
	CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error)

	// Retry resets a dead entry to pending for manual replay
	Retry(ctx context.Context, id string) (bool, error)
}

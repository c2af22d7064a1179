package service

import (
	"context"

	"awards-api/internal/domain"
)

// SyncAdapter defines the interface every external sync target implements.
// Lookups are keyed by natural external identifiers (email or domain), never
// internal ids, and upserts are safe to repeat: calling twice with the same
// payload produces the same end state, not two records.
type SyncAdapter interface {
	// Name returns the target name the adapter serves
	Name() string

	// UpsertContact creates or updates a contact keyed by email and
	// assigns the segment tag
	UpsertContact(ctx context.Context, email string, properties map[string]string, segmentTag string) error

	// UpsertCompany creates or updates a company keyed by domain and
	// assigns the segment tag
	UpsertCompany(ctx context.Context, companyDomain string, properties map[string]string, segmentTag string) error
}

// OutboxDispatcher defines the interface for the recurring sync worker.
type OutboxDispatcher interface {
	// Start begins the timer-driven dispatch loop
	Start(ctx context.Context) error

	// Stop gracefully shuts the loop down
	Stop(ctx context.Context) error

	// RunOnce performs a single reap+claim+dispatch pass
	RunOnce(ctx context.Context, limit int) (*domain.DispatchReport, error)

	// Status returns counts per status and the entries matching the filter
	Status(ctx context.Context, filter domain.OutboxFilter) (*domain.OutboxStatusReport, error)

	// Retry resets a dead entry to pending for manual replay
	Retry(ctx context.Context, entryID string) error
}

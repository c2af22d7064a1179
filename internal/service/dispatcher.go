package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"awards-api/internal/domain"
	"awards-api/internal/repository"
	apperrors "awards-api/pkg/errors"
	"awards-api/pkg/logger"
	"awards-api/pkg/redis"
)

// DispatcherConfig tunes the outbox dispatch loop.
type DispatcherConfig struct {
	Interval        time.Duration
	BatchSize       int
	SyncTimeout     time.Duration
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	StaleClaimAfter time.Duration
}

// reconciler lets the dispatch loop piggyback the periodic vote counter
// consistency check without owning the voting service.
type reconciler interface {
	ReconcileVoteCounts(ctx context.Context) (int64, error)
}

// dispatcherService drains the outbox: it claims pending entries, routes each
// to its target's adapter, and records the outcome. Entries are independent;
// one entry's failure never blocks the rest, and ordering between entries is
// not guaranteed.
type dispatcherService struct {
	outboxRepo repository.OutboxRepository
	adapters   map[domain.SyncTarget]SyncAdapter
	redis      *redis.Client
	reconciler reconciler
	logger     *logger.Logger
	cfg        DispatcherConfig

	ticker    *time.Ticker
	stop      chan struct{}
	mu        sync.Mutex
	isRunning bool
	runs      int
}

// runsPerReconcile spaces the vote counter consistency check out to roughly
// every 20 dispatch ticks.
const runsPerReconcile = 20

// NewOutboxDispatcher creates the recurring outbox worker. Redis and the
// reconciler are optional.
func NewOutboxDispatcher(outboxRepo repository.OutboxRepository, adapters map[domain.SyncTarget]SyncAdapter, redisClient *redis.Client, rec reconciler, cfg DispatcherConfig, logger *logger.Logger) OutboxDispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = time.Hour
	}
	if cfg.StaleClaimAfter <= 0 {
		cfg.StaleClaimAfter = 10 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 15 * time.Second
	}

	return &dispatcherService{
		outboxRepo: outboxRepo,
		adapters:   adapters,
		redis:      redisClient,
		reconciler: rec,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start begins the timer-driven dispatch loop
func (s *dispatcherService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	s.logger.WithFields(map[string]interface{}{
		"interval":   s.cfg.Interval.String(),
		"batch_size": s.cfg.BatchSize,
		"targets":    len(s.adapters),
	}).Info("Starting outbox dispatcher")

	// A fresh channel every Start so a stopped dispatcher can be restarted.
	s.ticker = time.NewTicker(s.cfg.Interval)
	s.stop = make(chan struct{})
	go s.loop(ctx, s.ticker, s.stop)

	s.isRunning = true
	return nil
}

// Stop gracefully shuts the loop down
func (s *dispatcherService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.ticker.Stop()
	close(s.stop)
	s.isRunning = false

	s.logger.Info("Outbox dispatcher stopped")
	return nil
}

func (s *dispatcherService) loop(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *dispatcherService) tick(ctx context.Context) {
	// Best-effort lock so overlapping ticks on the same deployment don't
	// pile up. Claiming stays correct without it.
	if s.redis != nil {
		lockKey := s.redis.KeyBuilder.KeyDispatchLock()
		acquired, err := s.redis.SetNX(ctx, lockKey, "1", redis.TTLDispatchLock)
		if err == nil && !acquired {
			return
		}
	}

	report, err := s.RunOnce(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Outbox dispatch run failed")
		return
	}

	if report.Claimed > 0 || report.Reaped > 0 {
		s.logger.WithFields(map[string]interface{}{
			"claimed": report.Claimed,
			"done":    report.Done,
			"retried": report.Retried,
			"dead":    report.Dead,
			"reaped":  report.Reaped,
		}).Info("Outbox dispatch run completed")
	}

	s.mu.Lock()
	s.runs++
	runReconcile := s.reconciler != nil && s.runs%runsPerReconcile == 0
	s.mu.Unlock()

	if runReconcile {
		if _, err := s.reconciler.ReconcileVoteCounts(ctx); err != nil {
			s.logger.WithError(err).Warn("Vote counter reconciliation failed")
		}
	}
}

// RunOnce performs a single pass: recover stale claims, claim a batch of due
// entries, and dispatch each independently.
func (s *dispatcherService) RunOnce(ctx context.Context, limit int) (*domain.DispatchReport, error) {
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}

	report := &domain.DispatchReport{}

	// Self-healing: entries left in processing by a crashed run would be
	// stuck forever without this.
	reaped, err := s.outboxRepo.ReapStale(ctx, time.Now().Add(-s.cfg.StaleClaimAfter))
	if err != nil {
		return nil, fmt.Errorf("reaper pass failed: %w", err)
	}
	report.Reaped = reaped
	if reaped > 0 {
		s.logger.WithField("reaped", reaped).Warn("Recovered stale outbox claims")
	}

	entries, err := s.outboxRepo.ClaimBatch(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	report.Claimed = len(entries)

	for _, entry := range entries {
		s.dispatchEntry(ctx, entry, report)
	}

	return report, nil
}

// dispatchEntry delivers one claimed entry and records the outcome. Failures
// are isolated per entry.
func (s *dispatcherService) dispatchEntry(ctx context.Context, entry *domain.OutboxEntry, report *domain.DispatchReport) {
	syncCtx, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
	err := s.deliver(syncCtx, entry)
	cancel()

	if err == nil {
		if markErr := s.outboxRepo.MarkDone(ctx, entry.ID); markErr != nil {
			s.logger.WithError(markErr).Error("Failed to mark outbox entry done")
		}
		report.Done++
		return
	}

	attempt := entry.AttemptCount + 1
	entryLog := s.logger.WithFields(map[string]interface{}{
		"entry_id":   entry.ID,
		"event_type": string(entry.EventType),
		"target":     string(entry.Target),
		"attempt":    attempt,
	})

	if !apperrors.IsTransient(err) {
		if markErr := s.outboxRepo.MarkDead(ctx, entry.ID, err.Error()); markErr != nil {
			s.logger.WithError(markErr).Error("Failed to dead-letter outbox entry")
		}
		entryLog.WithError(err).Error("Outbox entry dead-lettered: permanent failure")
		report.Dead++
		return
	}

	if attempt >= s.cfg.MaxAttempts {
		if markErr := s.outboxRepo.MarkDead(ctx, entry.ID, err.Error()); markErr != nil {
			s.logger.WithError(markErr).Error("Failed to dead-letter outbox entry")
		}
		entryLog.WithError(err).Error("Outbox entry dead-lettered: attempts exhausted")
		report.Dead++
		return
	}

	next := time.Now().Add(s.backoff(attempt))
	if markErr := s.outboxRepo.MarkRetry(ctx, entry.ID, attempt, err.Error(), next); markErr != nil {
		s.logger.WithError(markErr).Error("Failed to schedule outbox retry")
	}
	entryLog.WithError(err).Warn("Outbox entry scheduled for retry")
	report.Retried++
}

// Status returns counts per status and the entries matching the filter
func (s *dispatcherService) Status(ctx context.Context, filter domain.OutboxFilter) (*domain.OutboxStatusReport, error) {
	counts, err := s.outboxRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.outboxRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &domain.OutboxStatusReport{Counts: counts, Entries: entries}, nil
}

// Retry resets a dead entry to pending for manual replay
func (s *dispatcherService) Retry(ctx context.Context, entryID string) error {
	ok, err := s.outboxRepo.Retry(ctx, entryID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewNotFoundError("no dead outbox entry with that id")
	}
	s.logger.WithField("entry_id", entryID).Info("Dead outbox entry queued for replay")
	return nil
}

// backoff computes the exponential retry delay: base * 2^(attempt-1), capped.
func (s *dispatcherService) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := float64(s.cfg.BackoffBase) * math.Pow(2, float64(attempt-1))
	if exp > float64(s.cfg.BackoffCap) {
		return s.cfg.BackoffCap
	}
	return time.Duration(exp)
}

// deliver routes an entry to its target adapter. Adapters are keyed by
// natural external ids and tolerate out-of-order arrival, so a vote-cast may
// land before its nomination's approval without failing.
func (s *dispatcherService) deliver(ctx context.Context, entry *domain.OutboxEntry) error {
	adapter, ok := s.adapters[entry.Target]
	if !ok {
		return apperrors.NewValidationError(
			fmt.Sprintf("no adapter configured for target %q", entry.Target), nil)
	}

	switch entry.EventType {
	case domain.EventNominatorUpserted, domain.EventNominatorLive:
		var payload domain.NominatorPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return apperrors.NewValidationError("malformed nominator payload", map[string]interface{}{"error": err.Error()})
		}
		tag := domain.TagNominator
		if entry.EventType == domain.EventNominatorLive {
			tag = domain.TagNominatorLive
		}
		return adapter.UpsertContact(ctx, payload.Nominator.Email, nominatorProperties(payload.Nominator), tag)

	case domain.EventNominationApproved:
		var payload domain.ApprovalPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return apperrors.NewValidationError("malformed approval payload", map[string]interface{}{"error": err.Error()})
		}
		props := nomineeProperties(payload)
		if payload.Nominee.Kind == domain.NomineeCompany {
			companyDomain := domain.DomainFromWebsite(payload.Nominee.Website)
			if companyDomain == "" {
				return apperrors.NewValidationError("company nominee has no website domain", nil)
			}
			return adapter.UpsertCompany(ctx, companyDomain, props, domain.TagNominee)
		}
		return adapter.UpsertContact(ctx, payload.Nominee.Email, props, domain.TagNominee)

	case domain.EventVoteCast:
		var payload domain.VotePayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return apperrors.NewValidationError("malformed vote payload", map[string]interface{}{"error": err.Error()})
		}
		props := map[string]string{
			"name":           payload.VoterName,
			"voted_for":      payload.Nominee.Name,
			"subcategory_id": fmt.Sprintf("%d", payload.SubcategoryID),
		}
		return adapter.UpsertContact(ctx, payload.VoterEmail, props, domain.TagVoter)

	default:
		return apperrors.NewValidationError(
			fmt.Sprintf("unknown event type %q", entry.EventType), nil)
	}
}

func nominatorProperties(n domain.NominatorSnapshot) map[string]string {
	return map[string]string{
		"name":      n.Name,
		"company":   n.Company,
		"job_title": n.JobTitle,
		"phone":     n.Phone,
		"country":   n.Country,
		"linkedin":  n.LinkedIn,
	}
}

func nomineeProperties(p domain.ApprovalPayload) map[string]string {
	props := map[string]string{
		"name":     p.Nominee.Name,
		"linkedin": p.Nominee.LinkedIn,
		"live_url": p.LiveURL,
	}
	if p.Nominee.Kind == domain.NomineeCompany {
		props["website"] = p.Nominee.Website
		props["industry"] = p.Nominee.Industry
		props["company_size"] = p.Nominee.CompanySize
	} else {
		props["job_title"] = p.Nominee.JobTitle
		props["employer"] = p.Nominee.Employer
	}
	return props
}

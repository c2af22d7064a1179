package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"awards-api/internal/domain"
	apperrors "awards-api/pkg/errors"
	"awards-api/pkg/logger"
)

type retryCall struct {
	id            string
	attemptCount  int
	lastError     string
	nextAttemptAt time.Time
}

type deadCall struct {
	id        string
	lastError string
}

// fakeOutboxRepo records outcome calls so tests can assert on how the
// dispatcher resolved each claimed entry.
type fakeOutboxRepo struct {
	claimable []*domain.OutboxEntry
	reaped    int64

	done    []string
	retries []retryCall
	dead    []deadCall
	replays []string
}

func (f *fakeOutboxRepo) ClaimBatch(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	if limit < len(f.claimable) {
		return f.claimable[:limit], nil
	}
	return f.claimable, nil
}

func (f *fakeOutboxRepo) MarkDone(ctx context.Context, id string) error {
	f.done = append(f.done, id)
	return nil
}

func (f *fakeOutboxRepo) MarkRetry(ctx context.Context, id string, attemptCount int, lastError string, nextAttemptAt time.Time) error {
	f.retries = append(f.retries, retryCall{id, attemptCount, lastError, nextAttemptAt})
	return nil
}

func (f *fakeOutboxRepo) MarkDead(ctx context.Context, id string, lastError string) error {
	f.dead = append(f.dead, deadCall{id, lastError})
	return nil
}

func (f *fakeOutboxRepo) ReapStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	return f.reaped, nil
}

func (f *fakeOutboxRepo) List(ctx context.Context, filter domain.OutboxFilter) ([]*domain.OutboxEntry, error) {
	return f.claimable, nil
}

func (f *fakeOutboxRepo) CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
	return map[domain.OutboxStatus]int64{domain.StatusPending: int64(len(f.claimable))}, nil
}

func (f *fakeOutboxRepo) Retry(ctx context.Context, id string) (bool, error) {
	for _, d := range f.dead {
		if d.id == id {
			f.replays = append(f.replays, id)
			return true, nil
		}
	}
	return false, nil
}

type contactCall struct {
	email      string
	properties map[string]string
	segmentTag string
}

type companyCall struct {
	domain     string
	properties map[string]string
	segmentTag string
}

type fakeAdapter struct {
	name      string
	err       error
	contacts  []contactCall
	companies []companyCall
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) UpsertContact(ctx context.Context, email string, properties map[string]string, segmentTag string) error {
	if f.err != nil {
		return f.err
	}
	f.contacts = append(f.contacts, contactCall{email, properties, segmentTag})
	return nil
}

func (f *fakeAdapter) UpsertCompany(ctx context.Context, companyDomain string, properties map[string]string, segmentTag string) error {
	if f.err != nil {
		return f.err
	}
	f.companies = append(f.companies, companyCall{companyDomain, properties, segmentTag})
	return nil
}

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func newTestDispatcher(repo *fakeOutboxRepo, adapters map[domain.SyncTarget]SyncAdapter) *dispatcherService {
	d := NewOutboxDispatcher(repo, adapters, nil, nil, DispatcherConfig{
		BatchSize:   10,
		MaxAttempts: 3,
		BackoffBase: 30 * time.Second,
		BackoffCap:  time.Hour,
	}, testLogger())
	return d.(*dispatcherService)
}

func nominatorEntry(t *testing.T, target domain.SyncTarget) *domain.OutboxEntry {
	t.Helper()
	entries, err := domain.NewOutboxEntries(domain.EventNominatorUpserted, domain.NominatorPayload{
		Nominator:     domain.NominatorSnapshot{Email: "jane@example.com", Name: "Jane", Company: "Acme"},
		CategoryID:    1,
		SubcategoryID: 101,
	}, []domain.SyncTarget{target})
	require.NoError(t, err)
	return entries[0]
}

func TestDispatcher_StopThenRestart(t *testing.T) {
	repo := &fakeOutboxRepo{}
	d := newTestDispatcher(repo, map[domain.SyncTarget]SyncAdapter{})

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	require.NoError(t, d.Stop(ctx))

	// A stopped dispatcher can come back up with a working loop.
	require.NoError(t, d.Start(ctx))
	d.mu.Lock()
	running := d.isRunning
	d.mu.Unlock()
	assert.True(t, running)

	require.NoError(t, d.Stop(ctx))
}

func TestDispatcher_RunOnce_DeliversAndMarksDone(t *testing.T) {
	repo := &fakeOutboxRepo{claimable: []*domain.OutboxEntry{nominatorEntry(t, domain.TargetHubSpot)}}
	adapter := &fakeAdapter{name: "hubspot"}
	d := newTestDispatcher(repo, map[domain.SyncTarget]SyncAdapter{domain.TargetHubSpot: adapter})

	report, err := d.RunOnce(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Claimed)
	assert.Equal(t, 1, report.Done)
	assert.Equal(t, 0, report.Retried)
	assert.Equal(t, 0, report.Dead)

	require.Len(t, adapter.contacts, 1)
	assert.Equal(t, "jane@example.com", adapter.contacts[0].email)
	assert.Equal(t, domain.TagNominator, adapter.contacts[0].segmentTag)
	assert.Equal(t, "Acme", adapter.contacts[0].properties["company"])

	require.Len(t, repo.done, 1)
}

func TestDispatcher_RunOnce_TransientErrorSchedulesRetry(t *testing.T) {
	entry := nominatorEntry(t, domain.TargetHubSpot)
	repo := &fakeOutboxRepo{claimable: []*domain.OutboxEntry{entry}}
	adapter := &fakeAdapter{name: "hubspot", err: apperrors.NewExternalError("upstream returned 503", nil)}
	d := newTestDispatcher(repo, map[domain.SyncTarget]SyncAdapter{domain.TargetHubSpot: adapter})

	before := time.Now()
	report, err := d.RunOnce(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Retried)
	assert.Equal(t, 0, report.Dead)
	require.Len(t, repo.retries, 1)

	retry := repo.retries[0]
	assert.Equal(t, entry.ID, retry.id)
	assert.Equal(t, 1, retry.attemptCount)
	assert.Contains(t, retry.lastError, "503")

	// First retry lands one backoff base out
	assert.WithinDuration(t, before.Add(30*time.Second), retry.nextAttemptAt, 5*time.Second)
}

func TestDispatcher_RunOnce_PermanentErrorDeadLetters(t *testing.T) {
	entry := nominatorEntry(t, domain.TargetHubSpot)
	repo := &fakeOutboxRepo{claimable: []*domain.OutboxEntry{entry}}
	adapter := &fakeAdapter{name: "hubspot", err: apperrors.NewValidationError("email malformed", nil)}
	d := newTestDispatcher(repo, map[domain.SyncTarget]SyncAdapter{domain.TargetHubSpot: adapter})

	report, err := d.RunOnce(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Dead)
	assert.Equal(t, 0, report.Retried)
	require.Len(t, repo.dead, 1)
	assert.Equal(t, entry.ID, repo.dead[0].id)
}

func TestDispatcher_RunOnce_ExhaustedAttemptsDeadLetter(t *testing.T) {
	entry := nominatorEntry(t, domain.TargetHubSpot)
	entry.AttemptCount = 2 // next failure is attempt 3 of 3
	repo := &fakeOutboxRepo{claimable: []*domain.OutboxEntry{entry}}
	adapter := &fakeAdapter{name: "hubspot", err: apperrors.NewExternalError("still down", nil)}
	d := newTestDispatcher(repo, map[domain.SyncTarget]SyncAdapter{domain.TargetHubSpot: adapter})

	report, err := d.RunOnce(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Dead)
	assert.Empty(t, repo.retries)
}

func TestDispatcher_RunOnce_MissingAdapterDeadLetters(t *testing.T) {
	repo := &fakeOutboxRepo{claimable: []*domain.OutboxEntry{nominatorEntry(t, domain.TargetMailchimp)}}
	d := newTestDispatcher(repo, map[domain.SyncTarget]SyncAdapter{})

	report, err := d.RunOnce(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Dead)
	require.Len(t, repo.dead, 1)
	assert.Contains(t, repo.dead[0].lastError, "no adapter configured")
}

func TestDispatcher_RunOnce_FailuresAreIsolated(t *testing.T) {
	hubspotEntry := nominatorEntry(t, domain.TargetHubSpot)
	mailchimpEntry := nominatorEntry(t, domain.TargetMailchimp)
	repo := &fakeOutboxRepo{claimable: []*domain.OutboxEntry{hubspotEntry, mailchimpEntry}}

	failing := &fakeAdapter{name: "hubspot", err: apperrors.NewExternalError("down", nil)}
	healthy := &fakeAdapter{name: "mailchimp"}
	d := newTestDispatcher(repo, map[domain.SyncTarget]SyncAdapter{
		domain.TargetHubSpot:   failing,
		domain.TargetMailchimp: healthy,
	})

	report, err := d.RunOnce(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Claimed)
	assert.Equal(t, 1, report.Done)
	assert.Equal(t, 1, report.Retried)
	require.Len(t, healthy.contacts, 1)
}

func TestDispatcher_RunOnce_ReportsReapedClaims(t *testing.T) {
	repo := &fakeOutboxRepo{reaped: 3}
	d := newTestDispatcher(repo, map[domain.SyncTarget]SyncAdapter{})

	report, err := d.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Reaped)
}

func TestDispatcher_Deliver_RoutesApprovalByNomineeKind(t *testing.T) {
	adapter := &fakeAdapter{name: "hubspot"}
	d := newTestDispatcher(&fakeOutboxRepo{}, map[domain.SyncTarget]SyncAdapter{domain.TargetHubSpot: adapter})

	companyPayload := domain.ApprovalPayload{
		NominationID: "nom-1",
		Nominee: domain.NomineeSnapshot{
			Kind:    domain.NomineeCompany,
			Name:    "Acme",
			Website: "https://www.acme.io",
		},
		Nominator: domain.NominatorSnapshot{Email: "jane@example.com"},
		LiveURL:   "https://awards.example.com/nominees/acme-1a2b3c4d",
	}
	entries, err := domain.NewOutboxEntries(domain.EventNominationApproved, companyPayload, []domain.SyncTarget{domain.TargetHubSpot})
	require.NoError(t, err)

	require.NoError(t, d.deliver(context.Background(), entries[0]))
	require.Len(t, adapter.companies, 1)
	assert.Equal(t, "acme.io", adapter.companies[0].domain)
	assert.Equal(t, domain.TagNominee, adapter.companies[0].segmentTag)
	assert.Equal(t, companyPayload.LiveURL, adapter.companies[0].properties["live_url"])

	personPayload := companyPayload
	personPayload.Nominee = domain.NomineeSnapshot{
		Kind:  domain.NomineePerson,
		Name:  "Jane Doe",
		Email: "jane.doe@example.com",
	}
	entries, err = domain.NewOutboxEntries(domain.EventNominationApproved, personPayload, []domain.SyncTarget{domain.TargetHubSpot})
	require.NoError(t, err)

	require.NoError(t, d.deliver(context.Background(), entries[0]))
	require.Len(t, adapter.contacts, 1)
	assert.Equal(t, "jane.doe@example.com", adapter.contacts[0].email)
	assert.Equal(t, domain.TagNominee, adapter.contacts[0].segmentTag)
}

func TestDispatcher_Deliver_VoteCastTagsVoter(t *testing.T) {
	adapter := &fakeAdapter{name: "mailchimp"}
	d := newTestDispatcher(&fakeOutboxRepo{}, map[domain.SyncTarget]SyncAdapter{domain.TargetMailchimp: adapter})

	entries, err := domain.NewOutboxEntries(domain.EventVoteCast, domain.VotePayload{
		NominationID:  "nom-1",
		VoterEmail:    "voter@example.com",
		VoterName:     "Vic Voter",
		SubcategoryID: 101,
		Nominee:       domain.NomineeSnapshot{Kind: domain.NomineePerson, Name: "Jane Doe"},
	}, []domain.SyncTarget{domain.TargetMailchimp})
	require.NoError(t, err)

	require.NoError(t, d.deliver(context.Background(), entries[0]))
	require.Len(t, adapter.contacts, 1)
	assert.Equal(t, "voter@example.com", adapter.contacts[0].email)
	assert.Equal(t, domain.TagVoter, adapter.contacts[0].segmentTag)
	assert.Equal(t, "Jane Doe", adapter.contacts[0].properties["voted_for"])
}

func TestDispatcher_Deliver_NominatorLiveUpgradesSegment(t *testing.T) {
	adapter := &fakeAdapter{name: "hubspot"}
	d := newTestDispatcher(&fakeOutboxRepo{}, map[domain.SyncTarget]SyncAdapter{domain.TargetHubSpot: adapter})

	entries, err := domain.NewOutboxEntries(domain.EventNominatorLive, domain.NominatorPayload{
		Nominator: domain.NominatorSnapshot{Email: "jane@example.com", Name: "Jane"},
	}, []domain.SyncTarget{domain.TargetHubSpot})
	require.NoError(t, err)

	require.NoError(t, d.deliver(context.Background(), entries[0]))
	require.Len(t, adapter.contacts, 1)
	assert.Equal(t, domain.TagNominatorLive, adapter.contacts[0].segmentTag)
}

func TestDispatcher_Backoff(t *testing.T) {
	d := newTestDispatcher(&fakeOutboxRepo{}, nil)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{10, time.Hour}, // capped
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, d.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDispatcher_Retry_UnknownEntry(t *testing.T) {
	d := newTestDispatcher(&fakeOutboxRepo{}, nil)

	err := d.Retry(context.Background(), "missing")
	require.Error(t, err)
	assert.False(t, apperrors.IsTransient(err))
}

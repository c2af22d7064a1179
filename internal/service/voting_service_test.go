package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"awards-api/internal/domain"
	apperrors "awards-api/pkg/errors"
	"awards-api/pkg/redis"
)

type fakeVoteRepo struct {
	votes  map[string]*domain.Vote
	outbox []*domain.OutboxEntry
	fixed  int64
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{votes: map[string]*domain.Vote{}}
}

func voteKey(subcategoryID int, voterEmail string) string {
	return fmt.Sprintf("%d|%s", subcategoryID, voterEmail)
}

func (f *fakeVoteRepo) HasVoted(ctx context.Context, subcategoryID int, voterEmail string) (bool, error) {
	_, ok := f.votes[voteKey(subcategoryID, voterEmail)]
	return ok, nil
}

func (f *fakeVoteRepo) CreateVoteWithOutbox(ctx context.Context, vote *domain.Vote, entries []*domain.OutboxEntry) error {
	key := voteKey(vote.SubcategoryID, vote.VoterEmail)
	if _, ok := f.votes[key]; ok {
		return apperrors.NewConflictError("voter has already voted in this subcategory")
	}
	if vote.ID == "" {
		vote.ID = uuid.New().String()
	}
	vote.CreatedAt = time.Now()
	copied := *vote
	f.votes[key] = &copied
	f.outbox = append(f.outbox, entries...)
	return nil
}

func (f *fakeVoteRepo) CountForNomination(ctx context.Context, nominationID string) (int, error) {
	count := 0
	for _, v := range f.votes {
		if v.NominationID == nominationID {
			count++
		}
	}
	return count, nil
}

func (f *fakeVoteRepo) ReconcileVoteCounts(ctx context.Context) (int64, error) {
	return f.fixed, nil
}

// approveSubmission pushes a fresh nomination through submit and approve so
// voting tests start from a votable row.
func approveSubmission(t *testing.T, repo *fakeNominationRepo) *domain.Nomination {
	t.Helper()
	svc := newTestNominationService(repo)

	submitted, err := svc.Submit(context.Background(), personSubmission())
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), submitted.Nomination.ID)
	require.NoError(t, err)
	return approved
}

func newTestVotingService(voteRepo *fakeVoteRepo, nomRepo *fakeNominationRepo, redisClient *redis.Client) *VotingService {
	return NewVotingService(voteRepo, nomRepo, redisClient, allTargets, zap.NewNop())
}

func castRequest(nominationID string) *domain.CastVoteRequest {
	return &domain.CastVoteRequest{
		NominationID:  nominationID,
		SubcategoryID: 101,
		VoterEmail:    "Vic.Voter@Example.com",
		VoterName:     "Vic Voter",
	}
}

func TestVotingService_CastVote(t *testing.T) {
	nomRepo := newFakeNominationRepo()
	nomination := approveSubmission(t, nomRepo)
	voteRepo := newFakeVoteRepo()
	svc := newTestVotingService(voteRepo, nomRepo, nil)

	enqueuedBefore := len(nomRepo.outbox)

	resp, err := svc.CastVote(context.Background(), castRequest(nomination.ID))
	require.NoError(t, err)

	assert.NotEmpty(t, resp.VoteID)
	assert.Equal(t, nomination.ID, resp.NominationID)
	assert.Equal(t, 1, resp.TotalVotes)

	// Voter email is normalized before it hits the ledger
	_, ok := voteRepo.votes[voteKey(101, "vic.voter@example.com")]
	assert.True(t, ok)

	// One vote-cast entry per target, in the vote transaction
	assert.Len(t, voteRepo.outbox, 2)
	for _, entry := range voteRepo.outbox {
		assert.Equal(t, domain.EventVoteCast, entry.EventType)
	}
	assert.Len(t, nomRepo.outbox, enqueuedBefore)
}

func TestVotingService_CastVote_DuplicateVoterConflicts(t *testing.T) {
	nomRepo := newFakeNominationRepo()
	nomination := approveSubmission(t, nomRepo)
	svc := newTestVotingService(newFakeVoteRepo(), nomRepo, nil)

	_, err := svc.CastVote(context.Background(), castRequest(nomination.ID))
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), castRequest(nomination.ID))
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrorTypeConflict, appErr.Type)
}

func TestVotingService_CastVote_RedisFastPath(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	redisClient, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	defer redisClient.Close()

	nomRepo := newFakeNominationRepo()
	nomination := approveSubmission(t, nomRepo)
	voteRepo := newFakeVoteRepo()
	svc := newTestVotingService(voteRepo, nomRepo, redisClient)

	_, err = svc.CastVote(context.Background(), castRequest(nomination.ID))
	require.NoError(t, err)

	// The vote is cached for the duplicate fast path
	cached := redisClient.KeyBuilder.KeyVoterVoted(101, "vic.voter@example.com")
	assert.True(t, mr.Exists(cached))

	_, err = svc.CastVote(context.Background(), castRequest(nomination.ID))
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrorTypeConflict, appErr.Type)
}

func TestVotingService_CastVote_UnapprovedNomination(t *testing.T) {
	nomRepo := newFakeNominationRepo()
	nomSvc := newTestNominationService(nomRepo)

	submitted, err := nomSvc.Submit(context.Background(), personSubmission())
	require.NoError(t, err)

	svc := newTestVotingService(newFakeVoteRepo(), nomRepo, nil)

	_, err = svc.CastVote(context.Background(), castRequest(submitted.Nomination.ID))
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrorTypeConflict, appErr.Type)
}

func TestVotingService_CastVote_SubcategoryMismatch(t *testing.T) {
	nomRepo := newFakeNominationRepo()
	nomination := approveSubmission(t, nomRepo)
	svc := newTestVotingService(newFakeVoteRepo(), nomRepo, nil)

	req := castRequest(nomination.ID)
	req.SubcategoryID = 999

	_, err := svc.CastVote(context.Background(), req)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
}

func TestVotingService_CastVote_UnknownNomination(t *testing.T) {
	svc := newTestVotingService(newFakeVoteRepo(), newFakeNominationRepo(), nil)

	_, err := svc.CastVote(context.Background(), castRequest(uuid.New().String()))
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrorTypeNotFound, appErr.Type)
}

func TestVotingService_AdjustVotes(t *testing.T) {
	nomRepo := newFakeNominationRepo()
	nomination := approveSubmission(t, nomRepo)
	voteRepo := newFakeVoteRepo()
	svc := newTestVotingService(voteRepo, nomRepo, nil)

	_, err := svc.CastVote(context.Background(), castRequest(nomination.ID))
	require.NoError(t, err)

	enqueuedBefore := len(voteRepo.outbox) + len(nomRepo.outbox)

	totals, err := svc.AdjustVotes(context.Background(), nomination.ID, 5)
	require.NoError(t, err)

	// Adjustment adds to the ledger count, never replaces it
	assert.Equal(t, 1, totals.LedgerVotes)
	assert.Equal(t, 5, totals.AdditionalVotes)
	assert.Equal(t, 6, totals.Total)

	// Manual count changes trigger no external sync
	assert.Equal(t, enqueuedBefore, len(voteRepo.outbox)+len(nomRepo.outbox))
}

func TestVotingService_AdjustVotes_RejectsNegative(t *testing.T) {
	nomRepo := newFakeNominationRepo()
	nomination := approveSubmission(t, nomRepo)
	svc := newTestVotingService(newFakeVoteRepo(), nomRepo, nil)

	_, err := svc.AdjustVotes(context.Background(), nomination.ID, -1)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
}

func TestVotingService_TotalVotes(t *testing.T) {
	nomRepo := newFakeNominationRepo()
	nomination := approveSubmission(t, nomRepo)
	voteRepo := newFakeVoteRepo()
	svc := newTestVotingService(voteRepo, nomRepo, nil)

	totals, err := svc.TotalVotes(context.Background(), nomination.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, totals.Total)

	_, err = svc.CastVote(context.Background(), castRequest(nomination.ID))
	require.NoError(t, err)

	totals, err = svc.TotalVotes(context.Background(), nomination.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, totals.LedgerVotes)
	assert.Equal(t, 1, totals.Total)
}

func TestVotingService_ValidateVote(t *testing.T) {
	svc := newTestVotingService(newFakeVoteRepo(), newFakeNominationRepo(), nil)

	tests := []struct {
		name string
		req  *domain.CastVoteRequest
	}{
		{"nil request", nil},
		{"missing nomination id", &domain.CastVoteRequest{SubcategoryID: 101, VoterEmail: "v@example.com"}},
		{"missing subcategory", &domain.CastVoteRequest{NominationID: "n", VoterEmail: "v@example.com"}},
		{"malformed email", &domain.CastVoteRequest{NominationID: "n", SubcategoryID: 101, VoterEmail: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CastVote(context.Background(), tt.req)
			require.Error(t, err)

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
		})
	}
}

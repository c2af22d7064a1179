package service

import (
	"context"
	"fmt"

	"awards-api/internal/domain"
	"awards-api/internal/repository"
	apperrors "awards-api/pkg/errors"
	"awards-api/pkg/redis"

	"go.uber.org/zap"
)

// VotingService owns the vote ledger and the computed tallies. Votes are
// immutable; totals are always ledger count + the administrator adjustment,
// computed at read time.
type VotingService struct {
	voteRepo repository.VoteRepository
	nomRepo  repository.NominationRepository
	redis    *redis.Client
	logger   *zap.Logger
	targets  []domain.SyncTarget
}

// NewVotingService creates a new voting service. The redis client may be nil;
// the duplicate fast path is then skipped and Postgres does all the work.
func NewVotingService(voteRepo repository.VoteRepository, nomRepo repository.NominationRepository, redisClient *redis.Client, targets []domain.SyncTarget, logger *zap.Logger) *VotingService {
	return &VotingService{
		voteRepo: voteRepo,
		nomRepo:  nomRepo,
		redis:    redisClient,
		logger:   logger,
		targets:  targets,
	}
}

// CastVote records one vote. A voter gets one vote per subcategory, not per
// nominee; the second attempt in the same subcategory fails with a conflict.
func (s *VotingService) CastVote(ctx context.Context, req *domain.CastVoteRequest) (*domain.CastVoteResponse, error) {
	if err := validateVote(req); err != nil {
		return nil, err
	}
	voterEmail := domain.NormalizeEmail(req.VoterEmail)

	// Fast path: a hit here saves a round trip, a miss or redis outage
	// falls through to the unique constraint.
	if s.redis != nil {
		voteKey := s.redis.KeyBuilder.KeyVoterVoted(req.SubcategoryID, voterEmail)
		if exists, err := s.redis.Exists(ctx, voteKey); err == nil && exists > 0 {
			return nil, apperrors.NewConflictError("voter has already voted in this subcategory")
		}
	}

	detail, err := s.nomRepo.GetNominationDetail(ctx, req.NominationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load nomination: %w", err)
	}
	if detail == nil {
		return nil, apperrors.NewNotFoundError("nomination not found")
	}
	if detail.State != domain.StateApproved {
		return nil, apperrors.NewConflictError("nomination is not open for voting")
	}
	if detail.SubcategoryID != req.SubcategoryID {
		return nil, apperrors.NewValidationError("nomination does not belong to this subcategory", nil)
	}

	payload := domain.VotePayload{
		NominationID:  detail.ID,
		VoterEmail:    voterEmail,
		VoterName:     req.VoterName,
		SubcategoryID: req.SubcategoryID,
		Nominee:       detail.Nominee.Snapshot(),
	}
	entries, err := domain.NewOutboxEntries(domain.EventVoteCast, payload, s.targets)
	if err != nil {
		return nil, err
	}

	vote := &domain.Vote{
		NominationID:  detail.ID,
		SubcategoryID: req.SubcategoryID,
		VoterEmail:    voterEmail,
		VoterName:     req.VoterName,
	}

	if err := s.voteRepo.CreateVoteWithOutbox(ctx, vote, entries); err != nil {
		return nil, err
	}

	if s.redis != nil {
		voteKey := s.redis.KeyBuilder.KeyVoterVoted(req.SubcategoryID, voterEmail)
		if err := s.redis.Set(ctx, voteKey, detail.ID, redis.TTLVoterVoted); err != nil {
			s.logger.Warn("failed to cache vote status",
				zap.Int("subcategory_id", req.SubcategoryID),
				zap.Error(err))
		}
	}

	totals, err := s.TotalVotes(ctx, detail.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("vote cast",
		zap.String("nomination_id", detail.ID),
		zap.Int("subcategory_id", req.SubcategoryID),
		zap.Int("total_votes", totals.Total))

	return &domain.CastVoteResponse{
		VoteID:       vote.ID,
		NominationID: detail.ID,
		TotalVotes:   totals.Total,
		Timestamp:    vote.CreatedAt,
	}, nil
}

// AdjustVotes sets the administrator vote adjustment for a nomination. It
// never touches the ledger and enqueues nothing: a manual count change needs
// no external sync.
func (s *VotingService) AdjustVotes(ctx context.Context, nominationID string, additionalVotes int) (*domain.VoteTotals, error) {
	if additionalVotes < 0 {
		return nil, apperrors.NewValidationError("additional votes must be zero or greater", nil)
	}

	nomination, err := s.nomRepo.GetNomination(ctx, nominationID)
	if err != nil {
		return nil, err
	}
	if nomination == nil {
		return nil, apperrors.NewNotFoundError("nomination not found")
	}

	if err := s.nomRepo.SetAdditionalVotes(ctx, nominationID, additionalVotes); err != nil {
		return nil, err
	}

	s.logger.Info("vote adjustment set",
		zap.String("nomination_id", nominationID),
		zap.Int("additional_votes", additionalVotes))

	return s.TotalVotes(ctx, nominationID)
}

// TotalVotes computes the tally for a nomination: ledger count plus the
// administrator adjustment, never cached beyond a single response.
func (s *VotingService) TotalVotes(ctx context.Context, nominationID string) (*domain.VoteTotals, error) {
	nomination, err := s.nomRepo.GetNomination(ctx, nominationID)
	if err != nil {
		return nil, err
	}
	if nomination == nil {
		return nil, apperrors.NewNotFoundError("nomination not found")
	}

	count, err := s.voteRepo.CountForNomination(ctx, nominationID)
	if err != nil {
		return nil, err
	}

	return &domain.VoteTotals{
		NominationID:    nominationID,
		LedgerVotes:     count,
		AdditionalVotes: nomination.AdditionalVotes,
		Total:           count + nomination.AdditionalVotes,
	}, nil
}

// ReconcileVoteCounts repairs denormalized counters that drifted from the
// ledger
func (s *VotingService) ReconcileVoteCounts(ctx context.Context) (int64, error) {
	fixed, err := s.voteRepo.ReconcileVoteCounts(ctx)
	if err != nil {
		return 0, err
	}
	if fixed > 0 {
		s.logger.Warn("vote counters drifted from ledger", zap.Int64("fixed", fixed))
	}
	return fixed, nil
}

func validateVote(req *domain.CastVoteRequest) error {
	if req == nil {
		return apperrors.NewValidationError("request body is required", nil)
	}
	if req.NominationID == "" {
		return apperrors.NewValidationError("nomination_id is required", nil)
	}
	if req.SubcategoryID <= 0 {
		return apperrors.NewValidationError("subcategory_id is required", nil)
	}
	if !validEmail(req.VoterEmail) {
		return apperrors.NewValidationError("a valid voter email is required", nil)
	}
	return nil
}

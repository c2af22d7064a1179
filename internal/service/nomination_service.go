package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"awards-api/internal/domain"
	"awards-api/internal/repository"
	apperrors "awards-api/pkg/errors"
	"awards-api/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NominationService owns the nomination lifecycle: submission with
// de-duplication, review transitions, and the outbox entries each transition
// enqueues.
type NominationService struct {
	repo          repository.NominationRepository
	logger        *zap.Logger
	targets       []domain.SyncTarget
	publicSiteURL string
}

// NewNominationService creates a new nomination service
func NewNominationService(repo repository.NominationRepository, targets []domain.SyncTarget, publicSiteURL string, logger *zap.Logger) *NominationService {
	return &NominationService{
		repo:          repo,
		logger:        logger,
		targets:       targets,
		publicSiteURL: strings.TrimRight(publicSiteURL, "/"),
	}
}

// Submit handles a public nomination submission. The nominator is upserted by
// email. When the nominee already has a non-rejected nomination in the same
// subcategory, the existing nomination is re-associated with the new
// nominator and reset to submitted instead of a duplicate row being created;
// the caller gets a duplicate signal, not an error.
func (s *NominationService) Submit(ctx context.Context, req *domain.SubmitNominationRequest) (*domain.SubmitResult, error) {
	if err := validateSubmission(req); err != nil {
		return nil, err
	}

	nominator := req.Nominator
	normalizeNominator(&nominator)
	nominee := req.Nominee

	payload := domain.NominatorPayload{
		Nominator:     nominator.Snapshot(),
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
	}
	entries, err := domain.NewOutboxEntries(domain.EventNominatorUpserted, payload, s.targets)
	if err != nil {
		return nil, err
	}

	nomination := &domain.Nomination{
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		State:         domain.StateSubmitted,
		Source:        domain.SourcePublic,
	}

	result, err := s.repo.SubmitWithOutbox(ctx, &nominator, &nominee, nomination, entries, true)
	if err != nil {
		return nil, fmt.Errorf("failed to submit nomination: %w", err)
	}

	if result.Duplicate {
		s.logger.Info("merged duplicate nomination",
			zap.String("nomination_id", result.Nomination.ID),
			zap.String("nominee_id", nominee.ID),
			zap.Int("subcategory_id", req.SubcategoryID))
	} else {
		s.logger.Info("nomination submitted",
			zap.String("nomination_id", result.Nomination.ID),
			zap.String("nominee_id", nominee.ID),
			zap.Int("subcategory_id", req.SubcategoryID))
	}

	return result, nil
}

// CreateDraft creates an unreviewed draft nomination on behalf of an admin or
// the bulk importer. Drafts stay invisible to the outside world, so no outbox
// entry is enqueued until review.
func (s *NominationService) CreateDraft(ctx context.Context, req *domain.SubmitNominationRequest, source domain.NominationSource) (*domain.SubmitResult, error) {
	if err := validateSubmission(req); err != nil {
		return nil, err
	}
	if source != domain.SourceAdmin && source != domain.SourceBulkImport {
		return nil, apperrors.NewValidationError("invalid draft source", nil)
	}

	nominator := req.Nominator
	normalizeNominator(&nominator)
	nominee := req.Nominee

	nomination := &domain.Nomination{
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		State:         domain.StateDraft,
		Source:        source,
	}

	result, err := s.repo.SubmitWithOutbox(ctx, &nominator, &nominee, nomination, nil, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft nomination: %w", err)
	}

	return result, nil
}

// Approve transitions a nomination to approved: assigns the live URL if
// absent and atomically enqueues the nomination-approved entries (full
// nominee+nominator snapshot) plus the nominator-live segment upgrade.
func (s *NominationService) Approve(ctx context.Context, nominationID string) (*domain.Nomination, error) {
	detail, err := s.repo.GetNominationDetail(ctx, nominationID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, apperrors.NewNotFoundError("nomination not found")
	}
	if !domain.CanTransition(detail.State, domain.StateApproved) {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("cannot approve nomination in state %q", detail.State))
	}

	liveURL := detail.LiveURL
	if liveURL == "" {
		liveURL = s.buildLiveURL(detail.Nominee)
	}

	approvalPayload := domain.ApprovalPayload{
		NominationID:  detail.ID,
		Nominee:       detail.Nominee.Snapshot(),
		Nominator:     detail.Nominator.Snapshot(),
		CategoryID:    detail.CategoryID,
		SubcategoryID: detail.SubcategoryID,
		LiveURL:       liveURL,
	}
	entries, err := domain.NewOutboxEntries(domain.EventNominationApproved, approvalPayload,
		domain.TargetsFor(domain.EventNominationApproved, detail.Nominee, s.targets))
	if err != nil {
		return nil, err
	}

	livePayload := domain.NominatorPayload{
		Nominator:     detail.Nominator.Snapshot(),
		CategoryID:    detail.CategoryID,
		SubcategoryID: detail.SubcategoryID,
	}
	liveEntries, err := domain.NewOutboxEntries(domain.EventNominatorLive, livePayload, s.targets)
	if err != nil {
		return nil, err
	}
	entries = append(entries, liveEntries...)

	now := time.Now().UTC()
	ok, err := s.repo.TransitionWithOutbox(ctx, nominationID,
		[]domain.NominationState{domain.StateDraft, domain.StateSubmitted},
		domain.StateApproved, liveURL, &now, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to approve nomination: %w", err)
	}
	if !ok {
		// Lost a review race; the state changed under us.
		return nil, apperrors.NewConflictError("nomination is no longer reviewable")
	}

	s.logger.Info("nomination approved",
		zap.String("nomination_id", nominationID),
		zap.String("live_url", liveURL))

	return s.repo.GetNomination(ctx, nominationID)
}

// Reject transitions a nomination to rejected. Rejection is terminal and
// triggers no external sync.
func (s *NominationService) Reject(ctx context.Context, nominationID string) (*domain.Nomination, error) {
	nomination, err := s.repo.GetNomination(ctx, nominationID)
	if err != nil {
		return nil, err
	}
	if nomination == nil {
		return nil, apperrors.NewNotFoundError("nomination not found")
	}
	if !domain.CanTransition(nomination.State, domain.StateRejected) {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("cannot reject nomination in state %q", nomination.State))
	}

	ok, err := s.repo.TransitionWithOutbox(ctx, nominationID,
		[]domain.NominationState{domain.StateDraft, domain.StateSubmitted},
		domain.StateRejected, "", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to reject nomination: %w", err)
	}
	if !ok {
		return nil, apperrors.NewConflictError("nomination is no longer reviewable")
	}

	s.logger.Info("nomination rejected", zap.String("nomination_id", nominationID))

	return s.repo.GetNomination(ctx, nominationID)
}

// Get retrieves a nomination with its nominator and nominee
func (s *NominationService) Get(ctx context.Context, nominationID string) (*domain.NominationDetail, error) {
	detail, err := s.repo.GetNominationDetail(ctx, nominationID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, apperrors.NewNotFoundError("nomination not found")
	}
	return detail, nil
}

// List lists nominations for the admin dashboard
func (s *NominationService) List(ctx context.Context, filter domain.NominationFilter) ([]*domain.Nomination, error) {
	return s.repo.ListNominations(ctx, filter)
}

// buildLiveURL assigns the public page URL for an approved nominee. The uuid
// suffix keeps slugs for identically named nominees distinct.
func (s *NominationService) buildLiveURL(nominee *domain.Nominee) string {
	return fmt.Sprintf("%s/nominees/%s-%s", s.publicSiteURL, slugify(nominee.Name), uuid.New().String()[:8])
}

// normalizeNominator canonicalizes nominator identity fields before the
// upsert. Phone normalization is best effort; an unparseable number is kept
// as entered rather than blocking the submission.
func normalizeNominator(nominator *domain.Nominator) {
	nominator.Email = domain.NormalizeEmail(nominator.Email)
	if nominator.Phone != "" {
		if normalized, err := utils.NormalizePhoneNumber(nominator.Phone); err == nil {
			nominator.Phone = normalized
		}
	}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "nominee"
	}
	return slug
}

func validateSubmission(req *domain.SubmitNominationRequest) error {
	if req == nil {
		return apperrors.NewValidationError("request body is required", nil)
	}
	if req.SubcategoryID <= 0 {
		return apperrors.NewValidationError("subcategory_id is required", nil)
	}
	if !validEmail(req.Nominator.Email) {
		return apperrors.NewValidationError("a valid nominator email is required", nil)
	}
	if strings.TrimSpace(req.Nominator.Name) == "" {
		return apperrors.NewValidationError("nominator name is required", nil)
	}
	if strings.TrimSpace(req.Nominee.Name) == "" {
		return apperrors.NewValidationError("nominee name is required", nil)
	}

	switch req.Nominee.Kind {
	case domain.NomineePerson:
		if req.Nominee.Email != "" && !validEmail(req.Nominee.Email) {
			return apperrors.NewValidationError("nominee email is not valid", nil)
		}
	case domain.NomineeCompany:
		// Website is optional; identity falls back to the company name.
	default:
		return apperrors.NewValidationError("nominee kind must be person or company", nil)
	}

	return nil
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	return at > 0 && strings.Contains(email[at:], ".") && !strings.ContainsAny(email, " \t")
}

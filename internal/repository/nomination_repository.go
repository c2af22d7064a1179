package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"awards-api/internal/domain"
	"awards-api/pkg/database"
	apperrors "awards-api/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type nominationRepository struct {
	db *database.PostgresDB
}

// NewNominationRepository creates a new nomination repository backed by
// PostgreSQL.
func NewNominationRepository(db *database.PostgresDB) NominationRepository {
	return &nominationRepository{db: db}
}

// upsertNominator inserts or updates a nominator keyed by email inside the
// caller's transaction
func upsertNominator(ctx context.Context, tx pgx.Tx, nominator *domain.Nominator) error {
	if nominator.ID == "" {
		nominator.ID = uuid.New().String()
	}
	nominator.Email = domain.NormalizeEmail(nominator.Email)

	query := `
		INSERT INTO nominators (id, email, name, company, job_title, phone, country, linkedin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			company = EXCLUDED.company,
			job_title = EXCLUDED.job_title,
			phone = EXCLUDED.phone,
			country = EXCLUDED.country,
			linkedin = EXCLUDED.linkedin,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		nominator.ID,
		nominator.Email,
		nominator.Name,
		nominator.Company,
		nominator.JobTitle,
		nominator.Phone,
		nominator.Country,
		nominator.LinkedIn,
	).Scan(&nominator.ID, &nominator.CreatedAt, &nominator.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert nominator: %w", err)
	}

	return nil
}

const nomineeColumns = `
	id, kind, name, email, job_title, employer, headshot_url, bio,
	website, industry, company_size, logo_url, linkedin, why,
	created_at, updated_at
`

func scanNominee(row pgx.Row) (*domain.Nominee, error) {
	var nominee domain.Nominee
	err := row.Scan(
		&nominee.ID,
		&nominee.Kind,
		&nominee.Name,
		&nominee.Email,
		&nominee.JobTitle,
		&nominee.Employer,
		&nominee.HeadshotURL,
		&nominee.Bio,
		&nominee.Website,
		&nominee.Industry,
		&nominee.CompanySize,
		&nominee.LogoURL,
		&nominee.LinkedIn,
		&nominee.Why,
		&nominee.CreatedAt,
		&nominee.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &nominee, nil
}

// resolveNominee inserts the nominee or, when the natural identity already
// exists, refreshes its editable content fields inside the caller's
// transaction. Identity (kind, email, website domain) is never rewritten; the
// nominee is updated in place to the stored row. The single upsert makes
// concurrent first submissions of the same nominee converge on one row.
func resolveNominee(ctx context.Context, tx pgx.Tx, nominee *domain.Nominee) error {
	if nominee.Kind == domain.NomineePerson {
		nominee.Email = domain.NormalizeEmail(nominee.Email)
	}
	if nominee.ID == "" {
		nominee.ID = uuid.New().String()
	}

	query := `
		INSERT INTO nominees (
			id, kind, name, email, job_title, employer, headshot_url, bio,
			website, industry, company_size, logo_url, linkedin, why, identity_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (kind, identity_key) DO UPDATE SET
			name = EXCLUDED.name,
			job_title = EXCLUDED.job_title,
			employer = EXCLUDED.employer,
			headshot_url = EXCLUDED.headshot_url,
			bio = EXCLUDED.bio,
			industry = EXCLUDED.industry,
			company_size = EXCLUDED.company_size,
			logo_url = EXCLUDED.logo_url,
			linkedin = EXCLUDED.linkedin,
			why = EXCLUDED.why,
			updated_at = NOW()
		RETURNING id, email, website, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		nominee.ID,
		nominee.Kind,
		nominee.Name,
		nominee.Email,
		nominee.JobTitle,
		nominee.Employer,
		nominee.HeadshotURL,
		nominee.Bio,
		nominee.Website,
		nominee.Industry,
		nominee.CompanySize,
		nominee.LogoURL,
		nominee.LinkedIn,
		nominee.Why,
		nominee.IdentityKey(),
	).Scan(&nominee.ID, &nominee.Email, &nominee.Website, &nominee.CreatedAt, &nominee.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to resolve nominee: %w", err)
	}

	return nil
}

const nominationColumns = `
	id, nominator_id, nominee_id, category_id, subcategory_id, state,
	votes, additional_votes, live_url, source, created_at, approved_at, updated_at
`

func scanNomination(row pgx.Row) (*domain.Nomination, error) {
	var n domain.Nomination
	err := row.Scan(
		&n.ID,
		&n.NominatorID,
		&n.NomineeID,
		&n.CategoryID,
		&n.SubcategoryID,
		&n.State,
		&n.Votes,
		&n.AdditionalVotes,
		&n.LiveURL,
		&n.Source,
		&n.CreatedAt,
		&n.ApprovedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// findActiveNomination retrieves the non-rejected nomination for a nominee
// within a subcategory, locking it against concurrent submissions. At most
// one exists, enforced by a partial unique index.
func findActiveNomination(ctx context.Context, tx pgx.Tx, nomineeID string, subcategoryID int) (*domain.Nomination, error) {
	query := `
		SELECT ` + nominationColumns + `
		FROM nominations
		WHERE nominee_id = $1 AND subcategory_id = $2 AND state <> 'rejected'
		FOR UPDATE
	`

	nomination, err := scanNomination(tx.QueryRow(ctx, query, nomineeID, subcategoryID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active nomination: %w", err)
	}

	return nomination, nil
}

// SubmitWithOutbox runs a full submission as one transaction so a failure at
// any step leaves no trace: no nominator upsert without its nomination, no
// nomination without its outbox entries.
func (r *nominationRepository) SubmitWithOutbox(ctx context.Context, nominator *domain.Nominator, nominee *domain.Nominee, nomination *domain.Nomination, entries []*domain.OutboxEntry, mergeExisting bool) (*domain.SubmitResult, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertNominator(ctx, tx, nominator); err != nil {
		return nil, err
	}
	if err := resolveNominee(ctx, tx, nominee); err != nil {
		return nil, err
	}

	existing, err := findActiveNomination(ctx, tx, nominee.ID, nomination.SubcategoryID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if !mergeExisting {
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("failed to commit submission transaction: %w", err)
			}
			return &domain.SubmitResult{Nomination: existing, Duplicate: true}, nil
		}

		reassign := `
			UPDATE nominations SET
				nominator_id = $2,
				state = 'submitted',
				updated_at = NOW()
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, reassign, existing.ID, nominator.ID); err != nil {
			return nil, fmt.Errorf("failed to reassign nominator: %w", err)
		}

		if err := insertOutboxEntries(ctx, tx, entries); err != nil {
			return nil, err
		}

		merged, err := scanNomination(tx.QueryRow(ctx,
			`SELECT `+nominationColumns+` FROM nominations WHERE id = $1`, existing.ID))
		if err != nil {
			return nil, fmt.Errorf("failed to reload merged nomination: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit submission transaction: %w", err)
		}
		return &domain.SubmitResult{Nomination: merged, Duplicate: true}, nil
	}

	if nomination.ID == "" {
		nomination.ID = uuid.New().String()
	}
	nomination.NominatorID = nominator.ID
	nomination.NomineeID = nominee.ID

	insert := `
		INSERT INTO nominations (
			id, nominator_id, nominee_id, category_id, subcategory_id,
			state, additional_votes, live_url, source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, insert,
		nomination.ID,
		nomination.NominatorID,
		nomination.NomineeID,
		nomination.CategoryID,
		nomination.SubcategoryID,
		nomination.State,
		nomination.AdditionalVotes,
		nomination.LiveURL,
		nomination.Source,
	).Scan(&nomination.CreatedAt, &nomination.UpdatedAt)
	if err != nil {
		// A concurrent submission can slip in between the active lookup
		// and this insert; the partial unique index catches it.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperrors.NewConflictError("nominee already has an active nomination in this subcategory")
		}
		return nil, fmt.Errorf("failed to create nomination: %w", err)
	}

	if err := insertOutboxEntries(ctx, tx, entries); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit submission transaction: %w", err)
	}

	return &domain.SubmitResult{Nomination: nomination}, nil
}

// TransitionWithOutbox moves a nomination between states. The conditional
// update on the source state makes concurrent reviews safe: only one of two
// racing transitions can win.
func (r *nominationRepository) TransitionWithOutbox(ctx context.Context, nominationID string, from []domain.NominationState, to domain.NominationState, liveURL string, approvedAt *time.Time, entries []*domain.OutboxEntry) (bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	states := make([]string, 0, len(from))
	for _, s := range from {
		states = append(states, string(s))
	}

	query := `
		UPDATE nominations SET
			state = $2,
			live_url = CASE WHEN $3 <> '' THEN $3 ELSE live_url END,
			approved_at = COALESCE($4, approved_at),
			updated_at = NOW()
		WHERE id = $1 AND state = ANY($5)
	`

	result, err := tx.Exec(ctx, query, nominationID, to, liveURL, approvedAt, states)
	if err != nil {
		return false, fmt.Errorf("failed to transition nomination: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertOutboxEntries(ctx, tx, entries); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transition transaction: %w", err)
	}

	return true, nil
}

// GetNomination retrieves a nomination by ID
func (r *nominationRepository) GetNomination(ctx context.Context, id string) (*domain.Nomination, error) {
	query := `
		SELECT ` + nominationColumns + `
		FROM nominations
		WHERE id = $1
	`

	nomination, err := scanNomination(r.db.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get nomination: %w", err)
	}

	return nomination, nil
}

// GetNominationDetail retrieves a nomination joined with its nominator and
// nominee
func (r *nominationRepository) GetNominationDetail(ctx context.Context, id string) (*domain.NominationDetail, error) {
	nomination, err := r.GetNomination(ctx, id)
	if err != nil || nomination == nil {
		return nil, err
	}

	detail := &domain.NominationDetail{Nomination: *nomination}

	nominatorQuery := `
		SELECT id, email, name, company, job_title, phone, country, linkedin, created_at, updated_at
		FROM nominators
		WHERE id = $1
	`
	var nominator domain.Nominator
	err = r.db.Pool.QueryRow(ctx, nominatorQuery, nomination.NominatorID).Scan(
		&nominator.ID,
		&nominator.Email,
		&nominator.Name,
		&nominator.Company,
		&nominator.JobTitle,
		&nominator.Phone,
		&nominator.Country,
		&nominator.LinkedIn,
		&nominator.CreatedAt,
		&nominator.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get nominator: %w", err)
	}
	detail.Nominator = &nominator

	nomineeQuery := `
		SELECT ` + nomineeColumns + `
		FROM nominees
		WHERE id = $1
	`
	nominee, err := scanNominee(r.db.Pool.QueryRow(ctx, nomineeQuery, nomination.NomineeID))
	if err != nil {
		return nil, fmt.Errorf("failed to get nominee: %w", err)
	}
	detail.Nominee = nominee

	return detail, nil
}

// ListNominations lists nominations matching a filter
func (r *nominationRepository) ListNominations(ctx context.Context, filter domain.NominationFilter) ([]*domain.Nomination, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT ` + nominationColumns + `
		FROM nominations
		WHERE ($1 = '' OR state = $1)
		  AND ($2 = 0 OR subcategory_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, string(filter.State), filter.SubcategoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list nominations: %w", err)
	}
	defer rows.Close()

	var nominations []*domain.Nomination
	for rows.Next() {
		nomination, err := scanNomination(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan nomination: %w", err)
		}
		nominations = append(nominations, nomination)
	}

	return nominations, rows.Err()
}

// SetAdditionalVotes sets the administrator vote adjustment. No ledger write
// and no outbox entry: a manual count change needs no external sync.
func (r *nominationRepository) SetAdditionalVotes(ctx context.Context, nominationID string, additionalVotes int) error {
	query := `
		UPDATE nominations SET
			additional_votes = $2,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, nominationID, additionalVotes)
	if err != nil {
		return fmt.Errorf("failed to set additional votes: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("nomination not found")
	}

	return nil
}

// insertOutboxEntries appends outbox rows inside the caller's transaction.
// Failure here rolls back the enclosing domain write: state and its
// announcement never diverge.
func insertOutboxEntries(ctx context.Context, tx pgx.Tx, entries []*domain.OutboxEntry) error {
	for _, entry := range entries {
		query := `
			INSERT INTO outbox_entries (id, event_type, target, payload, status, next_attempt_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err := tx.Exec(ctx, query,
			entry.ID,
			entry.EventType,
			entry.Target,
			entry.Payload,
			entry.Status,
			entry.NextAttemptAt,
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue outbox entry: %w", err)
		}
	}
	return nil
}

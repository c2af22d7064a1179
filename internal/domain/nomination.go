package domain

import (
	"time"
)

// NominationState is the lifecycle state of a nomination.
type NominationState string

const (
	StateDraft     NominationState = "draft"     // created via bulk import or admin, not yet reviewed
	StateSubmitted NominationState = "submitted" // awaiting admin review
	StateApproved  NominationState = "approved"  // public and votable
	StateRejected  NominationState = "rejected"  // terminal, not votable
)

// NominationSource records how a nomination entered the system.
type NominationSource string

const (
	SourcePublic     NominationSource = "public"
	SourceAdmin      NominationSource = "admin"
	SourceBulkImport NominationSource = "bulk-import"
)

// validTransitions lists the allowed state machine edges. Approved and
// rejected are terminal; re-opening requires a new nomination.
var validTransitions = map[NominationState][]NominationState{
	StateDraft:     {StateApproved, StateRejected},
	StateSubmitted: {StateApproved, StateRejected},
}

// CanTransition reports whether a nomination may move from one state to
// another.
func CanTransition(from, to NominationState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state has no outgoing transitions.
func (s NominationState) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// Nomination joins one nominator, one nominee, and a category with a
// lifecycle state. Votes holds the denormalized ledger count; AdditionalVotes
// is an administrator adjustment that is always added to, never replaces, the
// ledger count.
type Nomination struct {
	ID              string           `json:"id"`
	NominatorID     string           `json:"nominator_id"`
	NomineeID       string           `json:"nominee_id"`
	CategoryID      int              `json:"category_id"`
	SubcategoryID   int              `json:"subcategory_id"`
	State           NominationState  `json:"state"`
	Votes           int              `json:"votes"`
	AdditionalVotes int              `json:"additional_votes"`
	LiveURL         string           `json:"live_url,omitempty"`
	Source          NominationSource `json:"source"`

	CreatedAt  time.Time  `json:"created_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NominationDetail is a nomination joined with its nominator and nominee,
// used when building outbox snapshots and read responses.
type NominationDetail struct {
	Nomination
	Nominator *Nominator `json:"nominator"`
	Nominee   *Nominee   `json:"nominee"`
}

// SubmitNominationRequest is the public submission payload.
type SubmitNominationRequest struct {
	CategoryID    int       `json:"category_id"`
	SubcategoryID int       `json:"subcategory_id"`
	Nominator     Nominator `json:"nominator"`
	Nominee       Nominee   `json:"nominee"`
}

// SubmitResult reports the outcome of a submission. Duplicate is set when an
// existing non-rejected nomination for the same nominee and subcategory was
// merged instead of a new row being created.
type SubmitResult struct {
	Nomination *Nomination `json:"nomination"`
	Duplicate  bool        `json:"duplicate"`
}

// NominationFilter narrows admin listings.
type NominationFilter struct {
	State         NominationState
	SubcategoryID int
	Limit         int
}

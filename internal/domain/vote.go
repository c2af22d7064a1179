package domain

import (
	"time"
)

// Vote is an immutable ledger record. A voter may cast exactly one vote per
// subcategory, enforced by a unique (subcategory_id, voter_email) constraint.
type Vote struct {
	ID            string    `json:"id"`
	NominationID  string    `json:"nomination_id"`
	SubcategoryID int       `json:"subcategory_id"`
	VoterEmail    string    `json:"voter_email"`
	VoterName     string    `json:"voter_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// CastVoteRequest is the public vote payload.
type CastVoteRequest struct {
	NominationID  string `json:"nomination_id"`
	SubcategoryID int    `json:"subcategory_id"`
	VoterEmail    string `json:"voter_email"`
	VoterName     string `json:"voter_name"`
}

// CastVoteResponse is returned after a successful vote.
type CastVoteResponse struct {
	VoteID       string    `json:"vote_id"`
	NominationID string    `json:"nomination_id"`
	TotalVotes   int       `json:"total_votes"`
	Timestamp    time.Time `json:"timestamp"`
}

// VoteTotals is the computed tally for a nomination. Total is always
// LedgerVotes + AdditionalVotes, computed at read time and never cached.
type VoteTotals struct {
	NominationID    string `json:"nomination_id"`
	LedgerVotes     int    `json:"ledger_votes"`
	AdditionalVotes int    `json:"additional_votes"`
	Total           int    `json:"total"`
}

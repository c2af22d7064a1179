package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what a pending outbox entry announces.
type EventType string

const (
	// EventNominatorUpserted is enqueued when a nomination is submitted.
	// Only the nominator is synced at this point; the nominee stays private
	// until approval.
	EventNominatorUpserted EventType = "nominator-upserted"

	// EventNominationApproved carries the full nominee+nominator snapshot
	// and the assigned live URL.
	EventNominationApproved EventType = "nomination-approved"

	// EventNominatorLive upgrades the nominator's segment once their
	// nominee goes live. Enqueued alongside EventNominationApproved as its
	// own entry, not as a side effect of the nominee sync.
	EventNominatorLive EventType = "nominator-live"

	// EventVoteCast syncs the voter as a contact.
	EventVoteCast EventType = "vote-cast"
)

// SyncTarget names an external system an entry is destined for. One logical
// event fans out to one outbox row per target so that one platform's outage
// cannot stall or duplicate-effect another's delivery.
type SyncTarget string

const (
	TargetHubSpot   SyncTarget = "hubspot"
	TargetMailchimp SyncTarget = "mailchimp"
)

// OutboxStatus is the delivery state of an entry.
type OutboxStatus string

const (
	StatusPending    OutboxStatus = "pending"
	StatusProcessing OutboxStatus = "processing"
	StatusDone       OutboxStatus = "done"
	StatusFailed     OutboxStatus = "failed"
	StatusDead       OutboxStatus = "dead"
)

// Segment tags assigned on the external side. A tag is a pure function of
// the event type and the nomination state at capture time.
const (
	TagNominator     = "Nominator"
	TagNominatorLive = "Nominator — Live"
	TagNominee       = "Nominee"
	TagVoter         = "Voter"
)

// OutboxEntry is a durable unit of pending sync work. It is written in the
// same transaction as the domain change it announces and retained after
// completion for audit purposes.
type OutboxEntry struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"event_type"`
	Target        SyncTarget      `json:"target"`
	Payload       json.RawMessage `json:"payload"`
	Status        OutboxStatus    `json:"status"`
	AttemptCount  int             `json:"attempt_count"`
	LastError     string          `json:"last_error,omitempty"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NominatorPayload is the snapshot carried by nominator-upserted and
// nominator-live entries.
type NominatorPayload struct {
	Nominator     NominatorSnapshot `json:"nominator"`
	CategoryID    int               `json:"category_id"`
	SubcategoryID int               `json:"subcategory_id"`
}

// ApprovalPayload is the snapshot carried by nomination-approved entries.
type ApprovalPayload struct {
	NominationID  string            `json:"nomination_id"`
	Nominee       NomineeSnapshot   `json:"nominee"`
	Nominator     NominatorSnapshot `json:"nominator"`
	CategoryID    int               `json:"category_id"`
	SubcategoryID int               `json:"subcategory_id"`
	LiveURL       string            `json:"live_url"`
}

// VotePayload is the snapshot carried by vote-cast entries.
type VotePayload struct {
	NominationID  string          `json:"nomination_id"`
	VoterEmail    string          `json:"voter_email"`
	VoterName     string          `json:"voter_name"`
	SubcategoryID int             `json:"subcategory_id"`
	Nominee       NomineeSnapshot `json:"nominee"`
}

// NewOutboxEntries builds one pending entry per target for the given event.
// The payload is marshalled once at write time so dispatch never depends on
// the referenced rows still existing or being unchanged.
func NewOutboxEntries(eventType EventType, payload interface{}, targets []SyncTarget) ([]*OutboxEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	now := time.Now().UTC()
	entries := make([]*OutboxEntry, 0, len(targets))
	for _, target := range targets {
		entries = append(entries, &OutboxEntry{
			ID:            uuid.New().String(),
			EventType:     eventType,
			Target:        target,
			Payload:       raw,
			Status:        StatusPending,
			NextAttemptAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return entries, nil
}

// TargetsFor filters the enabled targets down to the ones that can key this
// event's external record. Approval syncs are addressed by the nominee's
// natural id (email for people, website domain for companies); a target the
// nominee cannot be keyed for would only ever dead-letter, so it is dropped
// at enqueue time instead.
func TargetsFor(eventType EventType, nominee *Nominee, enabled []SyncTarget) []SyncTarget {
	if eventType != EventNominationApproved {
		return enabled
	}
	targets := make([]SyncTarget, 0, len(enabled))
	for _, t := range enabled {
		if canKeyApproval(t, nominee) {
			targets = append(targets, t)
		}
	}
	return targets
}

// canKeyApproval reports whether a target has an upsert key for the nominee.
// Mailchimp members are keyed by email and it has no company API.
func canKeyApproval(target SyncTarget, nominee *Nominee) bool {
	switch target {
	case TargetMailchimp:
		return nominee.Kind == NomineePerson && nominee.Email != ""
	case TargetHubSpot:
		if nominee.Kind == NomineeCompany {
			return DomainFromWebsite(nominee.Website) != ""
		}
		return nominee.Email != ""
	default:
		return true
	}
}

// OutboxFilter narrows operator listings of outbox entries.
type OutboxFilter struct {
	Status    OutboxStatus
	EventType EventType
	Target    SyncTarget
	Limit     int
}

// OutboxStatusReport is the operator view of the outbox: counts per status
// plus the entries matching the filter.
type OutboxStatusReport struct {
	Counts  map[OutboxStatus]int64 `json:"counts"`
	Entries []*OutboxEntry         `json:"entries"`
}

// DispatchReport summarizes one dispatcher run.
type DispatchReport struct {
	Claimed int   `json:"claimed"`
	Done    int   `json:"done"`
	Retried int   `json:"retried"`
	Dead    int   `json:"dead"`
	Reaped  int64 `json:"reaped"`
}

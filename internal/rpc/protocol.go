package rpc

import (
	"encoding/json"
	"time"
)

// Operation constants for every actor operation reachable over the wire.
const (
	// Canonical event operations
	OpApplyProviderDelta  = "applyProviderDelta"
	OpGetCanonicalEvent   = "getCanonicalEvent"
	OpListCanonicalEvents = "listCanonicalEvents"
	OpQueryJournal        = "queryJournal"
	OpGetEventConflicts   = "getEventConflicts"
	OpGetEventBriefing    = "getEventBriefing"
	OpGetAccountEvents    = "getAccountEvents"

	// Constraint operations
	OpAddConstraint    = "addConstraint"
	OpUpdateConstraint = "updateConstraint"
	OpDeleteConstraint = "deleteConstraint"
	OpGetConstraint    = "getConstraint"
	OpListConstraints  = "listConstraints"

	// Availability and analytics operations
	OpComputeAvailability          = "computeAvailability"
	OpGetDeepWork                  = "getDeepWork"
	OpGetContextSwitches           = "getContextSwitches"
	OpGetCognitiveLoad             = "getCognitiveLoad"
	OpGetRiskScores                = "getRiskScores"
	OpGetProbabilisticAvailability = "getProbabilisticAvailability"

	// Relationship graph operations
	OpCreateRelationship              = "createRelationship"
	OpGetRelationship                 = "getRelationship"
	OpUpdateRelationship              = "updateRelationship"
	OpDeleteRelationship              = "deleteRelationship"
	OpListRelationships               = "listRelationships"
	OpListRelationshipsWithReputation = "listRelationshipsWithReputation"
	OpUpdateInteractions              = "updateInteractions"
	OpMarkOutcome                     = "markOutcome"
	OpListOutcomes                    = "listOutcomes"
	OpGetReputation                   = "getReputation"
	OpGetDriftReport                  = "getDriftReport"
	OpStoreDriftAlerts                = "storeDriftAlerts"
	OpGetDriftAlerts                  = "getDriftAlerts"
	OpGetReconnectionSuggestions      = "getReconnectionSuggestions"
	OpCreateMilestone                 = "createMilestone"
	OpListMilestones                  = "listMilestones"
	OpDeleteMilestone                 = "deleteMilestone"

	// Commitment operations
	OpCreateCommitment    = "createCommitment"
	OpGetCommitment       = "getCommitment"
	OpListCommitments     = "listCommitments"
	OpDeleteCommitment    = "deleteCommitment"
	OpGetCommitmentStatus = "getCommitmentStatus"
	OpCreateAllocation    = "createAllocation"

	// Mirror manager operations
	OpCreateMirror      = "createMirror"
	OpListMirrors       = "listMirrors"
	OpUpdateMirrorState = "updateMirrorState"

	// Account lifecycle operations
	OpPlanUpgrade    = "planUpgrade"
	OpExecuteUpgrade = "executeUpgrade"

	// Erasure operations (driven by the deletion workflow)
	OpDeleteAllEvents        = "deleteAllEvents"
	OpDeleteAllMirrors       = "deleteAllMirrors"
	OpDeleteJournal          = "deleteJournal"
	OpDeleteRelationshipData = "deleteRelationshipData"

	// Diagnostics
	OpGetSyncHealth = "getSyncHealth"
)

// Request is one actor operation addressed by user_id. Args holds the
// operation-specific payload; handlers decode it themselves.
type Request struct {
	Operation string          `json:"operation"`
	UserID    string          `json:"user_id"`
	Args      json.RawMessage `json:"args,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Response is the uniform reply envelope.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// IDArgs addresses a row by primary key.
type IDArgs struct {
	ID string `json:"id"`
}

// EventIDArgs addresses a canonical event.
type EventIDArgs struct {
	EventID string `json:"event_id"`
}

// AccountArgs addresses a provider account.
type AccountArgs struct {
	AccountID string `json:"account_id"`
}

// ParticipantArgs addresses a relationship by participant hash.
type ParticipantArgs struct {
	ParticipantHash string `json:"participant_hash"`
}

// WindowArgs bounds a time-window query.
type WindowArgs struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DeepWorkArgs parameterizes a deep-work scan.
type DeepWorkArgs struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	MinBlockMinutes int       `json:"min_block_minutes,omitempty"`
}

// SlotArgs parameterizes a probabilistic availability scan.
type SlotArgs struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	SlotMinutes int       `json:"slot_minutes,omitempty"`
}

// ListConstraintsArgs optionally narrows by kind.
type ListConstraintsArgs struct {
	Kind string `json:"kind,omitempty"`
}

// UpdateInteractionsArgs bumps last-interaction timestamps for a set of
// participants.
type UpdateInteractionsArgs struct {
	ParticipantHashes []string  `json:"participant_hashes"`
	TS                time.Time `json:"ts"`
}

// ReconnectArgs drives a reconnection-suggestion query. Either City or
// TripConstraintID must be set.
type ReconnectArgs struct {
	City             string `json:"city,omitempty"`
	TripConstraintID string `json:"trip_constraint_id,omitempty"`
	UserTZ           string `json:"user_tz,omitempty"`
}

// CommitmentStatusArgs evaluates a commitment as of a reference time.
// A zero AsOf means now.
type CommitmentStatusArgs struct {
	CommitmentID string    `json:"commitment_id"`
	AsOf         time.Time `json:"as_of"`
}

// PlanUpgradeArgs partitions an ICS feed's events against the OAuth
// account replacing it, without mutating anything.
type PlanUpgradeArgs struct {
	ICSAccountID   string `json:"ics_account_id"`
	OAuthAccountID string `json:"oauth_account_id"`
}

// MirrorStateArgs advances one mirror's lifecycle.
type MirrorStateArgs struct {
	MirrorID string `json:"mirror_id"`
	State    string `json:"state"`
}

// CountResult reports rows affected by a bulk erasure operation.
type CountResult struct {
	Deleted int `json:"deleted"`
}

func successResponse(data any) *Response {
	raw, err := json.Marshal(data)
	if err != nil {
		return errorResponse("marshal response: " + err.Error())
	}
	return &Response{Success: true, Data: raw}
}

func errorResponse(msg string) *Response {
	return &Response{Success: false, Error: msg}
}

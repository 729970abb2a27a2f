package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RamXX/tminus-sub002/internal/availability"
	"github.com/RamXX/tminus-sub002/internal/engine"
	"github.com/RamXX/tminus-sub002/internal/storage"
	"github.com/RamXX/tminus-sub002/internal/types"
	"github.com/RamXX/tminus-sub002/internal/upgrade"
)

const (
	defaultDeepWorkBlockMinutes = 60
	defaultSlotMinutes          = 30
)

// HandlerFunc executes one operation against a user's engine.
type HandlerFunc func(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error)

// Server dispatches requests to the actor fleet.
type Server struct {
	fleet    *Fleet
	handlers map[string]HandlerFunc
}

// NewServer creates an RPC server over a fleet.
func NewServer(fleet *Fleet) *Server {
	s := &Server{fleet: fleet}
	s.registerHandlers()
	return s
}

// Fleet returns the underlying actor fleet.
func (s *Server) Fleet() *Fleet { return s.fleet }

// HasOperation reports whether op is a registered operation.
func (s *Server) HasOperation(op string) bool {
	_, ok := s.handlers[op]
	return ok
}

// HandleRequest routes one request to its operation handler, serialized
// on the target user's actor.
func (s *Server) HandleRequest(ctx context.Context, req *Request) *Response {
	handler, ok := s.handlers[req.Operation]
	if !ok {
		return errorResponse(fmt.Sprintf("unknown operation: %s", req.Operation))
	}
	if req.UserID == "" {
		return errorResponse("user_id is required")
	}

	var result any
	err := s.fleet.Do(ctx, req.UserID, func(e *engine.Engine) error {
		var herr error
		result, herr = handler(ctx, e, req.Args)
		return herr
	})
	if err != nil {
		return errorResponse(err.Error())
	}
	return successResponse(result)
}

func decode[T any](args json.RawMessage) (*T, error) {
	v := new(T)
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	return v, nil
}

func (s *Server) registerHandlers() {
	s.handlers = map[string]HandlerFunc{
		OpApplyProviderDelta:  handleApplyProviderDelta,
		OpGetCanonicalEvent:   handleGetCanonicalEvent,
		OpListCanonicalEvents: handleListCanonicalEvents,
		OpQueryJournal:        handleQueryJournal,
		OpGetEventConflicts:   handleGetEventConflicts,
		OpGetEventBriefing:    handleGetEventBriefing,
		OpGetAccountEvents:    handleGetAccountEvents,

		OpAddConstraint:    handleAddConstraint,
		OpUpdateConstraint: handleUpdateConstraint,
		OpDeleteConstraint: handleDeleteConstraint,
		OpGetConstraint:    handleGetConstraint,
		OpListConstraints:  handleListConstraints,

		OpComputeAvailability:          handleComputeAvailability,
		OpGetDeepWork:                  handleGetDeepWork,
		OpGetContextSwitches:           handleGetContextSwitches,
		OpGetCognitiveLoad:             handleGetCognitiveLoad,
		OpGetRiskScores:                handleGetRiskScores,
		OpGetProbabilisticAvailability: handleGetProbabilisticAvailability,

		OpCreateRelationship:              handleCreateRelationship,
		OpGetRelationship:                 handleGetRelationship,
		OpUpdateRelationship:              handleUpdateRelationship,
		OpDeleteRelationship:              handleDeleteRelationship,
		OpListRelationships:               handleListRelationships,
		OpListRelationshipsWithReputation: handleListRelationshipsWithReputation,
		OpUpdateInteractions:              handleUpdateInteractions,
		OpMarkOutcome:                     handleMarkOutcome,
		OpListOutcomes:                    handleListOutcomes,
		OpGetReputation:                   handleGetReputation,
		OpGetDriftReport:                  handleGetDriftReport,
		OpStoreDriftAlerts:                handleStoreDriftAlerts,
		OpGetDriftAlerts:                  handleGetDriftAlerts,
		OpGetReconnectionSuggestions:      handleGetReconnectionSuggestions,
		OpCreateMilestone:                 handleCreateMilestone,
		OpListMilestones:                  handleListMilestones,
		OpDeleteMilestone:                 handleDeleteMilestone,

		OpCreateCommitment:    handleCreateCommitment,
		OpGetCommitment:       handleGetCommitment,
		OpListCommitments:     handleListCommitments,
		OpDeleteCommitment:    handleDeleteCommitment,
		OpGetCommitmentStatus: handleGetCommitmentStatus,
		OpCreateAllocation:    handleCreateAllocation,

		OpCreateMirror:      handleCreateMirror,
		OpListMirrors:       handleListMirrors,
		OpUpdateMirrorState: handleUpdateMirrorState,

		OpPlanUpgrade:    handlePlanUpgrade,
		OpExecuteUpgrade: handleExecuteUpgrade,

		OpDeleteAllEvents:        handleDeleteAllEvents,
		OpDeleteAllMirrors:       handleDeleteAllMirrors,
		OpDeleteJournal:          handleDeleteJournal,
		OpDeleteRelationshipData: handleDeleteRelationshipData,

		OpGetSyncHealth: handleGetSyncHealth,
	}
}

func handleApplyProviderDelta(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	delta, err := decode[types.ProviderDelta](args)
	if err != nil {
		return nil, err
	}
	return e.ApplyProviderDelta(ctx, delta)
}

func handleGetCanonicalEvent(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[EventIDArgs](args)
	if err != nil {
		return nil, err
	}
	return e.GetEvent(ctx, a.EventID)
}

func handleListCanonicalEvents(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	filter, err := decode[storage.EventFilter](args)
	if err != nil {
		return nil, err
	}
	return e.ListEvents(ctx, *filter)
}

func handleQueryJournal(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	filter, err := decode[types.JournalFilter](args)
	if err != nil {
		return nil, err
	}
	return e.QueryJournal(ctx, *filter)
}

func handleGetEventConflicts(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[EventIDArgs](args)
	if err != nil {
		return nil, err
	}
	return e.GetEventConflicts(ctx, a.EventID)
}

func handleGetEventBriefing(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[EventIDArgs](args)
	if err != nil {
		return nil, err
	}
	return e.GetEventBriefing(ctx, a.EventID)
}

func handleGetAccountEvents(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[AccountArgs](args)
	if err != nil {
		return nil, err
	}
	return e.ListAccountEvents(ctx, a.AccountID)
}

func handleAddConstraint(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	c, err := decode[types.Constraint](args)
	if err != nil {
		return nil, err
	}
	if err := e.AddConstraint(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func handleUpdateConstraint(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	c, err := decode[types.Constraint](args)
	if err != nil {
		return nil, err
	}
	if err := e.UpdateConstraint(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func handleDeleteConstraint(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[IDArgs](args)
	if err != nil {
		return nil, err
	}
	if err := e.DeleteConstraint(ctx, a.ID); err != nil {
		return nil, err
	}
	return map[string]string{"id": a.ID}, nil
}

func handleGetConstraint(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[IDArgs](args)
	if err != nil {
		return nil, err
	}
	return e.GetConstraint(ctx, a.ID)
}

func handleListConstraints(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[ListConstraintsArgs](args)
	if err != nil {
		return nil, err
	}
	return e.ListConstraints(ctx, types.ConstraintKind(a.Kind))
}

func handleComputeAvailability(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	req, err := decode[availability.Request](args)
	if err != nil {
		return nil, err
	}
	return e.ComputeAvailability(ctx, *req)
}

func handleGetDeepWork(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[DeepWorkArgs](args)
	if err != nil {
		return nil, err
	}
	if a.MinBlockMinutes <= 0 {
		a.MinBlockMinutes = defaultDeepWorkBlockMinutes
	}
	return e.DeepWork(ctx, a.Start, a.End, a.MinBlockMinutes)
}

func handleGetContextSwitches(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[WindowArgs](args)
	if err != nil {
		return nil, err
	}
	return e.ContextSwitches(ctx, a.Start, a.End)
}

func handleGetCognitiveLoad(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[WindowArgs](args)
	if err != nil {
		return nil, err
	}
	return e.CognitiveLoad(ctx, a.Start, a.End)
}

func handleGetRiskScores(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	return e.RiskScores(ctx)
}

func handleGetProbabilisticAvailability(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[SlotArgs](args)
	if err != nil {
		return nil, err
	}
	if a.SlotMinutes <= 0 {
		a.SlotMinutes = defaultSlotMinutes
	}
	return e.ProbabilisticAvailability(ctx, a.Start, a.End, time.Duration(a.SlotMinutes)*time.Minute)
}

func handleCreateRelationship(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	r, err := decode[types.Relationship](args)
	if err != nil {
		return nil, err
	}
	if err := e.CreateRelationship(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func handleGetRelationship(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[IDArgs](args)
	if err != nil {
		return nil, err
	}
	return e.GetRelationship(ctx, a.ID)
}

func handleUpdateRelationship(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	r, err := decode[types.Relationship](args)
	if err != nil {
		return nil, err
	}
	if err := e.UpdateRelationship(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func handleDeleteRelationship(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[IDArgs](args)
	if err != nil {
		return nil, err
	}
	if err := e.DeleteRelationship(ctx, a.ID); err != nil {
		return nil, err
	}
	return map[string]string{"id": a.ID}, nil
}

func handleListRelationships(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	return e.ListRelationships(ctx)
}

func handleListRelationshipsWithReputation(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	return e.ListRelationshipsWithReputation(ctx)
}

func handleUpdateInteractions(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[UpdateInteractionsArgs](args)
	if err != nil {
		return nil, err
	}
	n, err := e.UpdateInteractions(ctx, a.ParticipantHashes, a.TS)
	if err != nil {
		return nil, err
	}
	return map[string]int{"updated": n}, nil
}

func handleMarkOutcome(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	entry, err := decode[types.LedgerEntry](args)
	if err != nil {
		return nil, err
	}
	if err := e.MarkOutcome(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func handleListOutcomes(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[ParticipantArgs](args)
	if err != nil {
		return nil, err
	}
	return e.ListOutcomes(ctx, a.ParticipantHash)
}

func handleGetReputation(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[ParticipantArgs](args)
	if err != nil {
		return nil, err
	}
	return e.GetReputation(ctx, a.ParticipantHash)
}

func handleGetDriftReport(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	return e.DriftReport(ctx)
}

func handleStoreDriftAlerts(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	n, err := e.StoreDriftAlerts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]int{"stored": n}, nil
}

func handleGetDriftAlerts(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	return e.GetDriftAlerts(ctx)
}

func handleGetReconnectionSuggestions(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[ReconnectArgs](args)
	if err != nil {
		return nil, err
	}
	return e.ReconnectionSuggestions(ctx, a.City, a.TripConstraintID, a.UserTZ)
}

func handleCreateMilestone(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	m, err := decode[types.Milestone](args)
	if err != nil {
		return nil, err
	}
	if err := e.CreateMilestone(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func handleListMilestones(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[ParticipantArgs](args)
	if err != nil {
		return nil, err
	}
	return e.ListMilestones(ctx, a.ParticipantHash)
}

func handleDeleteMilestone(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[IDArgs](args)
	if err != nil {
		return nil, err
	}
	if err := e.DeleteMilestone(ctx, a.ID); err != nil {
		return nil, err
	}
	return map[string]string{"id": a.ID}, nil
}

func handleCreateCommitment(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	c, err := decode[types.Commitment](args)
	if err != nil {
		return nil, err
	}
	if err := e.CreateCommitment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func handleGetCommitment(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[IDArgs](args)
	if err != nil {
		return nil, err
	}
	return e.GetCommitment(ctx, a.ID)
}

func handleListCommitments(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	return e.ListCommitments(ctx)
}

func handleDeleteCommitment(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[IDArgs](args)
	if err != nil {
		return nil, err
	}
	if err := e.DeleteCommitment(ctx, a.ID); err != nil {
		return nil, err
	}
	return map[string]string{"id": a.ID}, nil
}

func handleGetCommitmentStatus(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[CommitmentStatusArgs](args)
	if err != nil {
		return nil, err
	}
	asOf := a.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return e.CommitmentStatus(ctx, a.CommitmentID, asOf)
}

func handleCreateAllocation(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	alloc, err := decode[types.Allocation](args)
	if err != nil {
		return nil, err
	}
	if err := e.CreateAllocation(ctx, alloc); err != nil {
		return nil, err
	}
	return alloc, nil
}

func handleCreateMirror(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	m, err := decode[types.Mirror](args)
	if err != nil {
		return nil, err
	}
	if err := e.CreateMirror(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func handleListMirrors(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[EventIDArgs](args)
	if err != nil {
		return nil, err
	}
	return e.ListMirrors(ctx, a.EventID)
}

func handleUpdateMirrorState(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[MirrorStateArgs](args)
	if err != nil {
		return nil, err
	}
	if err := e.SetMirrorState(ctx, a.MirrorID, types.MirrorState(a.State)); err != nil {
		return nil, err
	}
	return map[string]string{"mirror_id": a.MirrorID, "state": a.State}, nil
}

func handlePlanUpgrade(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	a, err := decode[PlanUpgradeArgs](args)
	if err != nil {
		return nil, err
	}
	if a.ICSAccountID == "" || a.OAuthAccountID == "" {
		return nil, fmt.Errorf("ics_account_id and oauth_account_id are required")
	}
	icsEvents, err := e.ListAccountEvents(ctx, a.ICSAccountID)
	if err != nil {
		return nil, err
	}
	oauthEvents, err := e.ListAccountEvents(ctx, a.OAuthAccountID)
	if err != nil {
		return nil, err
	}
	return upgrade.Plan(a.ICSAccountID, a.OAuthAccountID, icsEvents, oauthEvents), nil
}

func handleExecuteUpgrade(ctx context.Context, e *engine.Engine, args json.RawMessage) (any, error) {
	req, err := decode[engine.UpgradeRequest](args)
	if err != nil {
		return nil, err
	}
	return e.ExecuteUpgrade(ctx, req)
}

func handleDeleteAllEvents(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	n, err := e.Store().DeleteAllEvents(ctx)
	if err != nil {
		return nil, err
	}
	return CountResult{Deleted: n}, nil
}

func handleDeleteAllMirrors(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	n, err := e.Store().DeleteAllMirrors(ctx)
	if err != nil {
		return nil, err
	}
	return CountResult{Deleted: n}, nil
}

func handleDeleteJournal(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	n, err := e.Store().DeleteAllJournal(ctx)
	if err != nil {
		return nil, err
	}
	return CountResult{Deleted: n}, nil
}

func handleDeleteRelationshipData(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	n, err := e.Store().DeleteRelationshipData(ctx)
	if err != nil {
		return nil, err
	}
	return CountResult{Deleted: n}, nil
}

func handleGetSyncHealth(ctx context.Context, e *engine.Engine, _ json.RawMessage) (any, error) {
	return e.SyncHealth(ctx)
}

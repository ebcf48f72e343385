// Package resolver decides what happens when a pulled remote record meets
// local state. The policy is last-write-wins with a manual escape hatch: a
// remote version is applied unless the local copy has unpushed edits and is
// strictly newer, in which case the pair is surfaced as a conflict for the
// user to settle.
package resolver

import (
	"log/slog"

	"github.com/leafwise/leafwise-sync/internal/domain"
)

// Action is the outcome of evaluating one remote record against local state.
type Action int

const (
	// ActionApplyRemote means the remote version overwrites local state.
	ActionApplyRemote Action = iota
	// ActionConflict means local and remote diverged and a user decision is
	// required. The local record is left untouched.
	ActionConflict
)

// Decision pairs an action with the conflict classification when the action
// is ActionConflict.
type Decision struct {
	Action Action
	Kind   domain.ConflictKind
}

// Resolver evaluates pulled records against their local counterparts.
type Resolver struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{logger: logger.With("component", "resolver")}
}

// Evaluate decides how to reconcile a remote record with the local copy.
// local is nil when the record is unknown locally.
//
// The remote version applies when there is no local copy, when the local copy
// is clean, or when the local copy is dirty but not newer than the remote
// one. A tie in timestamps goes to the remote side so two devices that wrote
// the same instant converge on the server's copy.
func (r *Resolver) Evaluate(table domain.Table, local, remote *domain.Record) Decision {
	if local == nil || !local.SyncStatus.IsDirty() {
		return Decision{Action: ActionApplyRemote}
	}

	if !local.UpdatedAt.After(remote.UpdatedAt) {
		r.logger.Debug("remote version wins",
			"table", table,
			"record_id", local.ID,
			"local_updated_at", local.UpdatedAt,
			"remote_updated_at", remote.UpdatedAt,
		)
		return Decision{Action: ActionApplyRemote}
	}

	kind := domain.ConflictKindUpdate
	if remote.IsDeleted() {
		kind = domain.ConflictKindDelete
	}

	r.logger.Info("conflict detected",
		"table", table,
		"record_id", local.ID,
		"kind", kind,
		"local_status", local.SyncStatus,
		"local_updated_at", local.UpdatedAt,
		"remote_updated_at", remote.UpdatedAt,
	)
	return Decision{Action: ActionConflict, Kind: kind}
}

// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines lifecycle hooks: a closed set of stages with typed
// listener lists and explicit veto semantics.
package core

// Stage identifies a point in an entity's persistence lifecycle.
//
// The set is closed; listeners register against a concrete stage rather
// than a free-form string, so a typo cannot silently register a hook that
// never fires.
type Stage int

const (
	StageBooting Stage = iota
	StageBooted
	StageSaving
	StageSaved
	StageCreating
	StageCreated
	StageUpdating
	StageUpdated
	StageDeleting
	StageDeleted
	StageRestoring
	StageRestored
	StageRetrieved
)

var stageNames = map[Stage]string{
	StageBooting:   "booting",
	StageBooted:    "booted",
	StageSaving:    "saving",
	StageSaved:     "saved",
	StageCreating:  "creating",
	StageCreated:   "created",
	StageUpdating:  "updating",
	StageUpdated:   "updated",
	StageDeleting:  "deleting",
	StageDeleted:   "deleted",
	StageRestoring: "restoring",
	StageRestored:  "restored",
	StageRetrieved: "retrieved",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// HookOutcome is the tri-state result of a lifecycle listener.
//
// Proceed continues the operation; Abort cancels it cleanly (the caller
// receives a HookCancelledError and prior state is untouched); a listener
// that fails returns Fail alongside a non-nil error.
type HookOutcome int

const (
	Proceed HookOutcome = iota
	Abort
	Fail
)

// Hook is a lifecycle listener. It receives the entity the operation is
// acting on and reports whether the operation may continue.
type Hook func(e *Entity) (HookOutcome, error)

// hookSet stores the listeners per stage for one entity definition.
type hookSet map[Stage][]Hook

// run dispatches every listener for stage in registration order.
//
// The first Abort or Fail wins; later listeners for the stage do not run.
func (h hookSet) run(stage Stage, e *Entity) error {
	for _, hook := range h[stage] {
		outcome, err := hook(e)
		switch outcome {
		case Proceed:
			continue
		case Abort:
			return &HookCancelledError{Stage: stage}
		case Fail:
			if err == nil {
				err = &HookCancelledError{Stage: stage}
			}
			return err
		}
	}
	return nil
}

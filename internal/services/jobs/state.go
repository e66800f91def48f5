package jobs

import (
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// transitions lists the states reachable from each state.
var transitions = map[models.JobState][]models.JobState{
	models.JobStateQueued:  {models.JobStateRunning, models.JobStateFailed, models.JobStateCancelled},
	models.JobStateRunning: {models.JobStatePaused, models.JobStateCompleted, models.JobStateFailed, models.JobStateCancelled},
	models.JobStatePaused:  {models.JobStateRunning, models.JobStateCancelled},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to models.JobState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Action is an operator request on a job.
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

// external lists the states each operator action may be applied from.
var external = map[Action]struct {
	from []models.JobState
	to   models.JobState
}{
	ActionPause:  {from: []models.JobState{models.JobStateRunning}, to: models.JobStatePaused},
	ActionResume: {from: []models.JobState{models.JobStatePaused}, to: models.JobStateRunning},
	ActionCancel: {from: []models.JobState{models.JobStateRunning, models.JobStatePaused}, to: models.JobStateCancelled},
}

// Apply returns the state an operator action leads to, or InvalidStateTransition.
func Apply(action Action, from models.JobState) (models.JobState, error) {
	rule, ok := external[action]
	if !ok {
		return from, interfaces.NewInvalidStateTransition("unknown action %q", action)
	}
	for _, s := range rule.from {
		if s == from {
			return rule.to, nil
		}
	}
	return from, interfaces.NewInvalidStateTransition("cannot %s a %s job", action, from)
}

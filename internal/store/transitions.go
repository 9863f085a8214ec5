package store

import "omnitoken/clinic-service/internal/models"

const (
	ActionCall              = "call"
	ActionRecall            = "recall"
	ActionStartConsultation = "start_consultation"
	ActionComplete          = "complete"
	ActionCancel            = "cancel"
	ActionNoShow            = "no_show"
)

var transitionMap = map[string][]string{
	ActionCall:              {models.StatusWaiting},
	ActionRecall:            {models.StatusCalling},
	ActionStartConsultation: {models.StatusCalling},
	ActionComplete:          {models.StatusConsulting},
	ActionCancel:            {models.StatusWaiting, models.StatusCalling, models.StatusConsulting},
	ActionNoShow:            {models.StatusCalling},
}

var actionTargets = map[string]string{
	ActionCall:              models.StatusCalling,
	ActionRecall:            models.StatusCalling,
	ActionStartConsultation: models.StatusConsulting,
	ActionComplete:          models.StatusCompleted,
	ActionCancel:            models.StatusCancelled,
	ActionNoShow:            models.StatusNoShow,
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// TargetStatus returns the status a token holds after the action.
func TargetStatus(action string) (string, bool) {
	status, ok := actionTargets[action]
	return status, ok
}

// ActionFor resolves an explicit status change into the action that performs it.
func ActionFor(fromStatus, toStatus string) (string, bool) {
	switch toStatus {
	case models.StatusCalling:
		if fromStatus == models.StatusCalling {
			return ActionRecall, true
		}
		return ActionCall, true
	case models.StatusConsulting:
		return ActionStartConsultation, true
	case models.StatusCompleted:
		return ActionComplete, true
	case models.StatusCancelled:
		return ActionCancel, true
	case models.StatusNoShow:
		return ActionNoShow, true
	default:
		return "", false
	}
}

package jobcards

// transitions is the single source of truth for the repair workflow.
// Nothing else in the system sets a job status.
var transitions = map[Status][]Status{
	StatusReceived:         {StatusDiagnosis},
	StatusDiagnosis:        {StatusEstimateShared},
	StatusEstimateShared:   {StatusApproved, StatusRejected},
	StatusApproved:         {StatusWaitingForParts, StatusRepairInProgress},
	StatusWaitingForParts:  {StatusRepairInProgress},
	StatusRepairInProgress: {StatusWaitingForParts, StatusReadyForDelivery},
	StatusReadyForDelivery: {StatusDelivered, StatusRepairInProgress},
	StatusDelivered:        nil,
	StatusCancelled:        nil,
	StatusRejected:         nil,
}

// ValidStatus reports whether s is a known workflow state.
func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// TerminalStatus reports whether s accepts no further transitions.
func TerminalStatus(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRejected
}

// CanTransition reports whether from allows a direct move to to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the targets reachable from s without an override.
func AllowedTargets(s Status) []Status {
	allowed := transitions[s]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

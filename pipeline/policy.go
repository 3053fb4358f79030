package pipeline

// Dependency names every external collaborator whose failure the pipeline
// must survive.
type Dependency string

const (
	DepRateLimiter      Dependency = "rate_limiter"
	DepSessionValidator Dependency = "session_validator"
	DepChatDataStore    Dependency = "chat_data_store"
	DepBroadcastFabric  Dependency = "broadcast_fabric"
)

// Action is what the pipeline does when the dependency fails.
type Action string

const (
	// ActionAllow grants the request with the full quota (fail-open).
	ActionAllow Action = "allow"
	// ActionProceed logs and counts the anomaly, then keeps going (soft-fail).
	ActionProceed Action = "proceed"
	// ActionFallback substitutes an operation-specific zero value.
	ActionFallback Action = "fallback_value"
	// ActionLocalOnly degrades fan-out to the local instance.
	ActionLocalOnly Action = "local_only"
)

// FailurePolicy is the per-dependency failure table, kept in one place so
// the soft-fail and fail-open branches stay auditable and testable in
// isolation instead of being scattered through the call sites.
type FailurePolicy map[Dependency]Action

func DefaultFailurePolicy() FailurePolicy {
	return FailurePolicy{
		DepRateLimiter:      ActionAllow,
		DepSessionValidator: ActionProceed,
		DepChatDataStore:    ActionFallback,
		DepBroadcastFabric:  ActionLocalOnly,
	}
}

// OnFailure defaults to proceed for unknown dependencies: degraded
// functionality, never a crash.
func (p FailurePolicy) OnFailure(dep Dependency) Action {
	action, ok := p[dep]
	if !ok {
		return ActionProceed
	}
	return action
}

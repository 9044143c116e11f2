package types

type IntentType string

const (
	IntentGovernance IntentType = "GOVERNANCE_REQUEST"
	IntentDebug      IntentType = "DEBUG_REQUEST"
	IntentStatus     IntentType = "STATUS_REQUEST"
	IntentDecision   IntentType = "DECISION_REQUEST"
	IntentPlan       IntentType = "PLAN_REQUEST"
	IntentExecution  IntentType = "EXECUTION_REQUEST"
	IntentInfo       IntentType = "INFO_REQUEST"
	IntentUnknown    IntentType = "UNKNOWN"
)

func (i IntentType) Valid() bool {
	switch i {
	case IntentGovernance, IntentDebug, IntentStatus, IntentDecision,
		IntentPlan, IntentExecution, IntentInfo, IntentUnknown:
		return true
	default:
		return false
	}
}

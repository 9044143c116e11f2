package types

type Direction string

const (
	DirectionApprove Direction = "APPROVE"
	DirectionRevise  Direction = "REVISE"
	DirectionReject  Direction = "REJECT"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionApprove, DirectionRevise, DirectionReject:
		return true
	default:
		return false
	}
}

type MindName string

const (
	MindCompliance MindName = "COMPLIANCE"
	MindRisk       MindName = "RISK"
	MindOperations MindName = "OPERATIONS"
	MindEvidence   MindName = "EVIDENCE"
	MindEfficiency MindName = "EFFICIENCY"
)

type RiskTag string

const (
	RiskSafety      RiskTag = "SAFETY"
	RiskLegal       RiskTag = "LEGAL"
	RiskPrivacy     RiskTag = "PRIVACY"
	RiskSecurity    RiskTag = "SECURITY"
	RiskFinancial   RiskTag = "FINANCIAL"
	RiskReputation  RiskTag = "REPUTATION"
	RiskOperational RiskTag = "OPERATIONAL"

	// Retry-evaluation tags raised by the failure minds.
	RiskBlocked   RiskTag = "BLOCKED"
	RiskCritical  RiskTag = "CRITICAL"
	RiskTransient RiskTag = "TRANSIENT"
	RiskRetry     RiskTag = "RETRY"
)

type Signal string

const (
	SignalMissingInfo              Signal = "MISSING_INFO"
	SignalContradiction            Signal = "CONTRADICTION"
	SignalHighImpact               Signal = "HIGH_IMPACT"
	SignalReversible               Signal = "REVERSIBLE"
	SignalIrreversible             Signal = "IRREVERSIBLE"
	SignalTimeSensitive            Signal = "TIME_SENSITIVE"
	SignalUserConfirmationRequired Signal = "USER_CONFIRMATION_REQUIRED"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

type MindVote struct {
	Mind      MindName  `json:"mind"`
	Direction Direction `json:"direction"`
	Score     int       `json:"score"`
	Risk      int       `json:"risk"`
	RiskTags  []RiskTag `json:"risk_tags"`
	Signals   []Signal  `json:"signals"`
	Reasons   []string  `json:"reasons"`
	NextSteps []string  `json:"next_steps"`
	Evidence  []string  `json:"evidence"`
}

// HasRiskTag reports whether the vote carries tag.
func (v MindVote) HasRiskTag(tag RiskTag) bool {
	for _, t := range v.RiskTags {
		if t == tag {
			return true
		}
	}
	return false
}

type Consensus struct {
	Approvals    int `json:"approvals"`
	Revises      int `json:"revises"`
	Rejects      int `json:"rejects"`
	Total        int `json:"total"`
	AgreementPct int `json:"agreement_pct"`
	Margin       int `json:"margin"`
}

type ParliamentAggregate struct {
	Direction         Direction  `json:"direction"`
	Score             int        `json:"score"`
	Risk              int        `json:"risk"`
	Confidence        Confidence `json:"confidence"`
	Consensus         Consensus  `json:"consensus"`
	TopReasons        []string   `json:"top_reasons"`
	RequiredNextSteps []string   `json:"required_next_steps"`
	RiskTags          []RiskTag  `json:"risk_tags"`
	Signals           []Signal   `json:"signals"`
}

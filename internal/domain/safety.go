package domain

import "time"

// IdempotencyOperation names the family of operation a key was reserved for.
type IdempotencyOperation string

const (
	OpTradeGeneration       IdempotencyOperation = "trade_generation"
	OpTradeExecution        IdempotencyOperation = "trade_execution"
	OpPortfolioReconciliation IdempotencyOperation = "portfolio_reconciliation"
	OpStrategyIngestion     IdempotencyOperation = "strategy_ingestion"
)

// IdempotencyState is the persistent state-machine state of a reservation.
type IdempotencyState string

const (
	IdemPending   IdempotencyState = "pending"
	IdemStarted   IdempotencyState = "started"
	IdemConfirmed IdempotencyState = "confirmed"
	IdemFailed    IdempotencyState = "failed"
	IdemCancelled IdempotencyState = "cancelled"
	IdemExpired   IdempotencyState = "expired"
)

// IdempotencyRecord is the tamper-evident persistent record behind every
// idempotency key.
type IdempotencyRecord struct {
	IdemKey   string
	Operation IdempotencyOperation
	UserID    string
	State     IdempotencyState

	TradeID     string
	TxSignature string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	OperationData map[string]any
	ResultData    map[string]any
	Error         string

	Checksum string
}

// AuditSeverity ranks how serious an audit event is.
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityError    AuditSeverity = "error"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry is one row of the append-only, hash-chained audit log.
type AuditEntry struct {
	EntryID   string
	Timestamp time.Time
	EventType string
	Severity  AuditSeverity

	UserID       string
	Wallet       string
	TraderWallet string

	EventData          map[string]any
	DecisionRationale  string
	RiskAssessment     map[string]any
	TradeDetails       map[string]any
	TxSignature        string
	Error              string
	SystemState        map[string]any

	CalculationInputs  map[string]any
	CalculationOutputs map[string]any
	DecisionFactors    map[string]any
	ValidationResults  map[string]any
	PerformanceMetrics map[string]any
	ContextSnapshot    map[string]any
	CorrelationID      string

	EntryHash         string
	PreviousEntryHash string
}

// ConfirmationRequirement pins the number of confirmations / max wait /
// finalization requirement derived from a trade's USD value (§4.16).
type ConfirmationRequirement struct {
	MinConfirmations    int
	MaxWaitSeconds      int
	RequireFinalization bool
}

// RequirementForUSD returns the confirmation requirement bucket for a trade
// of the given USD value.
func RequirementForUSD(usd float64) ConfirmationRequirement {
	switch {
	case usd >= 10000:
		return ConfirmationRequirement{MinConfirmations: 3, MaxWaitSeconds: 300, RequireFinalization: true}
	case usd >= 1000:
		return ConfirmationRequirement{MinConfirmations: 2, MaxWaitSeconds: 180}
	case usd >= 100:
		return ConfirmationRequirement{MinConfirmations: 1, MaxWaitSeconds: 120}
	default:
		return ConfirmationRequirement{MinConfirmations: 1, MaxWaitSeconds: 60}
	}
}

// TxMonitorState is the lifecycle state of a submitted transaction.
type TxMonitorState string

const (
	TxSubmitted  TxMonitorState = "submitted"
	TxPending    TxMonitorState = "pending"
	TxConfirmed  TxMonitorState = "confirmed"
	TxFinalized  TxMonitorState = "finalized"
	TxFailed     TxMonitorState = "failed"
	TxStuck      TxMonitorState = "stuck"
	TxReplaced   TxMonitorState = "replaced"
	TxDropped    TxMonitorState = "dropped"
	TxTimeout    TxMonitorState = "timeout"
)

// TransactionMonitor tracks a single submitted transaction through
// confirmation.
type TransactionMonitor struct {
	TradeID     string
	TxSignature string
	SubmittedAt time.Time
	State       TxMonitorState

	Confirmations int
	BlockHeight   uint64
	Finalized     bool

	Requirement ConfirmationRequirement

	ErrorCount   int
	RetryCount   int
	NextRetryAt  *time.Time
}

// BreakerState is the state-machine state of a circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig parameterizes a single circuit breaker instance.
type BreakerConfig struct {
	FailureThreshold         int
	TimeWindow               time.Duration
	ConsecutiveFailureLimit  int
	RecoveryTimeout          time.Duration
	TestRequestLimit         int
	RecoverySuccessThreshold int
	PercentageThreshold      *float64
	Priority                 int
}

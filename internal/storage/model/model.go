// Package model holds the persisted row shapes for the gateway's durable
// tables (spec §3 Data Model, §6 External Interfaces). Packages that need to
// persist or query gateway state depend on this package and on storage's
// store interfaces; model itself has no behavior beyond small invariants.
package model

import "time"

// TransportKind identifies a ServerConfig's backend transport.
type TransportKind string

const (
	TransportStdio     TransportKind = "stdio"
	TransportSSE       TransportKind = "sse"
	TransportHTTP      TransportKind = "http"
	TransportWebSocket TransportKind = "websocket"
)

// AuthKind identifies a ServerConfig's backend auth descriptor.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthAPIKey AuthKind = "api_key"
	AuthOAuth2 AuthKind = "oauth2"
)

// TransportDescriptor captures the per-transport connection details.
type TransportDescriptor struct {
	Kind TransportKind

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// sse / http
	URL     string
	Headers map[string]string

	// websocket
	ReconnectMaxAttempts int
	ReconnectBackoffMs   int64
	ReconnectJitter      float64
	HeartbeatIntervalMs  int64
}

// AuthDescriptor captures how the pool authenticates to a backend.
type AuthDescriptor struct {
	Kind AuthKind

	APIKeyHeader string
	APIKeyValue  string

	OAuth2TokenURL     string
	OAuth2ClientID     string
	OAuth2ClientSecret string
	OAuth2Scopes       []string
}

// HealthCheckPolicy controls the Pool's periodic probe (spec §4.1).
type HealthCheckPolicy struct {
	Enabled     bool
	IntervalMs  int64
	TimeoutMs   int64
}

// RateLimitPolicy is attached to a ServerConfig and seeds a RateLimitBucket.
type RateLimitPolicy struct {
	PerMinute int64
	PerDay    int64
}

// ServerConfig is the admin-managed description of a backend MCP server.
type ServerConfig struct {
	ID        string
	Name      string
	Transport TransportDescriptor
	Auth      AuthDescriptor
	Health    HealthCheckPolicy
	RateLimit RateLimitPolicy
	Tags      []string
	Category  string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CapabilityKind distinguishes tool/prompt/resource entries.
type CapabilityKind string

const (
	CapabilityTool     CapabilityKind = "tool"
	CapabilityPrompt   CapabilityKind = "prompt"
	CapabilityResource CapabilityKind = "resource"
)

// CapabilityEntry is a row shared by ToolEntry/PromptEntry/ResourceEntry
// (spec §3: "analogous" for the latter two).
type CapabilityEntry struct {
	Kind          CapabilityKind
	QualifiedName string // "<serverName>/<localName>"
	ServerID      string
	ServerName    string
	LocalName     string
	Description   string
	InputSchema   []byte // opaque JSON, tool-kind only
	URI           string // resource-kind only
	RegisteredAt  time.Time
}

// RateLimitBucket is the durable two-window counter for a (key, server) pair.
type RateLimitBucket struct {
	KeyID         string
	ServerID      string
	MinuteCount   int64
	MinuteResetAt time.Time
	DayCount      int64
	DayResetAt    time.Time
}

// CircuitState is the durable snapshot of a server's circuit breaker, kept
// for status queries and restart recovery; the live state machine itself is
// held in-process (internal/resilience).
type CircuitState struct {
	ServerID            string
	State               string
	FailureCount        int
	ConsecutiveSuccess  int
	OpenedAt            time.Time
	LastStateChangeAt   time.Time
}

// CacheEntry is the durable tier of the Response Cache.
type CacheEntry struct {
	Key        string
	Kind       CapabilityKind
	ServerID   string
	Name       string
	ParamHash  string
	Value      []byte
	ExpiresAt  time.Time
	HitCount   int64
	LastHitAt  time.Time
	CreatedAt  time.Time
}

// StepKind identifies a workflow step's dispatch kind.
type StepKind string

const (
	StepTool      StepKind = "tool"
	StepPrompt    StepKind = "prompt"
	StepResource  StepKind = "resource"
	StepCondition StepKind = "condition"
	StepParallel  StepKind = "parallel"
)

// OnErrorPolicy names the per-step failure-handling strategy.
type OnErrorPolicy string

const (
	OnErrorStop     OnErrorPolicy = "stop"
	OnErrorContinue OnErrorPolicy = "continue"
	OnErrorRetry    OnErrorPolicy = "retry"
)

// RetryPolicy configures a step's retry loop.
type RetryPolicy struct {
	MaxAttempts int
	BackoffMs   int64
}

// Step is one node of a Workflow's definition.
type Step struct {
	Name      string
	Kind      StepKind
	Config    map[string]any // kind-specific, template strings interpolated at run time
	Retry     RetryPolicy
	OnError   OnErrorPolicy
	Condition string   // mustache/boolean expression; gates every kind, not just condition
	Then      []Step   // condition kind only
	Else      []Step   // condition kind only
	Children  []Step   // parallel kind only
}

// Workflow is the durable, versioned step graph (spec §3).
type Workflow struct {
	ID          string
	Name        string
	Description string
	Steps       []Step
	ErrorStrategy OnErrorPolicy
	TimeoutMs     int64
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ExecutionStatus is one of an Execution's monotonically advancing states.
type ExecutionStatus string

const (
	ExecPending   ExecutionStatus = "pending"
	ExecRunning   ExecutionStatus = "running"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
	ExecCancelled ExecutionStatus = "cancelled"
)

// Execution is a single run of a Workflow.
type Execution struct {
	ID          string
	WorkflowID  string
	Status      ExecutionStatus
	Input       map[string]any
	Output      map[string]any
	Error       string
	TriggeredBy string
	StartedAt   time.Time
	CompletedAt time.Time
}

// StepStatus is one of an ExecutionStep's terminal or transient states.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepCancelled StepStatus = "cancelled"
)

// ExecutionStep is one step record within an Execution.
type ExecutionStep struct {
	ID          string
	ExecutionID string
	Position    int
	Name        string
	Status      StepStatus
	Input       map[string]any
	Output      map[string]any
	Error       string
	RetryCount  int
	TokensUsed  int64
	CostCredits float64
	ModelName   string
	DurationMs  int64
	StartedAt   time.Time
	CompletedAt time.Time
}

// BudgetScope identifies what a BudgetRule constrains.
type BudgetScope string

const (
	BudgetScopeGlobal   BudgetScope = "global"
	BudgetScopeTenant   BudgetScope = "tenant"
	BudgetScopeWorkflow BudgetScope = "workflow"
	BudgetScopeKey      BudgetScope = "key"
)

// BudgetPeriod identifies a BudgetRule's accrual window.
type BudgetPeriod string

const (
	BudgetPeriodDay   BudgetPeriod = "day"
	BudgetPeriodWeek  BudgetPeriod = "week"
	BudgetPeriodMonth BudgetPeriod = "month"
)

// BudgetRule is an admin-managed spending cap.
type BudgetRule struct {
	ID       string
	Scope    BudgetScope
	ScopeID  string // tenant id / workflow id / key id, empty for global
	Limit    float64
	Period   BudgetPeriod
}

// BudgetUsage is the accrued spend for a rule within one period.
type BudgetUsage struct {
	RuleID      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Used        float64
}

// WebhookSubscription is an admin-managed delivery target.
type WebhookSubscription struct {
	ID           string
	URL          string
	EventKinds   []string
	Secret       string
	ServerFilter string
	RetryCount   int
	RetryDelayMs int64
	TimeoutMs    int64
	Enabled      bool
	CreatedAt    time.Time
}

// DeliveryStatus is one of a WebhookDelivery's states.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// WebhookDelivery is a single (possibly retried) delivery attempt chain.
type WebhookDelivery struct {
	ID              string
	SubscriptionID  string
	EventKind       string
	Payload         []byte
	Status          DeliveryStatus
	Attempts        int
	LastHTTPStatus  int
	ResponseSnippet string
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// KeyExposureDetection is one Secret Scanner match.
type KeyExposureDetection struct {
	ID            string
	Pattern       string
	MaskedPrefix  string
	Source        string
	JSONPath      string
	Severity      string
	Resolved      bool
	ResolutionNote string
	CreatedAt     time.Time
}

// Tenant groups API keys and usage.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// APIKey is a caller credential, stored hashed. HashedKey is a fast
// deterministic digest of the raw secret used for the indexed lookup in
// GetAPIKeyByHash; BcryptHash is a bcrypt hash of the same secret, used
// as a second, slow-to-brute-force verification step once the lookup
// narrows to a single candidate row.
type APIKey struct {
	ID         string
	TenantID   string
	HashedKey  string
	BcryptHash string
	Label      string
	CreatedAt  time.Time
	Revoked    bool
}

// UsageRecord is one row of usage_history.
type UsageRecord struct {
	ID          string
	KeyID       string
	ServerID    string
	ToolName    string
	Success     bool
	DurationMs  int64
	TokensUsed  int64
	CostCredits float64
	CreatedAt   time.Time
}

// AuditEntry is one row of the admin audit log.
type AuditEntry struct {
	ID           string
	Action       string
	KeyID        string
	TenantID     string
	ResourceType string
	ResourceID   string
	DurationMs   int64
	Success      bool
	Error        string
	CreatedAt    time.Time
}

// ServerTemplate is a reusable set of ServerConfig defaults; instantiate
// overlays caller overrides on top to produce a concrete ServerConfig.
type ServerTemplate struct {
	ID          string
	Name        string
	Description string
	Defaults    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkflowTemplate is a reusable set of Workflow defaults; instantiate
// overlays caller overrides on top to produce a concrete Workflow.
type WorkflowTemplate struct {
	ID          string
	Name        string
	Description string
	Defaults    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

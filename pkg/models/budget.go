package models

import "time"

// DenyReason explains why a budget acquisition was refused.
type DenyReason string

const (
	// DenyDailyLimit means the service already used its daily call allowance.
	DenyDailyLimit DenyReason = "daily_limit_reached"
	// DenyMonthlyBudget means the estimated cost would push the month past its budget.
	DenyMonthlyBudget DenyReason = "monthly_budget_exceeded"
	// DenyHardCap means the service's absolute monthly spend ceiling would be breached.
	DenyHardCap DenyReason = "service_hard_cap_exceeded"
)

// Usage holds the fine-grained consumption of a single call for services
// with tiered pricing. All fields are additive.
type Usage struct {
	OutputTokens    int64 `json:"output_tokens"`
	ReasoningTokens int64 `json:"reasoning_tokens"`
	SearchRequests  int64 `json:"search_requests"`
}

// Add returns the element-wise sum of two usage breakdowns.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		OutputTokens:    u.OutputTokens + other.OutputTokens,
		ReasoningTokens: u.ReasoningTokens + other.ReasoningTokens,
		SearchRequests:  u.SearchRequests + other.SearchRequests,
	}
}

// Decision is the outcome of asking "may I spend X on service S".
// Granted decisions are committed atomically with their counter mutation;
// a denied decision leaves the ledger untouched.
type Decision struct {
	Granted bool       `json:"granted"`
	Reason  DenyReason `json:"reason,omitempty"` // set only when !Granted

	// Counters observed inside the deciding transaction. For a granted
	// decision these include the acquired call.
	DailyCalls  int64   `json:"daily_calls"`
	DailyCost   float64 `json:"daily_cost"`
	MonthlyCost float64 `json:"monthly_cost"`
}

// BudgetLimits configures the caps for a single service.
type BudgetLimits struct {
	DailyCallLimit int64   `json:"daily_call_limit" mapstructure:"daily_call_limit"`
	MonthlyBudget  float64 `json:"monthly_budget" mapstructure:"monthly_budget"`
	// HardCap is an absolute monthly spend ceiling that even post-call
	// corrections respect. Zero disables it.
	HardCap float64 `json:"hard_cap" mapstructure:"hard_cap"`
}

// BudgetSummary is the read-only view of a service's spend, for health
// and dashboard surfaces. It never consumes budget.
type BudgetSummary struct {
	Service          string    `json:"service"`
	Day              string    `json:"day"`
	DailyCalls       int64     `json:"daily_calls"`
	DailyCallLimit   int64     `json:"daily_call_limit"`
	DailyCost        float64   `json:"daily_cost"`
	MonthlyCost      float64   `json:"monthly_cost"`
	MonthlyBudget    float64   `json:"monthly_budget"`
	CallsRemaining   int64     `json:"calls_remaining"`
	BudgetRemaining  float64   `json:"budget_remaining"`
	Usage            Usage     `json:"usage"`
	GeneratedAt      time.Time `json:"generated_at"`
}

package cmd

// CLI-local response types. Timestamps stay as strings because the CLI
// receives JSON and displays them directly.

// BudgetSummary mirrors the server's per-service budget view
type BudgetSummary struct {
	Service         string  `json:"service"`
	Day             string  `json:"day"`
	DailyCalls      int64   `json:"daily_calls"`
	DailyCallLimit  int64   `json:"daily_call_limit"`
	DailyCost       float64 `json:"daily_cost"`
	MonthlyCost     float64 `json:"monthly_cost"`
	MonthlyBudget   float64 `json:"monthly_budget"`
	CallsRemaining  int64   `json:"calls_remaining"`
	BudgetRemaining float64 `json:"budget_remaining"`
}

// BudgetList is the response from GET /api/v1/budget
type BudgetList struct {
	Budgets []BudgetSummary `json:"budgets"`
}

// JobRecord is one persisted (day, job) status row
type JobRecord struct {
	Day        string `json:"day"`
	Job        string `json:"job"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
	Error      string `json:"error,omitempty"`
}

// JobList is the response from GET /api/v1/jobs/today
type JobList struct {
	Jobs []JobRecord `json:"jobs"`
}

// JobOutcome is the response from POST /api/v1/jobs/:name/run
type JobOutcome struct {
	Job     string `json:"job"`
	Ran     bool   `json:"ran"`
	Status  string `json:"status,omitempty"`
	Skipped string `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AnalyzeRequest is the request body for POST /api/v1/analyze
type AnalyzeRequest struct {
	Tickers   []string `json:"tickers"`
	Preferred string   `json:"preferred,omitempty"`
}

// Analysis is one ticker's result
type Analysis struct {
	Ticker           string  `json:"ticker"`
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	Output           string  `json:"output"`
	Sentiment        string  `json:"sentiment,omitempty"`
	Cost             float64 `json:"cost"`
	SentimentSkipped bool    `json:"sentiment_skipped,omitempty"`
}

// AnalysisSlot is one positional slot of an analyze run
type AnalysisSlot struct {
	Ticker   string    `json:"ticker"`
	Analysis *Analysis `json:"analysis,omitempty"`
	Error    string    `json:"error,omitempty"`
	TimedOut bool      `json:"timed_out,omitempty"`
}

// AnalyzeResult is the response from POST /api/v1/analyze
type AnalyzeResult struct {
	RunID      string         `json:"run_id"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	TimedOut   int            `json:"timed_out"`
	DurationMS int64          `json:"duration_ms"`
	Results    []AnalysisSlot `json:"results"`
}

package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query       string   `json:"query" jsonschema:"the search query to execute"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 100"`
	KeywordOnly bool     `json:"keyword_only,omitempty" jsonschema:"skip the semantic leg and search keywords only"`
	Scope       []string `json:"scope,omitempty" jsonschema:"restrict results to these path prefixes (OR logic)"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"fused search results, best first"`
}

// SearchResultOutput is a single fused result.
type SearchResultOutput struct {
	Path         string   `json:"path" jsonschema:"file path relative to the project root"`
	StartLine    int      `json:"start_line,omitempty" jsonschema:"first line of the chunk"`
	EndLine      int      `json:"end_line,omitempty" jsonschema:"last line of the chunk"`
	Score        float64  `json:"score" jsonschema:"fused relevance score between 0 and 1"`
	Language     string   `json:"language,omitempty" jsonschema:"programming language of the file"`
	Symbol       string   `json:"symbol,omitempty" jsonschema:"primary symbol name in the chunk"`
	Content      string   `json:"content,omitempty" jsonschema:"chunk content, empty for keyword-only hits"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms the keyword leg matched"`
	InBoth       bool     `json:"in_both,omitempty" jsonschema:"true when both the keyword and semantic legs returned this chunk"`
}

// IndexStatusInput defines the input schema for the index_status tool
// (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project      ProjectInfo      `json:"project"`
	Index        IndexStateInfo   `json:"index"`
	Quota        QuotaInfo        `json:"quota"`
	Embeddings   EmbeddingInfo    `json:"embeddings"`
	RecentErrors []IndexErrorInfo `json:"recent_errors,omitempty"`
}

// ProjectInfo identifies the indexed project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexStateInfo reports the engine's run state and ledger counts.
type IndexStateInfo struct {
	IsIndexing   bool   `json:"is_indexing"`
	Phase        string `json:"phase"`
	IndexedFiles int    `json:"indexed_files"`
	PendingCount int    `json:"pending_count"`
	QueueDepth   int    `json:"queue_depth"`
	LastRunAt    string `json:"last_run_at,omitempty"`
}

// QuotaInfo reports the daily chunk budget.
type QuotaInfo struct {
	Date               string `json:"date"`
	Limit              int    `json:"limit"`
	UnitsConsumedToday int    `json:"units_consumed_today"`
	Remaining          int    `json:"remaining"`
}

// EmbeddingInfo reports the active embedder so clients can adjust
// search strategy when the static fallback is serving.
type EmbeddingInfo struct {
	Model            string `json:"model"`
	Dimensions       int    `json:"dimensions"`
	Status           string `json:"status"`
	IsFallbackActive bool   `json:"is_fallback_active"`
}

// IndexErrorInfo is one entry of the engine's rolling error log.
type IndexErrorInfo struct {
	Path      string `json:"path"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ReindexInput defines the input schema for the reindex tool
// (no parameters).
type ReindexInput struct{}

// ReindexOutput defines the output schema for the reindex tool.
type ReindexOutput struct {
	// Absorbed is true when a run was already active and this request
	// folded into its follow-up run.
	Absorbed bool             `json:"absorbed" jsonschema:"true when an active run absorbed this request"`
	Report   *RunReportOutput `json:"report,omitempty" jsonschema:"summary of the completed run, absent when absorbed"`
}

// RunReportOutput summarizes a completed pipeline run.
type RunReportOutput struct {
	DurationMS     int64 `json:"duration_ms"`
	New            int   `json:"new"`
	Modified       int   `json:"modified"`
	Unchanged      int   `json:"unchanged"`
	Deleted        int   `json:"deleted"`
	Indexed        int   `json:"indexed"`
	Skipped        int   `json:"skipped"`
	Failed         int   `json:"failed"`
	Deferred       int   `json:"deferred"`
	UnitsCharged   int   `json:"units_charged"`
	QuotaExhausted bool  `json:"quota_exhausted"`
}

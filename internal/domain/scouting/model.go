package scouting

type QueryKind string

const (
	KindSimilarity  QueryKind = "similarity"
	KindLeaderboard QueryKind = "leaderboard"
	KindComparison  QueryKind = "comparison"
	KindFilter      QueryKind = "filter"
)

// CohortFilters narrows the player-season population a query runs against.
type CohortFilters struct {
	LeagueIDs  []string `json:"league_ids,omitempty"`
	Season     string   `json:"season" validate:"required"`
	Positions  []string `json:"positions,omitempty"`
	MinAge     int      `json:"min_age,omitempty" validate:"min=0,max=60"`
	MaxAge     int      `json:"max_age,omitempty" validate:"min=0,max=60"`
	MinMinutes int      `json:"min_minutes,omitempty" validate:"min=0"`
}

// Weights are the similarity mixing weights. Both must be finite and
// non-negative and sum to a positive number; the similarity engine normalises
// them to sum to 1.
type Weights struct {
	Role  float64 `json:"role" validate:"min=0"`
	Stats float64 `json:"stats" validate:"min=0"`
}

// StructuredQuery is the single validated specification every engine consumes.
// It is produced either by the natural-language parser or by a direct caller,
// and is always run through the catalogue validator before execution.
type StructuredQuery struct {
	Kind        QueryKind     `json:"kind" validate:"required,oneof=similarity leaderboard comparison filter"`
	ReferenceID string        `json:"reference_id,omitempty"`
	PlayerIDs   []string      `json:"player_ids,omitempty"`
	Cohort      CohortFilters `json:"cohort"`
	MetricIDs   []string      `json:"metric_ids,omitempty"`
	PresetID    string        `json:"preset_id,omitempty"`
	SortMetric  string        `json:"sort_metric,omitempty"`
	Weights     *Weights      `json:"weights,omitempty"`
	Limit       int           `json:"limit" validate:"min=1,max=500"`
}

// MetricValue is one computed metric for one player. Insufficient marks values
// that cannot be stated honestly (below the minutes threshold, null source
// column, zero denominator); Value is meaningless when Insufficient is set.
type MetricValue struct {
	MetricID     string  `json:"metric_id"`
	Value        float64 `json:"value"`
	Unit         string  `json:"unit"`
	Insufficient bool    `json:"insufficient"`
}

// CohortDescriptor reports the reference frame actually used after filtering.
type CohortDescriptor struct {
	Filters    CohortFilters `json:"filters"`
	Size       int           `json:"size"`
	MinMinutes int           `json:"min_minutes"`
}

// SimilarityRow is one ranked candidate with component-level attribution.
type SimilarityRow struct {
	PlayerID       string   `json:"player_id"`
	PlayerName     string   `json:"player_name"`
	Total          float64  `json:"total"`
	RoleComponent  float64  `json:"role_component"`
	StatsComponent float64  `json:"stats_component"`
	ClosestMetrics []string `json:"closest_metrics"`
	DivergingMetrics []string `json:"diverging_metrics"`
	RoleNotes      []string `json:"role_notes,omitempty"`
}

// LeaderboardRow is one ranked row of a single-metric leaderboard.
type LeaderboardRow struct {
	Rank       int         `json:"rank"`
	PlayerID   string      `json:"player_id"`
	PlayerName string      `json:"player_name"`
	Value      MetricValue `json:"value"`
	Percentile float64     `json:"percentile"`
}

// ComparisonRow is one player's aligned metric vector in a comparison.
type ComparisonRow struct {
	PlayerID   string        `json:"player_id"`
	PlayerName string        `json:"player_name"`
	Values     []MetricValue `json:"values"`
}

// FilterRow is one cohort member of a filter query.
type FilterRow struct {
	PlayerID   string        `json:"player_id"`
	PlayerName string        `json:"player_name"`
	Position   string        `json:"position"`
	Age        int           `json:"age"`
	Minutes    int           `json:"minutes"`
	Values     []MetricValue `json:"values,omitempty"`
}

// Diagnostics travels with every result so data-sufficiency conditions are
// reported as values rather than failures.
type Diagnostics struct {
	Degraded                 bool     `json:"degraded,omitempty"`
	SomeInsufficientMinutes  bool     `json:"some_insufficient_minutes,omitempty"`
	Warnings                 []string `json:"warnings,omitempty"`
}

// Result is the typed answer to one executed StructuredQuery. Exactly one of
// the row slices is populated, matching Query.Kind.
type Result struct {
	Query       StructuredQuery  `json:"query"`
	Cohort      CohortDescriptor `json:"cohort"`
	Similarity  []SimilarityRow  `json:"similarity,omitempty"`
	Leaderboard []LeaderboardRow `json:"leaderboard,omitempty"`
	Comparison  []ComparisonRow  `json:"comparison,omitempty"`
	Filter      []FilterRow      `json:"filter,omitempty"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

// ParseOutcome is the lenient-mode parser result: a safe-default query plus the
// reasons it was degraded.
type ParseOutcome struct {
	Query    StructuredQuery `json:"query"`
	Degraded bool            `json:"degraded"`
	Warnings []string        `json:"warnings,omitempty"`
}

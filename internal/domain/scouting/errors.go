package scouting

import "errors"

// Input errors: surfaced directly to the caller, never coerced to a guess.
var (
	ErrUnknownMetric                = errors.New("unknown metric")
	ErrIncompatibleMetricForPosition = errors.New("metric incompatible with position scope")
	ErrInvalidWeight                = errors.New("invalid weight")
	ErrInvalidLimit                 = errors.New("invalid limit")
	ErrParse                        = errors.New("query parse failed")
)

// Data-sufficiency conditions that abort a whole query rather than a row.
var (
	ErrCohortTooSmall            = errors.New("cohort too small")
	ErrNoCandidates              = errors.New("no candidates in cohort")
	ErrNoSeasonData              = errors.New("no season data for player")
	ErrReferenceRoleInsufficient = errors.New("reference player has insufficient positional data")
)

// Transient errors: the host may retry.
var (
	ErrLLMUnavailable = errors.New("language model unavailable")
	ErrTimeout        = errors.New("request timed out")
)

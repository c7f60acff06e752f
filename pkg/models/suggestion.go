package models

// Suggestion is one rendered configuration suggestion for an error signature.
type Suggestion struct {
	Suggestion        string  `json:"suggestion"`
	ConfigKey         string  `json:"config_key"`
	ConfigValue       string  `json:"config_value"`
	ConfidencePct     int     `json:"confidence_percentage"`
	SignificanceScore float64 `json:"significance_score"`
}

// SuggestResult is the full outcome of a suggestion lookup. Match is false
// when no cluster lies within the acceptance threshold or no analysis has
// ever committed a generation; that is a valid result, not an error.
type SuggestResult struct {
	Match          bool         `json:"match"`
	Confidence     float64      `json:"confidence"`
	Recommendation string       `json:"recommendation,omitempty"`
	Docs           string       `json:"docs,omitempty"`
	AllSuggestions []Suggestion `json:"all_suggestions,omitempty"`
}

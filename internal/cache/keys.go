package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// AnalysisLockKey is the mutex that serializes batch analysis runs.
func AnalysisLockKey() string {
	return "analysis:lock"
}

func RunStatusKey(runID uuid.UUID) string {
	return fmt.Sprintf("analysis:run:%s", runID)
}

// SuggestionKey caches rendered suggestion responses. Keyed by generation so
// entries from a superseded generation are never served.
func SuggestionKey(generationID uuid.UUID, paramsHash string) string {
	return fmt.Sprintf("suggest:%s:%s", generationID, paramsHash)
}

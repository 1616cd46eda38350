package pipeline

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
)

//go:embed fallback.json
var fallbackJSON []byte

var loadFallback = sync.OnceValues(func() ([]domain.OutbreakEvent, error) {
	var events []domain.OutbreakEvent
	if err := json.Unmarshal(fallbackJSON, &events); err != nil {
		return nil, fmt.Errorf("decode bundled dataset: %w", err)
	}
	return events, nil
})

// StaticEvents returns a copy of the bundled dataset served when neither the
// source nor the durable cache can answer. It is never persisted.
func StaticEvents() ([]domain.OutbreakEvent, error) {
	events, err := loadFallback()
	if err != nil {
		return nil, err
	}
	out := make([]domain.OutbreakEvent, len(events))
	copy(out, events)
	return out, nil
}

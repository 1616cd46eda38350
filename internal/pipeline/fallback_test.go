package pipeline_test

import (
	"testing"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/couchcryptid/outbreak-data-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEvents(t *testing.T) {
	events, err := pipeline.StaticEvents()
	require.NoError(t, err)
	require.Len(t, events, 20)

	assert.Equal(t, "Malawi", events[0].Country)
	assert.Equal(t, "Cholera", events[0].Disease)
	assert.Equal(t, "2025-12-19", events[0].ReportDate)
	assert.Equal(t, "Mali", events[19].Country)

	ids := map[string]bool{}
	for _, e := range events {
		assert.NotEmpty(t, e.Country)
		assert.NotEmpty(t, e.Disease)
		assert.Contains(t, []string{domain.Grade1, domain.Grade2, domain.Grade3}, e.Grade)
		assert.True(t, e.HasCoordinates(), "%s has coordinates", e.ID)
		assert.GreaterOrEqual(t, e.Cases, e.Deaths)
		assert.False(t, ids[e.ID], "duplicate id %s", e.ID)
		ids[e.ID] = true
	}
}

func TestStaticEvents_ReturnsCopy(t *testing.T) {
	first, err := pipeline.StaticEvents()
	require.NoError(t, err)
	first[0].Country = "mutated"

	second, err := pipeline.StaticEvents()
	require.NoError(t, err)
	assert.Equal(t, "Malawi", second[0].Country)
}

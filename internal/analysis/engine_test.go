package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/records-tracks-go/internal/models"
)

type stubAnalyzer struct{ deps Deps }

func (s *stubAnalyzer) Name() string { return "stub" }

func (s *stubAnalyzer) Analyze(context.Context, *models.Job) (*Result, error) {
	return &Result{Processed: 1}, nil
}

func TestRegistry(t *testing.T) {
	RegisterAnalyzer("stub", func(d Deps) Analyzer { return &stubAnalyzer{deps: d} })

	assert.True(t, IsRegistered("stub"))
	assert.False(t, IsRegistered("missing"))
	assert.Nil(t, GetAnalyzer("missing", Deps{}))
	assert.Contains(t, Skills(), "stub")

	a := GetAnalyzer("stub", Deps{GracePeriod: time.Minute})
	require.NotNil(t, a)
	assert.Equal(t, time.Minute, a.(*stubAnalyzer).deps.GracePeriod)
}

func TestDayBounds(t *testing.T) {
	start, end, err := DayBounds("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix(), start)
	assert.Equal(t, start+86399, end)

	_, _, err = DayBounds("03/01/2024")
	assert.Error(t, err)
}

func TestClock(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, Deps{Now: func() time.Time { return fixed }}.Clock()())
	assert.WithinDuration(t, time.Now(), Deps{}.Clock()(), time.Second)
	assert.Equal(t, "2024-01-01", Today(fixed))
}

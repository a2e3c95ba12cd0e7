package metrics

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/prepcards/core/signal"
)

func TestNewMetrics_Shared(t *testing.T) {
	assert.Same(t, NewMetrics(), NewMetrics())
}

func TestMetrics_ObserveJob(t *testing.T) {
	m := NewMetrics()
	okBefore := testutil.ToFloat64(m.JobRuns.WithLabelValues("flag", "success"))
	errBefore := testutil.ToFloat64(m.JobRuns.WithLabelValues("flag", "error"))

	m.ObserveJob("flag", time.Now(), nil)
	m.ObserveJob("flag", time.Now(), errors.New("boom"))
	m.ObserveJob("flag", time.Now(), nil)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(m.JobRuns.WithLabelValues("flag", "success")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(m.JobRuns.WithLabelValues("flag", "error")))
}

func TestMetrics_ObserveResult(t *testing.T) {
	m := NewMetrics()
	flagged := testutil.ToFloat64(m.FlagChanges.WithLabelValues("flagged"))
	resolved := testutil.ToFloat64(m.FlagChanges.WithLabelValues("resolved"))
	missing := testutil.ToFloat64(m.SignalsMissing.WithLabelValues("crp-themes"))
	empty := testutil.ToFloat64(m.JobEmpty.WithLabelValues("aggregate"))

	m.ObserveResult("pipeline", signal.PipelineResult{
		Aggregate: signal.AggregateResult{Empty: true},
		CRPThemes: signal.ThemeResult{Missing: 2},
		Flag:      signal.FlagResult{Flagged: 3, Resolved: 1},
	})

	assert.Equal(t, flagged+3, testutil.ToFloat64(m.FlagChanges.WithLabelValues("flagged")))
	assert.Equal(t, resolved+1, testutil.ToFloat64(m.FlagChanges.WithLabelValues("resolved")))
	assert.Equal(t, missing+2, testutil.ToFloat64(m.SignalsMissing.WithLabelValues("crp-themes")))
	assert.Equal(t, empty+1, testutil.ToFloat64(m.JobEmpty.WithLabelValues("aggregate")))
}

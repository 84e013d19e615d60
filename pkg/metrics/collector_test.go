package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mood-bot/internal/state"
)

func TestStateCollector_Collect(t *testing.T) {
	ctx := context.Background()
	fsm := state.NewStateMachine(state.NewMemoryStorage(), nil, nil)

	_, err := fsm.TransitionTo(ctx, 1, state.StatePromptSent, nil)
	require.NoError(t, err)
	_, err = fsm.TransitionTo(ctx, 2, state.StatePromptSent, nil)
	require.NoError(t, err)
	_, err = fsm.TransitionTo(ctx, 3, state.StateIdle, nil)
	require.NoError(t, err)

	collector := NewStateCollector(fsm, 0)
	require.NoError(t, collector.collect(ctx))

	assert.Equal(t, float64(3), value(t, activeUsers))
	assert.Equal(t, float64(2), value(t, usersByState.WithLabelValues("prompt_sent")))
	assert.Equal(t, float64(1), value(t, usersByState.WithLabelValues("idle")))
	assert.Equal(t, float64(0), value(t, usersByState.WithLabelValues("recording")))
}

func TestRecordJobFiring(t *testing.T) {
	before := value(t, jobFiringsTotal.WithLabelValues("duplicate"))
	RecordJobFiring("duplicate")
	assert.Equal(t, before+1, value(t, jobFiringsTotal.WithLabelValues("duplicate")))
}

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()

	var m dto.Metric
	require.NoError(t, c.Write(&m))
	if m.GetGauge() != nil {
		return m.GetGauge().GetValue()
	}
	return m.GetCounter().GetValue()
}

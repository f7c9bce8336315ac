package risk_test

import (
	"testing"

	"github.com/ExamTrust/ProctorGate/pkg/domain/securityevent"
	"github.com/ExamTrust/ProctorGate/pkg/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointerEvent(x, y float64, ts int64) *securityevent.Event {
	return securityevent.New("s1", securityevent.CategoryPointer, securityevent.Payload{X: x, Y: y}, ts)
}

func keyEvent(key string, modifiers ...string) *securityevent.Event {
	return securityevent.New("s1", securityevent.CategoryKey, securityevent.Payload{Key: key, Modifiers: modifiers}, 0)
}

func TestObserve_ScriptedLinearMotionCrossesAlertThreshold(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	var last risk.Assessment
	for i := 0; i < 50; i++ {
		last = acc.Observe(pointerEvent(float64(i*10), 200, int64(i*10)))
	}

	assert.GreaterOrEqual(t, last.Score, 30.0)
	assert.Contains(t, acc.Flags(), risk.FlagLinearMotion)
	assert.Contains(t, acc.Flags(), risk.FlagUniformTiming)
}

func TestObserve_LinearMotionContributionIsCappedPerRun(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	for i := 0; i < 500; i++ {
		acc.Observe(pointerEvent(float64(i*10), 200, int64(i*10)))
	}

	// One uninterrupted run cannot contribute past its cap no matter
	// how long it continues.
	assert.InDelta(t, 40.0, acc.Score(), 0.001)
}

func TestObserve_HumanMotionScoresNothing(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	xs := []float64{0, 14, 21, 45, 52, 88, 90, 130, 133, 170}
	ys := []float64{0, 9, 30, 34, 70, 72, 110, 115, 150, 151}
	ts := []int64{0, 35, 51, 120, 142, 230, 244, 310, 360, 401}

	for i := range xs {
		acc.Observe(pointerEvent(xs[i], ys[i], ts[i]))
	}

	assert.Equal(t, 0.0, acc.Score())
	assert.Empty(t, acc.Flags())
}

func TestObserve_NonIncreasingTimestampsContributeNothing(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	acc.Observe(pointerEvent(0, 0, 100))
	acc.Observe(pointerEvent(10, 0, 100))
	acc.Observe(pointerEvent(20, 0, 50))

	assert.Equal(t, 0.0, acc.Score())
}

func TestObserve_RepeatedKeybindsHaveDiminishingReturns(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	var deltas []float64
	for i := 0; i < 20; i++ {
		assessment := acc.Observe(keyEvent("c", "ctrl"))
		deltas = append(deltas, assessment.Delta)
	}

	for i, delta := range deltas {
		assert.GreaterOrEqual(t, delta, 1.0, "hit %d must still move the score", i)
		if i > 0 {
			assert.LessOrEqual(t, delta, deltas[i-1], "hit %d must not exceed the previous delta", i)
		}
	}

	// Keybind spam alone never reaches suspension territory.
	assert.Less(t, acc.Score(), 80.0)
	assert.Equal(t, 20, acc.Tally())
	assert.Contains(t, acc.Flags(), risk.FlagProhibitedKeybind)
}

func TestObserve_AllowedKeysAreFree(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	assessment := acc.Observe(keyEvent("a"))
	assert.Equal(t, 0.0, assessment.Delta)

	assessment = acc.Observe(keyEvent("c", "shift"))
	assert.Equal(t, 0.0, assessment.Delta)

	assert.Equal(t, 0, acc.Tally())
}

func TestObserve_VisibilityLossScalesWithDurationUpToCap(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	short := acc.Observe(securityevent.New("s1", securityevent.CategoryVisibility,
		securityevent.Payload{Hidden: true, DurationMs: 500}, 0))
	assert.Equal(t, 0.0, short.Delta)

	moderate := acc.Observe(securityevent.New("s1", securityevent.CategoryVisibility,
		securityevent.Payload{Hidden: true, DurationMs: 3000}, 0))
	assert.InDelta(t, 6.0, moderate.Delta, 0.001)

	long := acc.Observe(securityevent.New("s1", securityevent.CategoryVisibility,
		securityevent.Payload{Hidden: true, DurationMs: 60000}, 0))
	assert.InDelta(t, 10.0, long.Delta, 0.001)

	assert.Contains(t, acc.Flags(), risk.FlagVisibilityLoss)
}

func TestObserve_AutomationSignal(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	assessment := acc.Observe(securityevent.New("s1", securityevent.CategoryAutomation,
		securityevent.Payload{Source: "cdp"}, 0))

	assert.InDelta(t, 15.0, assessment.Delta, 0.001)
	assert.Contains(t, assessment.Flags, risk.FlagAutomationSignal)
}

func TestObserve_SyntheticPayloadAddsAutomationSignal(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	assessment := acc.Observe(securityevent.New("s1", securityevent.CategoryKey,
		securityevent.Payload{Key: "a", Synthetic: true}, 0))

	assert.InDelta(t, 15.0, assessment.Delta, 0.001)
	assert.Contains(t, assessment.Flags, risk.FlagAutomationSignal)
}

func TestObserve_ScoreIsClampedAtHundred(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	for i := 0; i < 30; i++ {
		acc.Observe(securityevent.New("s1", securityevent.CategoryAutomation,
			securityevent.Payload{}, 0))
	}

	assert.Equal(t, 100.0, acc.Score())
}

func TestDecay_LowersScoreNeverBelowFloor(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	acc.Observe(securityevent.New("s1", securityevent.CategoryAutomation,
		securityevent.Payload{}, 0))
	require.InDelta(t, 15.0, acc.Score(), 0.001)

	acc.Decay()
	assert.InDelta(t, 13.0, acc.Score(), 0.001)

	for i := 0; i < 100; i++ {
		acc.Decay()
	}
	assert.Equal(t, 0.0, acc.Score())
}

func TestObserve_RecordsDeltaOnEvent(t *testing.T) {
	acc := risk.NewAccumulator(risk.Config{})

	ev := keyEvent("c", "ctrl")
	assessment := acc.Observe(ev)

	assert.Equal(t, assessment.Delta, ev.RiskDelta)
	assert.InDelta(t, 4.0, ev.RiskDelta, 0.001)
}

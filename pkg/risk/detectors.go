package risk

import (
	"math"
	"sort"
	"strings"
)

// Flags name the behavioural signal that contributed risk. They end
// up on the session risk profile and on alert facts.
const (
	FlagLinearMotion      = "linear-motion"
	FlagUniformTiming     = "uniform-timing"
	FlagProhibitedKeybind = "prohibited-keybind"
	FlagVisibilityLoss    = "visibility-loss"
	FlagAutomationSignal  = "automation-signal"
)

// disallowedCombos are key chords an exam client must not use. Keys
// are normalized as "mod+mod+key" with modifiers sorted.
var disallowedCombos = map[string]struct{}{
	"ctrl+c":       {},
	"ctrl+v":       {},
	"ctrl+x":       {},
	"ctrl+p":       {},
	"ctrl+s":       {},
	"ctrl+tab":     {},
	"alt+tab":      {},
	"f12":          {},
	"ctrl+shift+i": {},
	"ctrl+shift+j": {},
	"ctrl+shift+c": {},
}

func comboKey(key string, modifiers []string) string {
	mods := make([]string, 0, len(modifiers))
	for _, m := range modifiers {
		mods = append(mods, strings.ToLower(m))
	}
	sort.Strings(mods)
	parts := append(mods, strings.ToLower(key))
	return strings.Join(parts, "+")
}

func disallowedCombo(key string, modifiers []string) bool {
	_, ok := disallowedCombos[comboKey(key, modifiers)]
	return ok
}

type pointerSample struct {
	x, y float64
	ts   int64
}

// continuesRun reports whether the step from prev to cur keeps the
// same cadence and heading as the previous step, within tolerance.
// Human pointer motion drifts in both; scripted playback does not.
func continuesRun(prevDt int64, prevDir float64, curDt int64, curDir float64, timingTol, directionTol float64) bool {
	if prevDt <= 0 || curDt <= 0 {
		return false
	}
	drift := math.Abs(float64(curDt-prevDt)) / float64(prevDt)
	if drift > timingTol {
		return false
	}
	return math.Abs(angleDiff(curDir, prevDir)) <= directionTol
}

func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	}
	if d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// intervalRegularity returns 0..1 where 1 is perfectly uniform
// spacing. Computed as 1 - min(cv^2, 1) over the deltas.
func intervalRegularity(deltas []int64) float64 {
	if len(deltas) < 2 {
		return 0
	}
	var sum float64
	for _, d := range deltas {
		if d <= 0 {
			return 0
		}
		sum += float64(d)
	}
	mean := sum / float64(len(deltas))

	var variance float64
	for _, d := range deltas {
		diff := float64(d) - mean
		variance += diff * diff
	}
	variance /= float64(len(deltas))

	cv := math.Sqrt(variance) / mean
	return 1 - math.Min(cv*cv, 1)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

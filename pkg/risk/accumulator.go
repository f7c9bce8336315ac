package risk

import (
	"math"

	"github.com/ExamTrust/ProctorGate/pkg/domain/securityevent"
)

// Assessment is the outcome of scoring one event.
type Assessment struct {
	Delta float64
	Flags []string
	Score float64
}

// Accumulator maintains the running risk state for one session. It is
// not safe for concurrent use; the session registry serializes all
// calls through the per-session worker.
type Accumulator struct {
	cfg Config

	score float64
	tally int

	flagSet   map[string]struct{}
	flagOrder []string

	keybindHits int

	last       *pointerSample
	lastDt     int64
	lastDir    float64
	runLen     int
	runContrib float64
	deltas     []int64
}

func NewAccumulator(cfg Config) *Accumulator {
	cfg.withDefaults()
	return &Accumulator{
		cfg:     cfg,
		flagSet: make(map[string]struct{}),
	}
}

// Observe scores one event against the detectors, applies the clamped
// delta to the running score, and records the delta on the event for
// persistence.
func (a *Accumulator) Observe(ev *securityevent.Event) Assessment {
	var delta float64
	var flags []string

	switch ev.Category {
	case securityevent.CategoryPointer:
		delta, flags = a.observePointer(ev)
	case securityevent.CategoryKey:
		delta, flags = a.observeKey(ev)
	case securityevent.CategoryVisibility:
		delta, flags = a.observeVisibility(ev)
	case securityevent.CategoryAutomation:
		delta, flags = a.cfg.AutomationIncrement, []string{FlagAutomationSignal}
	}

	if ev.Category != securityevent.CategoryAutomation && ev.Payload.Synthetic {
		delta += a.cfg.AutomationIncrement
		flags = append(flags, FlagAutomationSignal)
	}

	if delta > 0 {
		a.tally++
	}
	for _, f := range flags {
		a.raise(f)
	}

	a.score = clampScore(a.score + delta)
	ev.RiskDelta = delta

	return Assessment{Delta: delta, Flags: flags, Score: a.score}
}

// Decay lowers the score by one tick's worth, never below the floor.
// Called by the registry on its maintenance cadence.
func (a *Accumulator) Decay() {
	a.score = clampScore(math.Max(a.score-a.cfg.DecayPerTick, a.cfg.DecayFloor))
}

func (a *Accumulator) Score() float64 {
	return a.score
}

func (a *Accumulator) Tally() int {
	return a.tally
}

// Flags returns every flag raised over the session's lifetime, in
// first-raised order.
func (a *Accumulator) Flags() []string {
	out := make([]string, len(a.flagOrder))
	copy(out, a.flagOrder)
	return out
}

func (a *Accumulator) raise(flag string) {
	if _, ok := a.flagSet[flag]; ok {
		return
	}
	a.flagSet[flag] = struct{}{}
	a.flagOrder = append(a.flagOrder, flag)
}

// observePointer tracks runs of machine-regular motion. A run is a
// streak of steps with near-identical cadence and heading; once it
// outlasts what a human hand produces, each further step adds risk up
// to a per-run cap. Non-positive timestamp deltas break the run and
// contribute nothing.
func (a *Accumulator) observePointer(ev *securityevent.Event) (float64, []string) {
	sample := pointerSample{x: ev.Payload.X, y: ev.Payload.Y, ts: ev.ClientTimestamp}

	if a.last == nil {
		a.last = &sample
		return 0, nil
	}

	dt := sample.ts - a.last.ts
	if dt <= 0 {
		a.resetRun()
		a.last = &sample
		return 0, nil
	}

	dir := math.Atan2(sample.y-a.last.y, sample.x-a.last.x)

	if a.lastDt > 0 && continuesRun(a.lastDt, a.lastDir, dt, dir, a.cfg.TimingVarianceMax, a.cfg.DirectionVarianceMax) {
		a.runLen++
	} else {
		a.runLen = 1
		a.runContrib = 0
	}

	a.lastDt = dt
	a.lastDir = dir
	a.last = &sample

	a.deltas = append(a.deltas, dt)
	if len(a.deltas) > a.cfg.WindowSize {
		a.deltas = a.deltas[1:]
	}

	var delta float64
	var flags []string

	if a.runLen >= a.cfg.LinearMinRun {
		delta = math.Min(a.cfg.LinearPerSample, a.cfg.LinearCap-a.runContrib)
		if delta < 0 {
			delta = 0
		}
		a.runContrib += delta
		flags = append(flags, FlagLinearMotion)
	}

	if len(a.deltas) >= a.cfg.LinearMinRun && intervalRegularity(a.deltas) > 1-a.cfg.TimingVarianceMax {
		flags = append(flags, FlagUniformTiming)
	}

	return delta, flags
}

// observeKey applies diminishing returns per repeated prohibited
// chord, so spam cannot ride one detector to suspension, while every
// hit still moves the score by at least the configured minimum.
func (a *Accumulator) observeKey(ev *securityevent.Event) (float64, []string) {
	if !disallowedCombo(ev.Payload.Key, ev.Payload.Modifiers) {
		return 0, nil
	}

	delta := a.cfg.KeybindIncrement * math.Pow(a.cfg.KeybindDecay, float64(a.keybindHits))
	if delta < a.cfg.KeybindMinIncrement {
		delta = a.cfg.KeybindMinIncrement
	}
	a.keybindHits++

	return delta, []string{FlagProhibitedKeybind}
}

func (a *Accumulator) observeVisibility(ev *securityevent.Event) (float64, []string) {
	if !ev.Payload.Hidden || ev.Payload.DurationMs < a.cfg.MinVisibilityLossMs {
		return 0, nil
	}

	seconds := float64(ev.Payload.DurationMs) / 1000
	delta := math.Min(a.cfg.VisibilityPerSecond*seconds, a.cfg.VisibilityCap)

	return delta, []string{FlagVisibilityLoss}
}

func (a *Accumulator) resetRun() {
	a.runLen = 0
	a.runContrib = 0
	a.lastDt = 0
	a.lastDir = 0
}

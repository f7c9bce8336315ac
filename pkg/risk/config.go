package risk

// Config tunes the detectors and the score dynamics. Zero values are
// replaced with defaults calibrated for a one second pointer sampling
// cadence on the client.
type Config struct {
	WindowSize           int
	AlertThreshold       float64
	SuspendThreshold     float64
	DecayPerTick         float64
	DecayFloor           float64
	KeybindIncrement     float64
	KeybindDecay         float64
	KeybindMinIncrement  float64
	LinearMinRun         int
	LinearPerSample      float64
	LinearCap            float64
	MinVisibilityLossMs  int64
	VisibilityPerSecond  float64
	VisibilityCap        float64
	AutomationIncrement  float64
	TimingVarianceMax    float64
	DirectionVarianceMax float64
}

func (c *Config) withDefaults() {
	if c.WindowSize == 0 {
		c.WindowSize = 32
	}
	if c.AlertThreshold == 0 {
		c.AlertThreshold = 30
	}
	if c.SuspendThreshold == 0 {
		c.SuspendThreshold = 85
	}
	if c.DecayPerTick == 0 {
		c.DecayPerTick = 2
	}
	if c.KeybindIncrement == 0 {
		c.KeybindIncrement = 4
	}
	if c.KeybindDecay == 0 {
		c.KeybindDecay = 0.75
	}
	if c.KeybindMinIncrement == 0 {
		c.KeybindMinIncrement = 1
	}
	if c.LinearMinRun == 0 {
		c.LinearMinRun = 8
	}
	if c.LinearPerSample == 0 {
		c.LinearPerSample = 1.5
	}
	if c.LinearCap == 0 {
		c.LinearCap = 40
	}
	if c.MinVisibilityLossMs == 0 {
		c.MinVisibilityLossMs = 2000
	}
	if c.VisibilityPerSecond == 0 {
		c.VisibilityPerSecond = 2
	}
	if c.VisibilityCap == 0 {
		c.VisibilityCap = 10
	}
	if c.AutomationIncrement == 0 {
		c.AutomationIncrement = 15
	}
	if c.TimingVarianceMax == 0 {
		c.TimingVarianceMax = 0.15
	}
	if c.DirectionVarianceMax == 0 {
		c.DirectionVarianceMax = 0.1
	}
}

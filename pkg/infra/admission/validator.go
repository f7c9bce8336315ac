package admission

import (
	"strings"

	"github.com/ExamTrust/ProctorGate/pkg/domain/fingerprint"
	"github.com/avct/uasurfer"
)

const (
	FlagAutomationUA        = "automation-user-agent"
	FlagWebdriver           = "webdriver"
	FlagAutomationProps     = "automation-properties"
	FlagVisualImplausible   = "implausible-visuals"
	FlagThinInventory       = "thin-inventory"
	FlagHardwareImplausible = "implausible-hardware"
	FlagScreenImplausible   = "implausible-screen"
	FlagUniformHandshake    = "uniform-handshake-timing"
)

var automationUAMarkers = []string{
	"headlesschrome", "phantomjs", "electron", "selenium",
	"puppeteer", "playwright", "bot", "crawl", "spider",
	"python", "curl", "wget", "java", "go-http",
}

// Result is the admission contribution for one connection attempt.
type Result struct {
	Score float64
	Flags []string
}

func (r Result) Flagged(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Validator scores a client fingerprint for automation likelihood.
// Score is pure and deterministic: the same fingerprint always yields
// the same result, and nothing is persisted.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Score evaluates each signal independently and sums the bounded
// contributions into a 0..100 total.
func (v *Validator) Score(fp *fingerprint.Client) Result {
	var result Result

	add := func(points float64, flag string) {
		if points <= 0 {
			return
		}
		result.Score += points
		result.Flags = append(result.Flags, flag)
	}

	add(v.scoreUserAgent(fp), FlagAutomationUA)
	if fp.Webdriver {
		add(20, FlagWebdriver)
	}
	add(v.scoreAutomationProps(fp), FlagAutomationProps)
	add(v.scoreVisuals(fp), FlagVisualImplausible)
	add(v.scoreInventory(fp), FlagThinInventory)
	add(v.scoreHardware(fp), FlagHardwareImplausible)
	add(v.scoreScreen(fp), FlagScreenImplausible)
	add(v.scoreHandshakeTiming(fp), FlagUniformHandshake)

	if result.Score > 100 {
		result.Score = 100
	}
	return result
}

func (v *Validator) scoreUserAgent(fp *fingerprint.Client) float64 {
	ua := strings.ToLower(strings.TrimSpace(fp.UserAgent))
	if ua == "" {
		return 20
	}

	score := 0.0
	for _, marker := range automationUAMarkers {
		if strings.Contains(ua, marker) {
			score = 20
			break
		}
	}

	parsed := uasurfer.Parse(fp.UserAgent)
	if parsed.Browser.Name == uasurfer.BrowserUnknown {
		score += 5
	}
	if parsed.DeviceType == uasurfer.DeviceUnknown {
		score += 5
	}
	if parsed.IsBot() {
		score = 25
	}

	if score > 25 {
		score = 25
	}
	return score
}

func (v *Validator) scoreAutomationProps(fp *fingerprint.Client) float64 {
	score := 0.0
	for _, present := range fp.AutomationProps {
		if present {
			score += 5
		}
	}
	if score > 15 {
		score = 15
	}
	return score
}

func (v *Validator) scoreVisuals(fp *fingerprint.Client) float64 {
	score := 0.0
	if fp.Canvas == "" || strings.Contains(fp.Canvas, "Error") {
		score += 8
	}
	if !fp.WebGL.Supported {
		score += 7
	} else if strings.Contains(strings.ToLower(fp.WebGL.Renderer), "swiftshader") {
		// Software rendering is the common headless fallback.
		score += 4
	}
	if score > 15 {
		score = 15
	}
	return score
}

func (v *Validator) scoreInventory(fp *fingerprint.Client) float64 {
	score := 0.0
	if len(fp.Plugins) == 0 {
		score += 4
	}
	if len(fp.Fonts) < 5 {
		score += 4
	}
	if len(fp.Languages) == 0 {
		score += 4
	}
	return score
}

func (v *Validator) scoreHardware(fp *fingerprint.Client) float64 {
	score := 0.0
	if fp.HardwareConcurrency == 0 {
		score += 5
	}
	if fp.DeviceMemory == 0 {
		score += 5
	}
	return score
}

func (v *Validator) scoreScreen(fp *fingerprint.Client) float64 {
	if fp.ScreenWidth <= 0 || fp.ScreenHeight <= 0 || fp.ColorDepth <= 0 {
		return 8
	}
	// 800x600 at default depth is the stock headless viewport.
	if fp.ScreenWidth == 800 && fp.ScreenHeight == 600 {
		return 5
	}
	return 0
}

// scoreHandshakeTiming measures the regularity of the client-side
// timestamps collected during the handshake. Human environments show
// jitter; scripted ones tick like a metronome.
func (v *Validator) scoreHandshakeTiming(fp *fingerprint.Client) float64 {
	timings := fp.HandshakeTimingsMs
	if len(timings) < 3 {
		return 0
	}

	intervals := make([]float64, 0, len(timings)-1)
	for i := 1; i < len(timings); i++ {
		d := float64(timings[i] - timings[i-1])
		if d < 0 {
			return 0
		}
		intervals = append(intervals, d)
	}

	regularity := intervalRegularity(intervals)
	if regularity < 0.8 {
		return 0
	}
	return regularity * 10
}

// intervalRegularity returns 0..1 where 1 means perfectly even
// spacing, derived from the squared coefficient of variation.
func intervalRegularity(intervals []float64) float64 {
	if len(intervals) < 2 {
		return 0
	}

	sum := 0.0
	for _, interval := range intervals {
		sum += interval
	}
	mean := sum / float64(len(intervals))
	if mean == 0 {
		return 0
	}

	variance := 0.0
	for _, interval := range intervals {
		diff := interval - mean
		variance += diff * diff
	}
	variance /= float64(len(intervals))

	cv := variance / (mean * mean)
	if cv > 1 {
		cv = 1
	}
	return 1 - cv
}

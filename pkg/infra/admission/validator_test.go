package admission_test

import (
	"testing"

	"github.com/ExamTrust/ProctorGate/pkg/domain/fingerprint"
	"github.com/ExamTrust/ProctorGate/pkg/infra/admission"
	"github.com/stretchr/testify/assert"
)

func humanFingerprint() *fingerprint.Client {
	return &fingerprint.Client{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Platform:            "Win32",
		Languages:           []string{"en-US", "en"},
		Plugins:             []string{"PDF Viewer", "Chrome PDF Plugin"},
		Fonts:               []string{"Arial", "Verdana", "Georgia", "Tahoma", "Courier New", "Times New Roman"},
		HardwareConcurrency: 8,
		DeviceMemory:        16,
		ScreenWidth:         1920,
		ScreenHeight:        1080,
		ColorDepth:          24,
		Canvas:              "4f7d2a91",
		WebGL:               fingerprint.WebGL{Supported: true, Vendor: "NVIDIA Corporation", Renderer: "GeForce RTX"},
		HandshakeTimingsMs:  []int64{0, 30, 190, 260, 470, 520},
	}
}

func TestScore_HumanEnvironmentScoresLow(t *testing.T) {
	validator := admission.NewValidator()

	result := validator.Score(humanFingerprint())

	assert.Less(t, result.Score, 20.0)
	assert.False(t, result.Flagged(admission.FlagWebdriver))
	assert.False(t, result.Flagged(admission.FlagAutomationUA))
}

func TestScore_HeadlessEnvironmentScoresHigh(t *testing.T) {
	validator := admission.NewValidator()

	result := validator.Score(&fingerprint.Client{
		UserAgent:           "Mozilla/5.0 HeadlessChrome/120.0.0.0",
		Webdriver:           true,
		AutomationProps:     map[string]bool{"cdc_adoQpoasnfa76pfcZLmcfl_Array": true, "__webdriver_evaluate": true, "__selenium_unwrapped": true},
		HardwareConcurrency: 0,
		DeviceMemory:        0,
		ScreenWidth:         800,
		ScreenHeight:        600,
		ColorDepth:          24,
		HandshakeTimingsMs:  []int64{0, 50, 100, 150, 200},
	})

	assert.Equal(t, 100.0, result.Score)
	assert.True(t, result.Flagged(admission.FlagAutomationUA))
	assert.True(t, result.Flagged(admission.FlagWebdriver))
	assert.True(t, result.Flagged(admission.FlagAutomationProps))
	assert.True(t, result.Flagged(admission.FlagVisualImplausible))
	assert.True(t, result.Flagged(admission.FlagThinInventory))
	assert.True(t, result.Flagged(admission.FlagHardwareImplausible))
	assert.True(t, result.Flagged(admission.FlagScreenImplausible))
	assert.True(t, result.Flagged(admission.FlagUniformHandshake))
}

func TestScore_UniformHandshakeTimingFlagged(t *testing.T) {
	validator := admission.NewValidator()

	fp := humanFingerprint()
	fp.HandshakeTimingsMs = []int64{0, 100, 200, 300, 400, 500}

	result := validator.Score(fp)

	assert.True(t, result.Flagged(admission.FlagUniformHandshake))
	assert.InDelta(t, 10.0, result.Score, 0.01)
}

func TestScore_NegativeTimingDeltaIgnored(t *testing.T) {
	validator := admission.NewValidator()

	fp := humanFingerprint()
	fp.HandshakeTimingsMs = []int64{0, 100, 50, 300}

	result := validator.Score(fp)

	assert.False(t, result.Flagged(admission.FlagUniformHandshake))
}

func TestScore_IsDeterministic(t *testing.T) {
	validator := admission.NewValidator()
	fp := humanFingerprint()

	first := validator.Score(fp)
	second := validator.Score(fp)

	assert.Equal(t, first, second)
}

func TestScore_EmptyFingerprintIsSuspicious(t *testing.T) {
	validator := admission.NewValidator()

	result := validator.Score(&fingerprint.Client{})

	assert.GreaterOrEqual(t, result.Score, 50.0)
	assert.True(t, result.Flagged(admission.FlagThinInventory))
}

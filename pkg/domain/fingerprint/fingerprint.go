package fingerprint

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var ErrEmptyEnvironment = errors.New("empty client environment")

// WebGL holds the client's reported WebGL descriptor.
type WebGL struct {
	Supported bool   `json:"supported"`
	Vendor    string `json:"vendor,omitempty"`
	Renderer  string `json:"renderer,omitempty"`
}

// Client is the transient per-connection fingerprint derived from the
// handshake payload. It is scored once by the admission validator and
// never persisted.
type Client struct {
	UserAgent           string          `json:"user_agent"`
	Platform            string          `json:"platform,omitempty"`
	Languages           []string        `json:"languages,omitempty"`
	Plugins             []string        `json:"plugins,omitempty"`
	Fonts               []string        `json:"fonts,omitempty"`
	HardwareConcurrency int             `json:"hardware_concurrency"`
	DeviceMemory        float64         `json:"device_memory"`
	ScreenWidth         int             `json:"screen_width"`
	ScreenHeight        int             `json:"screen_height"`
	ColorDepth          int             `json:"color_depth"`
	Canvas              string          `json:"canvas,omitempty"`
	WebGL               WebGL           `json:"webgl"`
	Webdriver           bool            `json:"webdriver"`
	AutomationProps     map[string]bool `json:"automation_props,omitempty"`
	HandshakeTimingsMs  []int64         `json:"handshake_timings_ms,omitempty"`
}

// Decode parses the wire form of a fingerprint: base64-wrapped
// zlib-compressed JSON, the same envelope the monitoring client uses
// for all environment reports.
func Decode(blob string) (*Client, error) {
	if blob == "" {
		return nil, ErrEmptyEnvironment
	}

	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("invalid environment encoding: %w", err)
	}

	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid environment compression: %w", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(io.LimitReader(reader, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read environment payload: %w", err)
	}

	var client Client
	if err := json.Unmarshal(decompressed, &client); err != nil {
		return nil, fmt.Errorf("failed to parse environment payload: %w", err)
	}
	return &client, nil
}

// Encode is the inverse of Decode. The server only needs it in tests
// and tooling; the browser client produces the blob in production.
func Encode(client *Client) (string, error) {
	raw, err := json.Marshal(client)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

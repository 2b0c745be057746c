// Package protocol defines the task parameter and result types exchanged
// between the HTTP layer, the request orchestrator and the task executor.
package protocol

import (
	"strconv"
	"strings"
)

// TaskKind names the generation operation a request asks for.
type TaskKind string

const (
	TaskVideo TaskKind = "video"
	TaskImage TaskKind = "image"
)

// VideoRequest carries the parameters of one video generation.
type VideoRequest struct {
	Duration       string `json:"duration"`
	StartFramePath string `json:"start_frame_image_path"`
	Prompt         string `json:"prompt"`
}

// ImageRequest carries the parameters of one image generation.
type ImageRequest struct {
	Prompt         string   `json:"prompt"`
	StartFramePath string   `json:"start_frame_image_path,omitempty"`
	AssetPaths     []string `json:"image_assets,omitempty"`
	Resolution     string   `json:"resolution"`
	Ratio          string   `json:"ratio"`
}

const (
	DefaultResolution = "2K"
	DefaultRatio      = "16:9"
)

// Result is the tri-state outcome of a task: success with payload, or
// failure with a message and structured data. LowBalance marks the failure
// where the session's external account ran out of credits.
type Result struct {
	OK         bool           `json:"ok"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	LowBalance bool           `json:"-"`
}

// Success builds a successful result.
func Success(message string, data map[string]any) Result {
	return Result{OK: true, Message: message, Data: data}
}

// Failure builds a failed result.
func Failure(message string, data map[string]any) Result {
	return Result{Message: message, Data: data}
}

// LowBalanceFailure builds the failure that triggers session replacement.
func LowBalanceFailure(points int) Result {
	return Result{
		Message:    "insufficient credits",
		Data:       map[string]any{"points": points},
		LowBalance: true,
	}
}

// NormalizeDuration turns user input such as 5, "5" or "5s" into the
// "<n>s" label the target site uses. Unknown shapes are returned trimmed.
func NormalizeDuration(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case float64:
		return formatSeconds(int(d))
	case int:
		return formatSeconds(d)
	case string:
		raw := strings.TrimSpace(d)
		if raw == "" || strings.HasSuffix(raw, "s") {
			return raw
		}
		for _, r := range raw {
			if r < '0' || r > '9' {
				return raw
			}
		}
		return raw + "s"
	default:
		return ""
	}
}

func formatSeconds(n int) string {
	return strconv.Itoa(n) + "s"
}

// RatioForSize maps an OpenAI image size to the aspect ratio the target
// site understands. Unrecognized sizes fall back to 1:1.
func RatioForSize(size string) string {
	switch strings.TrimSpace(size) {
	case "1792x1024":
		return "16:9"
	case "1024x1792":
		return "9:16"
	case "1024x768":
		return "4:3"
	case "768x1024":
		return "3:4"
	default:
		return "1:1"
	}
}

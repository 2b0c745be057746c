package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adu4862/banana-api/protocol"
)

type videoRequest struct {
	Duration       any    `json:"duration"`
	StartFramePath string `json:"start_frame_image_path"`
	Prompt         string `json:"prompt"`
}

type imageRequest struct {
	Prompt           string   `json:"prompt"`
	StartFramePath   string   `json:"start_frame_image_path"`
	StartFrameBase64 string   `json:"start_frame_image_base64"`
	ImageAssets      []string `json:"image_assets"`
	Resolution       string   `json:"resolution"`
	Ratio            string   `json:"ratio"`
}

// missingError lists required fields that were left empty.
type missingError []string

func (m missingError) Error() string {
	return "missing parameters: " + strings.Join(m, ", ")
}

// validateVideoRequest normalizes req and checks that all fields are set.
func validateVideoRequest(req videoRequest) (protocol.VideoRequest, error) {
	out := protocol.VideoRequest{
		Duration:       protocol.NormalizeDuration(req.Duration),
		StartFramePath: strings.TrimSpace(req.StartFramePath),
		Prompt:         strings.TrimSpace(req.Prompt),
	}
	var missing missingError
	if out.Duration == "" {
		missing = append(missing, "duration")
	}
	if out.StartFramePath == "" {
		missing = append(missing, "start_frame_image_path")
	}
	if out.Prompt == "" {
		missing = append(missing, "prompt")
	}
	if len(missing) > 0 {
		return out, missing
	}
	return out, nil
}

var validResolutions = map[string]bool{"1K": true, "2K": true, "4K": true}

// validateImageRequest checks prompt and the optional resolution. Base64
// fields are left for the handler to decode.
func validateImageRequest(req imageRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return missingError{"prompt"}
	}
	if r := strings.TrimSpace(req.Resolution); r != "" && !validResolutions[strings.ToUpper(r)] {
		return fmt.Errorf("resolution must be one of 1K, 2K, 4K")
	}
	if len(req.ImageAssets) > 10 {
		return fmt.Errorf("image_assets must not exceed 10 entries")
	}
	return nil
}

// assetsFromUser reads image_assets smuggled through the OpenAI "user"
// field, either as {"image_assets":[...]} or as a bare JSON array. Any
// other value is an ordinary user identifier and yields nothing.
func assetsFromUser(user string) []string {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil
	}
	var wrapped struct {
		ImageAssets []string `json:"image_assets"`
	}
	if err := json.Unmarshal([]byte(user), &wrapped); err == nil {
		return wrapped.ImageAssets
	}
	var list []string
	if err := json.Unmarshal([]byte(user), &list); err == nil {
		return list
	}
	return nil
}

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/adu4862/banana-api/protocol"
)

// openAIImageRequest is the provider's request plus the start frame
// extension some clients send alongside it.
type openAIImageRequest struct {
	openai.ImageRequest
	StartFrameBase64 string `json:"start_frame_image_base64"`
}

// handleOpenAIImage serves the OpenAI-compatible image endpoint. n and
// response_format are ignored: one image is generated and returned by URL.
func (s *Server) handleOpenAIImage(w http.ResponseWriter, r *http.Request) {
	var body openAIImageRequest
	if err := s.decodeJSONBody(w, r, &body); err != nil {
		status := http.StatusBadRequest
		if isBodyTooLarge(err) {
			status = http.StatusRequestEntityTooLarge
		}
		writeOpenAIError(w, status, "invalid_parameter", "invalid_request_error", "invalid json: "+err.Error(), "")
		return
	}

	prompt := strings.TrimSpace(body.Prompt)
	if prompt == "" {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_parameter", "invalid_request_error",
			"Missing required parameters: prompt", "prompt")
		return
	}

	size := body.Size
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}
	req := protocol.ImageRequest{
		Prompt:     prompt,
		Resolution: protocol.DefaultResolution,
		Ratio:      protocol.RatioForSize(size),
	}

	files := s.newUploads()
	defer files.cleanup()

	if b64 := strings.TrimSpace(body.StartFrameBase64); b64 != "" {
		path, err := files.save(b64)
		if err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid_parameter", "invalid_request_error",
				err.Error(), "start_frame_image_base64")
			return
		}
		req.StartFramePath = path
	}
	for _, ref := range assetsFromUser(body.User) {
		path, err := files.resolve(strings.TrimSpace(ref))
		if err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid_parameter", "invalid_request_error",
				err.Error(), "user")
			return
		}
		req.AssetPaths = append(req.AssetPaths, path)
	}

	out, err := s.manager.GenerateImage(r.Context(), req)
	if err != nil {
		s.logger.Error("openai image generation", "request_id", requestID(r.Context()), "error", err)
		writeOpenAITaskError(w, err)
		return
	}

	url, _ := out.Data["image_url"].(string)
	w.Header().Set("X-Task-ID", out.TaskID)
	writeJSON(w, http.StatusOK, openai.ImageResponse{
		Created: time.Now().Unix(),
		Data:    []openai.ImageResponseDataInner{{URL: url}},
	})
}

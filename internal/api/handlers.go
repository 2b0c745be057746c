package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/adu4862/banana-api/protocol"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	email, err := s.manager.Register(r.Context())
	if err != nil {
		s.logger.Error("register", "request_id", requestID(r.Context()), "error", err)
		writeAPIError(w, err)
		return
	}
	writeSuccess(w, "login succeeded", map[string]any{"email": email})
}

func (s *Server) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	var body videoRequest
	if err := s.decodeJSONBody(w, r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	req, err := validateVideoRequest(body)
	if err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	out, err := s.manager.GenerateVideo(r.Context(), req)
	if err != nil {
		s.logger.Error("generate video", "request_id", requestID(r.Context()), "error", err)
		writeAPIError(w, err)
		return
	}
	w.Header().Set("X-Task-ID", out.TaskID)
	writeSuccess(w, out.Message, out.Data)
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var body imageRequest
	if err := s.decodeJSONBody(w, r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	if err := validateImageRequest(body); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	files := s.newUploads()
	defer files.cleanup()

	req := protocol.ImageRequest{
		Prompt:         strings.TrimSpace(body.Prompt),
		StartFramePath: strings.TrimSpace(body.StartFramePath),
		Resolution:     strings.ToUpper(strings.TrimSpace(body.Resolution)),
		Ratio:          strings.TrimSpace(body.Ratio),
	}
	if b64 := strings.TrimSpace(body.StartFrameBase64); b64 != "" {
		path, err := files.save(b64)
		if err != nil {
			writeValidationError(w, err.Error(), map[string]any{"param": "start_frame_image_base64"})
			return
		}
		req.StartFramePath = path
	}
	for i, ref := range body.ImageAssets {
		path, err := files.resolve(strings.TrimSpace(ref))
		if err != nil {
			writeValidationError(w, err.Error(), map[string]any{"param": "image_assets", "index": i})
			return
		}
		req.AssetPaths = append(req.AssetPaths, path)
	}

	out, err := s.manager.GenerateImage(r.Context(), req)
	if err != nil {
		s.logger.Error("generate image", "request_id", requestID(r.Context()), "error", err)
		writeAPIError(w, err)
		return
	}
	w.Header().Set("X-Task-ID", out.TaskID)
	writeSuccess(w, out.Message, out.Data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.manager.Status()
	writeSuccess(w, "ok", map[string]any{
		"size":   st.Size,
		"active": st.Active,
		"busy":   st.Busy,
		"slots":  st.Slots,
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.manager.GetTask(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeSuccess(w, "ok", map[string]any{"task": t})
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// listLimit reads ?limit=, defaulting to 50 and capped at 500.
func listLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxListLimit), nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		writeValidationError(w, err.Error(), map[string]any{"param": "limit"})
		return
	}
	tasks, err := s.manager.ListTasks(limit)
	if err != nil {
		s.logger.Error("list tasks", "request_id", requestID(r.Context()), "error", err)
		writeAPIError(w, err)
		return
	}
	writeSuccess(w, "ok", map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		writeValidationError(w, err.Error(), map[string]any{"param": "limit"})
		return
	}
	accounts, err := s.manager.ListAccounts(limit)
	if err != nil {
		s.logger.Error("list accounts", "request_id", requestID(r.Context()), "error", err)
		writeAPIError(w, err)
		return
	}
	writeSuccess(w, "ok", map[string]any{"accounts": accounts, "count": len(accounts)})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Ping(); err != nil {
		s.logger.Warn("health check: store unreachable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeValidationError(w, "index must be an integer", nil)
		return
	}
	if err := s.manager.Close(r.Context(), index); err != nil {
		writeAPIError(w, err)
		return
	}
	writeSuccess(w, "session closed", map[string]any{"index": index})
}

func (s *Server) handleCloseAll(w http.ResponseWriter, r *http.Request) {
	s.manager.CloseAll(r.Context())
	writeSuccess(w, "all sessions closed", nil)
}

// writeBodyError answers a body that could not be decoded: 413 when it
// hit the size limit, 400 otherwise.
func writeBodyError(w http.ResponseWriter, err error) {
	if isBodyTooLarge(err) {
		writeEnvelopeError(w, http.StatusRequestEntityTooLarge, ErrCodeBodyTooLarge, "request body too large: "+err.Error(), nil)
		return
	}
	writeValidationError(w, "invalid json: "+err.Error(), nil)
}

// isBodyTooLarge reports whether err came from the body size limit.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

package api

import (
	"encoding/json"
	"net/http"
)

// Base64 images inflate requests well past a plain JSON payload.
const defaultMaxBodyBytes int64 = 20 * 1024 * 1024

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

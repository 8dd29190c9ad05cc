package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"atc-insights-go/internal/pipeline"
	"atc-insights-go/internal/types"
)

const multipartMemory = 10 << 20

type scoreRequest struct {
	Transcript string `json:"transcript"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": rootMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "transcribe")

	if r.ContentLength > s.cfg.MaxUploadBytes {
		reqLog.WithField("content_length", r.ContentLength).Warn("upload too large")
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			reqLog.WithField("limit_bytes", tooLarge.Limit).Warn("upload too large")
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		reqLog.WithField("error", err.Error()).Warn("invalid multipart body")
		writeError(w, http.StatusBadRequest, "expected multipart/form-data body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		reqLog.Warn("missing audio field")
		writeError(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()

	reqLog = reqLog.WithField("filename", header.Filename).WithField("size", header.Size)
	reqLog.Info("transcribe request received")

	res, err := s.proc.Process(r.Context(), pipeline.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "score")

	var req scoreRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		reqLog.WithField("error", err.Error()).Warn("invalid score request")
		writeError(w, http.StatusBadRequest, "expected JSON body {\"transcript\": \"...\"}")
		return
	}

	res, err := s.proc.ProcessTranscript(r.Context(), req.Transcript)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StatusCode maps a pipeline error to its HTTP status.
func StatusCode(err error) int {
	if errors.Is(err, pipeline.ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	writeError(w, StatusCode(err), err.Error())
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, types.ErrorResponse{
		Error:  strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

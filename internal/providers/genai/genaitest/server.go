// Package genaitest provides an in-process fake of the Gemini Files and
// generateContent endpoints for tests.
package genaitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// GenerateRequest is the decoded body of a generateContent call.
type GenerateRequest struct {
	Model    string
	Contents []struct {
		Role  string `json:"role"`
		Parts []Part `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string          `json:"responseMimeType"`
		ResponseSchema   json.RawMessage `json:"responseSchema"`
	} `json:"generationConfig"`
}

// Part is one prompt part as sent on the wire.
type Part struct {
	Text     string `json:"text,omitempty"`
	FileData *struct {
		MimeType string `json:"mimeType"`
		FileURI  string `json:"fileUri"`
	} `json:"fileData,omitempty"`
}

// Texts returns the text parts of the first content entry.
func (r GenerateRequest) Texts() []string {
	var out []string
	for _, c := range r.Contents {
		for _, p := range c.Parts {
			if p.Text != "" {
				out = append(out, p.Text)
			}
		}
	}
	return out
}

// FileURIs returns the file references of the request.
func (r GenerateRequest) FileURIs() []string {
	var out []string
	for _, c := range r.Contents {
		for _, p := range c.Parts {
			if p.FileData != nil {
				out = append(out, p.FileData.FileURI)
			}
		}
	}
	return out
}

// Handler produces the model text for a request. A non-nil error is returned
// to the client as HTTP 500.
type Handler func(GenerateRequest) (string, error)

// Server is a fake Gemini endpoint backed by httptest.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	handler    Handler
	uploadFail map[string]bool
	pending    map[string]string
	files      map[string]string
	uploaded   []string
	deleted    []string
	requests   []GenerateRequest
	nextID     int
}

// NewServer starts a fake server that is closed when the test ends.
func NewServer(t testing.TB, handler Handler) *Server {
	t.Helper()
	s := &Server{
		handler:    handler,
		uploadFail: map[string]bool{},
		pending:    map[string]string{},
		files:      map[string]string{},
	}
	r := chi.NewRouter()
	r.Post("/upload/v1beta/files", s.startUpload)
	r.Post("/upload/v1beta/sessions/{session}", s.finishUpload)
	r.Post("/v1beta/models/{call}", s.generate)
	r.Delete("/v1beta/files/{id}", s.deleteFile)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the value for genai.Options.BaseURL.
func (s *Server) BaseURL() string { return s.URL + "/v1beta" }

// UploadURL is the value for genai.Options.UploadURL.
func (s *Server) UploadURL() string { return s.URL + "/upload/v1beta/files" }

// FailUploadsFor makes uploads whose display name equals name fail with 500.
func (s *Server) FailUploadsFor(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadFail[name] = true
}

// Uploaded returns the names of every file uploaded so far.
func (s *Server) Uploaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploaded...)
}

// Deleted returns the names of every file deleted so far.
func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// Live returns the names of files uploaded and not yet deleted.
func (s *Server) Live() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for name := range s.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Requests returns the generateContent requests received so far.
func (s *Server) Requests() []GenerateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GenerateRequest(nil), s.requests...)
}

// DisplayName returns the display name the file was uploaded with.
func (s *Server) DisplayName(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[name]
}

func (s *Server) startUpload(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Goog-Upload-Protocol") != "resumable" || r.Header.Get("X-Goog-Upload-Command") != "start" {
		writeError(w, http.StatusBadRequest, "expected resumable start")
		return
	}
	var body struct {
		File struct {
			DisplayName string `json:"display_name"`
		} `json:"file"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	if s.uploadFail[body.File.DisplayName] {
		s.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "upload rejected")
		return
	}
	s.nextID++
	session := fmt.Sprintf("%d", s.nextID)
	s.pending[session] = body.File.DisplayName
	s.mu.Unlock()
	w.Header().Set("X-Goog-Upload-URL", s.URL+"/upload/v1beta/sessions/"+session)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) finishUpload(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Goog-Upload-Command") != "upload, finalize" {
		writeError(w, http.StatusBadRequest, "expected upload, finalize")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}
	session := chi.URLParam(r, "session")
	s.mu.Lock()
	display, ok := s.pending[session]
	delete(s.pending, session)
	name := "files/f" + session
	if ok {
		s.files[name] = display
		s.uploaded = append(s.uploaded, name)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown upload session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file": map[string]any{
			"name":        name,
			"displayName": display,
			"mimeType":    r.Header.Get("Content-Type"),
			"uri":         s.BaseURL() + "/" + name,
			"state":       "ACTIVE",
		},
	})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	model, action, _ := strings.Cut(chi.URLParam(r, "call"), ":")
	if action != "generateContent" {
		writeError(w, http.StatusNotFound, "unsupported method "+action)
		return
	}
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Model = model
	s.mu.Lock()
	s.requests = append(s.requests, req)
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		writeError(w, http.StatusNotImplemented, "no handler configured")
		return
	}
	text, err := handler(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": []any{
			map[string]any{
				"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
				"finishReason": "STOP",
			},
		},
	})
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	name := "files/" + chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.files[name]
	if ok {
		delete(s.files, name)
		s.deleted = append(s.deleted, name)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

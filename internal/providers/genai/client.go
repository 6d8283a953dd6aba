package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nutriscan/internal/domain"
	"nutriscan/internal/inference"
	"nutriscan/internal/infra"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultUploadURL = "https://generativelanguage.googleapis.com/upload/v1beta/files"
	defaultModel     = "gemini-1.5-flash"
	defaultMIMEType  = "image/png"
	jsonMIMEType     = "application/json"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	UploadURL  string
	Model      string
	RunID      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the Gemini REST API: the Files API for image uploads and
// generateContent for schema constrained JSON responses.
type Client struct {
	apiKey     string
	baseURL    string
	uploadURL  string
	model      string
	runID      string
	httpClient *http.Client
	logger     *infra.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"fileData,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount   int               `json:"candidateCount,omitempty"`
	ResponseMimeType string            `json:"responseMimeType,omitempty"`
	ResponseSchema   *inference.Schema `json:"responseSchema,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiFile struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	URI         string `json:"uri"`
	State       string `json:"state,omitempty"`
}

type geminiFileEnvelope struct {
	File geminiFile `json:"file"`
}

type geminiUploadStart struct {
	File struct {
		DisplayName string `json:"display_name"`
	} `json:"file"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// StatusError is returned when Gemini answers with an HTTP error status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini status %d: %s", e.StatusCode, e.Message)
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; one with a two minute timeout is created.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("genai: api key is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	uploadURL := strings.TrimRight(opts.UploadURL, "/")
	if uploadURL == "" {
		uploadURL = defaultUploadURL
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		uploadURL:  uploadURL,
		model:      model,
		runID:      strings.TrimSpace(opts.RunID),
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Upload sends the file at path through the resumable Files API protocol and
// returns the remote handle.
func (c *Client) Upload(ctx context.Context, path string) (inference.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return inference.Asset{}, fmt.Errorf("%w: genai: read %s: %w", domain.ErrUpload, path, err)
	}
	mimeType := detectMIMEType(path)

	var start geminiUploadStart
	start.File.DisplayName = c.displayName(path)
	headers := http.Header{}
	headers.Set("X-Goog-Upload-Protocol", "resumable")
	headers.Set("X-Goog-Upload-Command", "start")
	headers.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(len(data)))
	headers.Set("X-Goog-Upload-Header-Content-Type", mimeType)
	body, err := json.Marshal(start)
	if err != nil {
		return inference.Asset{}, fmt.Errorf("%w: genai: marshal upload start: %w", domain.ErrUpload, err)
	}
	respHeaders, err := c.invokeGemini(ctx, http.MethodPost, c.uploadURL, headers, jsonMIMEType, body, nil)
	if err != nil {
		return inference.Asset{}, fmt.Errorf("%w: genai: start upload: %w", domain.ErrUpload, err)
	}
	sessionURL := respHeaders.Get("X-Goog-Upload-URL")
	if sessionURL == "" {
		return inference.Asset{}, fmt.Errorf("%w: genai: start upload: missing upload url", domain.ErrUpload)
	}

	headers = http.Header{}
	headers.Set("X-Goog-Upload-Offset", "0")
	headers.Set("X-Goog-Upload-Command", "upload, finalize")
	var envelope geminiFileEnvelope
	if _, err := c.invokeGemini(ctx, http.MethodPost, sessionURL, headers, mimeType, data, &envelope); err != nil {
		return inference.Asset{}, fmt.Errorf("%w: genai: upload bytes: %w", domain.ErrUpload, err)
	}
	file := envelope.File
	if file.Name == "" || file.URI == "" {
		return inference.Asset{}, fmt.Errorf("%w: genai: upload response missing file name or uri", domain.ErrUpload)
	}
	if file.State == "FAILED" {
		return inference.Asset{}, fmt.Errorf("%w: genai: file %s failed processing", domain.ErrUpload, file.Name)
	}

	c.logger.Debug().
		Str("file", file.Name).
		Str("mime_type", mimeType).
		Int("bytes", len(data)).
		Msg("genai: uploaded file")

	return inference.Asset{
		Name:     file.Name,
		URI:      file.URI,
		MIMEType: firstNonEmpty(file.MimeType, mimeType),
	}, nil
}

// Infer runs generateContent constrained to schema and returns the text of
// the first candidate.
func (c *Client) Infer(ctx context.Context, parts []inference.Part, schema *inference.Schema) (string, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: toGeminiParts(parts),
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   1,
			ResponseMimeType: jsonMIMEType,
			ResponseSchema:   schema,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: genai: marshal request: %w", domain.ErrInference, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	var response geminiGenerateContentResponse
	if _, err := c.invokeGemini(ctx, http.MethodPost, endpoint, nil, jsonMIMEType, body, &response); err != nil {
		return "", fmt.Errorf("%w: genai: generate content: %w", domain.ErrInference, err)
	}

	if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: genai: prompt blocked: %s", domain.ErrInference, response.PromptFeedback.BlockReason)
	}
	if len(response.Candidates) == 0 {
		return "", fmt.Errorf("%w: genai: no candidates returned", domain.ErrInference)
	}
	candidate := response.Candidates[0]
	text := candidateText(candidate)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: genai: empty response (finish reason %q)", domain.ErrInference, candidate.FinishReason)
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("finish_reason", candidate.FinishReason).
		Int("response_bytes", len(text)).
		Msg("genai: generated content")

	return text, nil
}

// Release deletes the uploaded file. A file that no longer exists counts as
// released.
func (c *Client) Release(ctx context.Context, asset inference.Asset) error {
	if asset.Name == "" {
		return nil
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(asset.Name, "/")
	_, err := c.invokeGemini(ctx, http.MethodDelete, endpoint, nil, "", nil, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("genai: delete %s: %w", asset.Name, err)
	}
	c.logger.Debug().Str("file", asset.Name).Msg("genai: deleted file")
	return nil
}

func (c *Client) invokeGemini(ctx context.Context, method, endpoint string, headers http.Header, contentType string, body []byte, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, values := range headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke gemini: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return resp.Header, &StatusError{StatusCode: resp.StatusCode, Message: apiErr.Error.Message}
		}
		return resp.Header, &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("decode gemini response: %w", err)
		}
	}
	return resp.Header, nil
}

func (c *Client) displayName(path string) string {
	name := filepath.Base(filepath.Dir(path)) + "-" + filepath.Base(path)
	if c.runID != "" {
		name = c.runID + "-" + name
	}
	return name
}

func toGeminiParts(parts []inference.Part) []geminiPart {
	out := make([]geminiPart, 0, len(parts))
	for _, p := range parts {
		if p.Asset != nil {
			out = append(out, geminiPart{FileData: &geminiFileData{
				MimeType: firstNonEmpty(p.Asset.MIMEType, defaultMIMEType),
				FileURI:  p.Asset.URI,
			}})
			continue
		}
		out = append(out, geminiPart{Text: p.Text})
	}
	return out
}

func candidateText(candidate geminiCandidate) string {
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func detectMIMEType(path string) string {
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt == "" {
		return defaultMIMEType
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	return mt
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ inference.Client = (*Client)(nil)

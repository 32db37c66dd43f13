package client

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
)

// Defaults for the hosted OpenAI transcription endpoint.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "whisper-1"
	DefaultMaxUploadMB   = 25
)

// OpenAIClient calls the audio/transcriptions endpoint. Recordings larger
// than the upload limit are split with ffmpeg and the chunk transcripts
// joined with single spaces.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxUploadMB int
	splitter    *Splitter
}

// OpenAIOption configures the OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) OpenAIOption {
	return func(c *OpenAIClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithMaxUploadMB sets the size above which recordings are split.
func WithMaxUploadMB(mb int) OpenAIOption {
	return func(c *OpenAIClient) {
		if mb > 0 {
			c.maxUploadMB = mb
		}
	}
}

// WithSplitter replaces the ffmpeg splitter.
func WithSplitter(s *Splitter) OpenAIOption {
	return func(c *OpenAIClient) { c.splitter = s }
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *OpenAIClient) { c.httpClient = hc }
}

// NewOpenAIClient creates a client authenticating with apiKey.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		apiKey:      apiKey,
		baseURL:     DefaultOpenAIBaseURL,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		maxUploadMB: DefaultMaxUploadMB,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.splitter == nil {
		c.splitter = NewSplitter()
	}
	return c
}

// Transcribe uploads audioPath, splitting it first when it is too large.
func (c *OpenAIClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*TranscriptionResult, error) {
	// Stay one MB under the hard limit; chunk sizes are estimated from duration.
	limit := int64(c.maxUploadMB-1) * 1024 * 1024
	if limit <= 0 {
		limit = int64(c.maxUploadMB) * 1024 * 1024
	}

	chunks, cleanup, err := c.splitter.Split(ctx, audioPath, limit)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	logger := logging.From(ctx)
	if len(chunks) > 1 {
		logger.Info("transcribing in chunks", "path", audioPath, "chunks", len(chunks))
	}

	texts := make([]string, 0, len(chunks))
	var language string
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(chunks) > 1 {
			logger.Debug("sending chunk", "index", i+1, "of", len(chunks))
		}
		res, err := c.send(ctx, chunk, opts)
		if err != nil {
			return nil, goerr.Wrap(err, "chunk transcription failed", goerr.V("chunk", i+1), goerr.V("path", audioPath))
		}
		texts = append(texts, strings.TrimSpace(res.Text))
		if language == "" {
			language = res.Language
		}
	}

	return &TranscriptionResult{Text: strings.Join(texts, " "), Language: language}, nil
}

func (c *OpenAIClient) send(ctx context.Context, path string, opts TranscribeOptions) (*TranscriptionResult, error) {
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	fields := map[string]string{
		"model":           model,
		"response_format": "json",
	}
	if opts.Language != "" && opts.Language != "auto" {
		fields["language"] = opts.Language
	}

	body, contentType, err := multipartFile("file", path, fields)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, goerr.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "send request", goerr.V("url", endpoint))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out openAIResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, goerr.Wrap(err, "parse JSON response")
	}
	return &TranscriptionResult{Text: out.Text, Language: out.Language, Duration: out.Duration}, nil
}

type openAIResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

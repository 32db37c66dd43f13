package client

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
)

// OutputFormat specifies the response format from the transcription API.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// WhisperASRClient implements TranscriptionClient for onerahmet/openai-whisper-asr-webservice.
type WhisperASRClient struct {
	baseURL    string
	httpClient *http.Client
	output     OutputFormat
}

// WhisperASROption configures the WhisperASRClient.
type WhisperASROption func(*WhisperASRClient)

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) WhisperASROption {
	return func(c *WhisperASRClient) {
		c.httpClient.Timeout = d
	}
}

// WithOutputFormat sets the response format (text or json).
func WithOutputFormat(format OutputFormat) WhisperASROption {
	return func(c *WhisperASRClient) {
		c.output = format
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) WhisperASROption {
	return func(c *WhisperASRClient) {
		c.httpClient = client
	}
}

// NewWhisperASRClient creates a new client for the whisper-asr-webservice.
func NewWhisperASRClient(baseURL string, opts ...WhisperASROption) *WhisperASRClient {
	c := &WhisperASRClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		output:     OutputFormatJSON,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe posts the recording as the audio_file form field to /asr.
func (c *WhisperASRClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*TranscriptionResult, error) {
	body, contentType, err := multipartFile("audio_file", audioPath, nil)
	if err != nil {
		return nil, err
	}

	reqURL, err := c.buildURL(opts)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid whisper-asr URL", goerr.V("url", c.baseURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, goerr.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "send request", goerr.V("url", reqURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	return c.parseResponse(resp.Body)
}

func (c *WhisperASRClient) buildURL(opts TranscribeOptions) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/asr"
	}

	q := u.Query()
	q.Set("output", string(c.output))
	if opts.Language != "" && opts.Language != "auto" {
		q.Set("language", opts.Language)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *WhisperASRClient) parseResponse(body io.Reader) (*TranscriptionResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, goerr.Wrap(err, "read response")
	}

	if c.output == OutputFormatText {
		return &TranscriptionResult{Text: strings.TrimSpace(string(data))}, nil
	}

	var resp whisperASRResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, goerr.Wrap(err, "parse JSON response")
	}

	return &TranscriptionResult{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
	}, nil
}

type whisperASRResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// multipartFile builds a form with the file at path under field plus any
// extra plain fields.
func multipartFile(field, path string, fields map[string]string) (*bytes.Buffer, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", goerr.Wrap(err, "open audio file", goerr.V("path", path))
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", goerr.Wrap(err, "write form field", goerr.V("field", k))
		}
	}

	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return nil, "", goerr.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", goerr.Wrap(err, "copy audio data", goerr.V("path", path))
	}
	if err := writer.Close(); err != nil {
		return nil, "", goerr.Wrap(err, "close multipart writer")
	}
	return &buf, writer.FormDataContentType(), nil
}

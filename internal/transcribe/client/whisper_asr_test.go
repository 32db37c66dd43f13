package client_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/client"
	"github.com/m-mizutani/gt"
)

// asrRequest is what the fake webservice saw.
type asrRequest struct {
	path     string
	query    url.Values
	fileName string
	payload  string
}

func newASRServer(t *testing.T, status int, body string) (*httptest.Server, *asrRequest) {
	t.Helper()
	got := &asrRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.query = r.URL.Query()
		if f, hdr, err := r.FormFile("audio_file"); err == nil {
			data, _ := io.ReadAll(f)
			got.fileName, got.payload = hdr.Filename, string(data)
			f.Close()
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func writeASRAudio(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	gt.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestWhisperASR_JSONResponse(t *testing.T) {
	srv, got := newASRServer(t, http.StatusOK, `{"text":"  Buy milk on the way home.\n","language":"en"}`)
	audio := writeASRAudio(t, "Groceries.m4a", "fake audio")

	res, err := client.NewWhisperASRClient(srv.URL).Transcribe(context.Background(), audio,
		client.TranscribeOptions{Language: "en"})
	gt.NoError(t, err)

	gt.Equal(t, res.Text, "Buy milk on the way home.")
	gt.Equal(t, res.Language, "en")
	gt.Equal(t, got.path, "/asr")
	gt.Equal(t, got.query.Get("output"), "json")
	gt.Equal(t, got.query.Get("language"), "en")
	gt.Equal(t, got.fileName, "Groceries.m4a")
	gt.Equal(t, got.payload, "fake audio")
}

func TestWhisperASR_TextResponse(t *testing.T) {
	srv, got := newASRServer(t, http.StatusOK, "\n plain words \n")
	audio := writeASRAudio(t, "memo.m4a", "x")

	c := client.NewWhisperASRClient(srv.URL, client.WithOutputFormat(client.OutputFormatText))
	res, err := c.Transcribe(context.Background(), audio, client.TranscribeOptions{})
	gt.NoError(t, err)

	gt.Equal(t, res.Text, "plain words")
	gt.Equal(t, got.query.Get("output"), "text")
}

func TestWhisperASR_LanguageQuery(t *testing.T) {
	cases := map[string]struct {
		lang string
		want string
	}{
		"explicit": {lang: "de", want: "de"},
		"auto":     {lang: "auto", want: ""},
		"empty":    {lang: "", want: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, got := newASRServer(t, http.StatusOK, `{"text":"ok"}`)
			audio := writeASRAudio(t, "memo.m4a", "x")

			_, err := client.NewWhisperASRClient(srv.URL).Transcribe(context.Background(), audio,
				client.TranscribeOptions{Language: tc.lang})
			gt.NoError(t, err)
			gt.Equal(t, got.query.Get("language"), tc.want)
			gt.Equal(t, got.query.Has("language"), tc.want != "")
		})
	}
}

func TestWhisperASR_KeepsCustomPath(t *testing.T) {
	srv, got := newASRServer(t, http.StatusOK, `{"text":"ok"}`)
	audio := writeASRAudio(t, "memo.m4a", "x")

	_, err := client.NewWhisperASRClient(srv.URL+"/whisper/asr").Transcribe(context.Background(), audio,
		client.TranscribeOptions{})
	gt.NoError(t, err)
	gt.Equal(t, got.path, "/whisper/asr")
}

func TestWhisperASR_APIError(t *testing.T) {
	cases := map[string]struct {
		status    int
		temporary bool
	}{
		"server error": {status: http.StatusBadGateway, temporary: true},
		"rate limited": {status: http.StatusTooManyRequests, temporary: true},
		"bad request":  {status: http.StatusBadRequest, temporary: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := newASRServer(t, tc.status, "  model not loaded \n")
			audio := writeASRAudio(t, "memo.m4a", "x")

			_, err := client.NewWhisperASRClient(srv.URL).Transcribe(context.Background(), audio,
				client.TranscribeOptions{})

			var apiErr *client.APIError
			gt.True(t, errors.As(err, &apiErr))
			gt.Equal(t, apiErr.StatusCode, tc.status)
			gt.Equal(t, apiErr.Body, "model not loaded")
			gt.Equal(t, apiErr.Temporary(), tc.temporary)
		})
	}
}

func TestWhisperASR_BadJSON(t *testing.T) {
	srv, _ := newASRServer(t, http.StatusOK, `not json`)
	audio := writeASRAudio(t, "memo.m4a", "x")

	_, err := client.NewWhisperASRClient(srv.URL).Transcribe(context.Background(), audio,
		client.TranscribeOptions{})
	gt.Error(t, err)
}

func TestWhisperASR_MissingFile(t *testing.T) {
	srv, got := newASRServer(t, http.StatusOK, `{"text":"ok"}`)

	_, err := client.NewWhisperASRClient(srv.URL).Transcribe(context.Background(),
		filepath.Join(t.TempDir(), "gone.m4a"), client.TranscribeOptions{})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, os.ErrNotExist))
	gt.Equal(t, got.path, "")
}

func TestWhisperASR_Cancelled(t *testing.T) {
	srv, _ := newASRServer(t, http.StatusOK, `{"text":"ok"}`)
	audio := writeASRAudio(t, "memo.m4a", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.NewWhisperASRClient(srv.URL).Transcribe(ctx, audio, client.TranscribeOptions{})
	gt.True(t, errors.Is(err, context.Canceled))
}

func TestWhisperASR_InvalidURL(t *testing.T) {
	audio := writeASRAudio(t, "memo.m4a", "x")

	_, err := client.NewWhisperASRClient("http://[::1").Transcribe(context.Background(), audio,
		client.TranscribeOptions{})
	gt.Error(t, err)
}

var _ client.TranscriptionClient = (*client.WhisperASRClient)(nil)

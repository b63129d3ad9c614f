package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/spec/speech"
	"github.com/HrishitaRaj/smriti-ai/common/trace"
)

const (
	defaultBatchTimeout = 60 * time.Second
	// maxBatchResponse bounds the JSON body read from the transcription
	// endpoint.
	maxBatchResponse = 1 << 20
)

// BatchTranscriber uploads recorded audio to a server-side transcription
// endpoint and returns the transcript.
type BatchTranscriber struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewBatchTranscriber targets url (e.g. "http://localhost:8000/transcribe").
// token, when non-empty, is sent as a bearer token.
func NewBatchTranscriber(url, token string) *BatchTranscriber {
	return &BatchTranscriber{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: defaultBatchTimeout},
	}
}

// Configured reports whether an endpoint is set.
func (b *BatchTranscriber) Configured() bool {
	return b != nil && b.url != ""
}

// Transcribe posts audio as multipart field "file" and decodes
// {"transcript": ...} or {"error": ...}.
func (b *BatchTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error) {
	if !b.Configured() {
		return "", fmt.Errorf("transcribe: no endpoint configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("transcribe: create part: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("transcribe: copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBatchResponse))
	if err != nil {
		return "", fmt.Errorf("transcribe: read body: %w", err)
	}

	var out speech.BatchResponse
	if jsonErr := json.Unmarshal(raw, &out); jsonErr != nil {
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("transcribe: status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("transcribe: decode response: %w", jsonErr)
	}
	if resp.StatusCode >= 400 && out.Error == "" {
		return "", fmt.Errorf("transcribe: status %d", resp.StatusCode)
	}
	if err := out.Err(); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return out.AsResult().Finals[0], nil
}

// AudioRecognizer adapts one recorded clip to the Recognizer port. The batch
// transcript is delivered as a single finalized segment.
type AudioRecognizer struct {
	Transcriber *BatchTranscriber
	Audio       []byte
	Filename    string
	ContentType string
}

// Available fails when no endpoint is configured or the clip is empty.
func (a *AudioRecognizer) Available(_ context.Context) error {
	if !a.Transcriber.Configured() {
		return fmt.Errorf("batch transcription not configured")
	}
	if len(a.Audio) == 0 {
		return fmt.Errorf("empty audio clip")
	}
	return nil
}

// Recognize uploads the clip and emits the transcript.
func (a *AudioRecognizer) Recognize(ctx context.Context, emit func(speech.Result)) error {
	text, err := a.Transcriber.Transcribe(ctx, bytes.NewReader(a.Audio), a.Filename, a.ContentType)
	if err != nil {
		return err
	}
	emit(speech.Final(text))
	return nil
}

package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrSubmissionRejected means the sheet endpoint answered with a non-2xx status.
var ErrSubmissionRejected = errors.New("submission rejected by endpoint")

// FormSink posts the flattened form to a web-app endpoint.
type FormSink struct {
	endpoint   string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewFormSink creates a sink posting to endpoint. A zero timeout defaults to 15s.
func NewFormSink(endpoint string, timeout time.Duration, log zerolog.Logger) *FormSink {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FormSink{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "form_sink").Logger(),
	}
}

func (s *FormSink) Submit(ctx context.Context, p model.SubmissionPayload) error {
	form, err := BuildForm(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post submission: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrSubmissionRejected, resp.StatusCode)
	}
	s.log.Info().Str("session_id", p.SessionID).Int("fields", len(form)).Msg("Submission posted")
	return nil
}

// Archiver stores a delivered submission for audit.
type Archiver interface {
	ArchiveSubmission(ctx context.Context, p model.SubmissionPayload) error
}

// Sink is what the session hands payloads to.
type Sink interface {
	Submit(ctx context.Context, p model.SubmissionPayload) error
}

// ArchiveSink forwards to next and archives only what next accepted. Archive
// failures are logged and never fail the delivery.
type ArchiveSink struct {
	next     Sink
	archiver Archiver
	log      zerolog.Logger
}

func NewArchiveSink(next Sink, archiver Archiver, log zerolog.Logger) *ArchiveSink {
	return &ArchiveSink{
		next:     next,
		archiver: archiver,
		log:      log.With().Str("component", "archive_sink").Logger(),
	}
}

func (s *ArchiveSink) Submit(ctx context.Context, p model.SubmissionPayload) error {
	if err := s.next.Submit(ctx, p); err != nil {
		return err
	}
	if err := s.archiver.ArchiveSubmission(ctx, p); err != nil {
		s.log.Error().Err(err).Str("session_id", p.SessionID).Msg("Failed to archive submission")
	}
	return nil
}

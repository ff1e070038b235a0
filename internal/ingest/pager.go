package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openportal/datainsight/internal/domain"
	"github.com/openportal/datainsight/internal/errs"
	"github.com/openportal/datainsight/internal/logger"
)

const (
	// MaxPages bounds the fetch loop for one ingestion run.
	MaxPages = 5

	// MaxRecords caps the accumulated record count; collection stops the
	// moment the cap is reached, truncating mid-page if necessary.
	MaxRecords = 5000

	// MaxRetries is the retry budget for rate-limited (429) responses.
	MaxRetries = 3

	// RequestTimeout is the per-request deadline for page fetches.
	RequestTimeout = 30 * time.Second

	// backoffUnit scales linearly with the attempt number on 429 retries.
	backoffUnit = 750 * time.Millisecond
)

const acceptHeader = "application/json, application/xml;q=0.9, */*;q=0.8"

// Doer issues a single HTTP request. *http.Client satisfies it; tests
// may substitute their own transport.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Pager drives the fetch loop for one connection: bounded pages, bounded
// total records, retry-with-backoff on rate limiting, and per-page format
// detection. Page N+1 is never requested before page N completes —
// the next pointer depends on the prior response.
type Pager struct {
	client  Doer
	log     *logger.Logger
	backoff time.Duration
}

// NewPager returns a Pager using client for transport. A nil client gets
// a default http.Client with the standard request timeout.
func NewPager(client Doer, log *logger.Logger) *Pager {
	if client == nil {
		client = &http.Client{Timeout: RequestTimeout}
	}
	if log == nil {
		log = logger.New(nil)
	}
	return &Pager{client: client, log: log, backoff: backoffUnit}
}

// Collect fetches up to MaxPages pages from the configured target and
// returns the accumulated records, capped at MaxRecords. Any fatal
// condition (transport failure, non-2xx status, exhausted rate-limit
// retries, unparseable payload) escapes as an error and no records are
// committed — callers keep the previous summary authoritative.
func (p *Pager) Collect(ctx context.Context, cfg domain.ConnectionConfig) ([]*domain.Record, error) {
	params := requestParams(cfg)
	target := joinURL(cfg.BaseURL, cfg.Path)
	nextURL := target

	collected := make([]*domain.Record, 0)

	for page := 0; page < MaxPages && nextURL != ""; page++ {
		// Static params ride only on requests against the original
		// target; later pages carry their query folded into the URL or
		// merged by the resolver.
		reqURL := nextURL
		if nextURL == target {
			reqURL = withQuery(nextURL, params)
		}

		resp, err := p.fetch(ctx, reqURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, errs.Status(resp.StatusCode,
				fmt.Sprintf("source returned %s for %s", resp.Status, reqURL))
		}

		pageRecords, next, err := p.extractPage(resp, cfg.DataFormat)
		if err != nil {
			return nil, err
		}

		p.log.With().
			Str("url", reqURL).
			Int("page", page+1).
			Int("records", len(pageRecords)).
			Logger().
			Debug("page extracted")

		collected = append(collected, pageRecords...)
		if len(collected) >= MaxRecords {
			collected = collected[:MaxRecords]
			break
		}

		nextURL, params = resolveNext(next, resp, cfg.BaseURL, params)
	}

	return collected, nil
}

// extractPage detects the page's format independently of earlier pages
// (content-type may change between pages) and extracts its records.
// Unknown formats get a best-effort JSON parse that fails hard.
func (p *Pager) extractPage(resp *Response, hint domain.Format) ([]*domain.Record, any, error) {
	switch Detect(resp.ContentType(), hint) {
	case domain.FormatJSON:
		payload, err := domain.DecodeJSON(resp.Body)
		if err != nil {
			return nil, nil, errs.Wrap(errs.ErrKindUnsupportedFormat, "invalid JSON payload", err)
		}
		records, next := ExtractJSON(payload)
		return records, next, nil

	case domain.FormatXML:
		records, err := ExtractXML(string(resp.Body))
		if err != nil {
			return nil, nil, err
		}
		return records, nil, nil

	default:
		payload, err := domain.DecodeJSON(resp.Body)
		if err != nil {
			return nil, nil, errs.Wrap(errs.ErrKindUnsupportedFormat,
				"unsupported content type for ingestion", err)
		}
		records, next := ExtractJSON(payload)
		return records, next, nil
	}
}

// fetch issues one GET, retrying up to MaxRetries times with linear
// backoff when the source rate-limits. Once the budget is exhausted the
// rate-limited response itself is returned so its status surfaces to the
// caller rather than being silently swallowed.
func (p *Pager) fetch(ctx context.Context, rawURL string) (*Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := p.get(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= MaxRetries {
			return resp, nil
		}

		wait := p.backoff * time.Duration(attempt+1)
		p.log.With().Str("url", rawURL).Int("attempt", attempt+1).Logger().
			Warn("rate limited, backing off")

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.ErrKindTimeout, "ingestion cancelled", ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (p *Pager) get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid request URL", err)
	}
	req.Header.Set("Accept", acceptHeader)

	res, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.ErrKindTimeout, "request timed out or was cancelled", err)
		}
		return nil, errs.Wrap(errs.ErrKindTransport, "request failed", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindTransport, "reading response body failed", err)
	}

	return &Response{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Header:     res.Header,
		Body:       body,
		RequestURL: res.Request.URL,
	}, nil
}

// requestParams flattens the connection's static parameters and injects
// the API key parameter when configured.
func requestParams(cfg domain.ConnectionConfig) []domain.QueryParam {
	params := make([]domain.QueryParam, 0, len(cfg.QueryParams)+1)
	params = append(params, cfg.QueryParams...)
	if cfg.APIKeyName != "" && cfg.APIKeyValue != "" {
		params = append(params, domain.QueryParam{Name: cfg.APIKeyName, Value: cfg.APIKeyValue})
	}
	return params
}

// maskSecret replaces the API key value in params with a placeholder so
// URLs reported back to callers never carry the secret.
func maskSecret(params []domain.QueryParam, cfg domain.ConnectionConfig) []domain.QueryParam {
	if cfg.APIKeyName == "" || cfg.APIKeyValue == "" {
		return params
	}
	masked := make([]domain.QueryParam, len(params))
	copy(masked, params)
	for i := range masked {
		if masked[i].Name == cfg.APIKeyName && masked[i].Value == cfg.APIKeyValue {
			masked[i].Value = "***"
		}
	}
	return masked
}

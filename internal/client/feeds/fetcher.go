// Package feeds keeps external calendar data fresh: one periodic task per
// configured source fetches through a collaborator interface and feeds the
// event merge state. The HTTP fetcher only moves bytes and hands them to an
// injected parser.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/common"
	"github.com/sethvargo/go-retry"
)

// Fetcher retrieves the events of one calendar source.
type Fetcher interface {
	Fetch(ctx context.Context, source models.CalendarSource) ([]models.CalendarEvent, error)
}

// ParseFunc turns a raw feed body into events. Provided by the ICS-parsing
// collaborator.
type ParseFunc func(sourceID string, body []byte) ([]models.CalendarEvent, error)

// HTTPFetcher fetches feed bodies over HTTP and delegates parsing. Transient
// failures are retried in place with capped exponential backoff; the
// periodic refresher then simply sees one fetch succeed or fail per tick.
type HTTPFetcher struct {
	http  *http.Client
	parse ParseFunc
}

func NewHTTPFetcher(parse ParseFunc) *HTTPFetcher {
	return &HTTPFetcher{
		http:  &http.Client{Timeout: 15 * time.Second},
		parse: parse,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, source models.CalendarSource) ([]models.CalendarEvent, error) {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	var body []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
		if err != nil {
			return err
		}

		resp, err := f.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", common.ErrUnavailable, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("feed %s: status %d", source.ID, resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("feed %s: status %d", source.ID, resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.parse == nil {
		return nil, errors.New("no parser configured")
	}
	return f.parse(source.ID, body)
}

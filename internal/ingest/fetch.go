package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tobitamap/weather/internal/grid"
	"github.com/tobitamap/weather/internal/httputil"
	"github.com/tobitamap/weather/internal/metrics"
)

// Vendor is an upstream feed that contributes fields to a grid.
type Vendor interface {
	Name() string
	URL() string
	Parse(body []byte, g *grid.Grid) error
}

// FetchResult describes one successful upstream response.
type FetchResult struct {
	Vendor       string
	URL          string
	HTTPStatus   int
	ResponseSize int
	Duration     time.Duration
	Body         []byte
}

// Fetch performs a single GET against url. Any status other than 200 is
// returned as a *FetchError; there is no retry.
func Fetch(ctx context.Context, client *http.Client, vendor, url string) (*FetchResult, error) {
	start := time.Now()
	result, err := fetch(ctx, client, vendor, url)
	elapsed := time.Since(start)

	metrics.VendorFetchLatency.WithLabelValues(vendor).Observe(elapsed.Seconds())
	status := "error"
	var fe *FetchError
	switch {
	case result != nil:
		status = strconv.Itoa(result.HTTPStatus)
	case errors.As(err, &fe) && fe.Status != 0:
		status = strconv.Itoa(fe.Status)
	}
	metrics.VendorFetchTotal.WithLabelValues(vendor, status).Inc()

	if result != nil {
		result.Duration = elapsed
	}
	return result, err
}

func fetch(ctx context.Context, client *http.Client, vendor, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Vendor: vendor, URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", httputil.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{Vendor: vendor, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Vendor: vendor, URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Vendor: vendor, URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	return &FetchResult{
		Vendor:       vendor,
		URL:          url,
		HTTPStatus:   resp.StatusCode,
		ResponseSize: len(body),
		Body:         body,
	}, nil
}

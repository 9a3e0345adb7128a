package boundary

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/breitband-atlas/coverage-cli/internal/config"
	"github.com/breitband-atlas/coverage-cli/internal/model"
)

// FetchCells downloads the cell FeatureCollection from the configured
// feature service. Requests are rate limited so repeated runs do not
// hammer the upstream service.
func FetchCells(ctx context.Context, cfg config.BoundaryConfig) ([]model.Cell, error) {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	if err := limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "boundary: rate limit wait")
	}

	client := &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ServiceURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: build request for %s", cfg.ServiceURL)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: fetch %s", cfg.ServiceURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("boundary: feature service returned %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: read feature service response")
	}
	return FromGeoJSON(data, cfg.Schema)
}

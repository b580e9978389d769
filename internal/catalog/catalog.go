// Package catalog lists the downloadable bulk-data resources of a CKAN
// dataset package, such as the CIPO patent archives on open.canada.ca.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/nben/cipofetch/internal/util"
)

// ErrUnavailable indicates the registry could not be reached or its response
// could not be decoded. The batch run aborts; nothing is downloaded.
var ErrUnavailable = errors.New("catalog unavailable")

// Resource describes one downloadable archive advertised by the catalog.
// Size and LastModified form the change signature used by the fetch cache;
// either may be absent for catalogs that do not report them.
type Resource struct {
	URL          string
	Filename     string
	Format       string
	Size         int64
	LastModified string
}

// Signature is the change-detection proxy for the remote resource.
func (r Resource) Signature() string {
	return fmt.Sprintf("%s|%d|%s", r.URL, r.Size, r.LastModified)
}

// Client queries a CKAN registry for dataset resources.
type Client struct {
	baseURL   string
	datasetID string
	client    *http.Client
	logger    *slog.Logger
}

func NewClient(baseURL, datasetID string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		datasetID: datasetID,
		client:    util.DefaultHTTPClient(),
		logger:    logger,
	}
}

// ckan package_show response shape, trimmed to the fields we consume.
type packageShowResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Title     string `json:"title"`
		Resources []struct {
			URL          string `json:"url"`
			Name         string `json:"name"`
			Format       string `json:"format"`
			Size         int64  `json:"size"`
			LastModified string `json:"last_modified"`
		} `json:"resources"`
	} `json:"result"`
}

// List fetches the dataset's resource descriptors. ZIP resources only; the
// weekly CIPO package also advertises data dictionaries and HTML pages which
// the pipeline cannot ingest. Fails with ErrUnavailable; no internal retries.
func (c *Client) List(ctx context.Context) ([]Resource, error) {
	endpoint := fmt.Sprintf("%s/action/package_show?id=%s", c.baseURL, url.QueryEscape(c.datasetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := util.FetchAll(c.client, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var decoded packageShowResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode package_show response: %w", ErrUnavailable, err)
	}
	if !decoded.Success {
		return nil, fmt.Errorf("%w: package_show reported failure for dataset %s", ErrUnavailable, c.datasetID)
	}

	resources := make([]Resource, 0, len(decoded.Result.Resources))
	for _, raw := range decoded.Result.Resources {
		if raw.URL == "" {
			continue
		}
		format := strings.ToLower(raw.Format)
		if format != "zip" && !strings.HasSuffix(strings.ToLower(raw.URL), ".zip") {
			c.logger.Debug("Skipping non-archive resource.", slog.String("name", raw.Name), slog.String("format", raw.Format))
			continue
		}
		filename := path.Base(raw.URL)
		if filename == "." || filename == "/" {
			filename = raw.Name
		}
		resources = append(resources, Resource{
			URL:          raw.URL,
			Filename:     filename,
			Format:       format,
			Size:         raw.Size,
			LastModified: raw.LastModified,
		})
	}

	c.logger.Info("Catalog listing complete.",
		slog.String("dataset", decoded.Result.Title),
		slog.Int("archive_resources", len(resources)))
	return resources, nil
}

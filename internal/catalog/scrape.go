package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/nben/cipofetch/internal/util"
)

// ScrapeListings collects .zip links from plain HTML directory listings.
// Some CIPO mirrors expose the weekly archives as an autoindex page rather
// than through the CKAN API; descriptors found this way carry no size or
// last-modified signature, so the fetch cache treats them as always stale
// unless a cached copy already exists.
func (c *Client) ScrapeListings(ctx context.Context, listingURLs []string) ([]Resource, error) {
	seen := make(map[string]bool)
	var resources []Resource
	var scrapeErr error

	for _, baseURL := range listingURLs {
		select {
		case <-ctx.Done():
			return resources, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		default:
		}

		l := c.logger.With(slog.String("listing_url", baseURL))
		base, err := url.Parse(baseURL)
		if err != nil {
			l.Warn("Skip: parse listing URL failed.", "error", err)
			scrapeErr = fmt.Errorf("parse listing %s: %w", baseURL, err)
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			l.Warn("Skip: create request failed.", "error", err)
			scrapeErr = fmt.Errorf("create request %s: %w", baseURL, err)
			continue
		}
		body, err := util.FetchAll(c.client, req)
		if err != nil {
			l.Warn("Skip: GET failed.", "error", err)
			scrapeErr = fmt.Errorf("scrape GET %s: %w", baseURL, err)
			continue
		}
		root, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			l.Warn("Skip: parse HTML failed.", "error", err)
			scrapeErr = fmt.Errorf("scrape parse HTML %s: %w", baseURL, err)
			continue
		}

		newLinks := 0
		for _, href := range parseLinks(root, ".zip") {
			abs, err := base.Parse(href)
			if err != nil {
				l.Warn("Failed to resolve relative link.", "link", href, "error", err)
				continue
			}
			absURL := abs.String()
			if seen[absURL] {
				continue
			}
			seen[absURL] = true
			resources = append(resources, Resource{
				URL:      absURL,
				Filename: path.Base(abs.Path),
				Format:   "zip",
			})
			newLinks++
		}
		l.Debug("Listing scraped.", slog.Int("new_links", newLinks))
	}

	if len(resources) == 0 && scrapeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, scrapeErr)
	}
	return resources, nil
}

// parseLinks returns href attribute values ending with suffix.
func parseLinks(n *html.Node, suffix string) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(nd *html.Node) {
		if nd.Type == html.ElementNode && nd.Data == "a" {
			for _, a := range nd.Attr {
				if a.Key == "href" && strings.HasSuffix(strings.ToLower(a.Val), suffix) {
					out = append(out, a.Val)
				}
			}
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

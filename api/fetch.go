package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/helix-tools/etl-go/types"
)

// PaginationParam is the query parameter carrying the cursor.
const PaginationParam = "pagination_token"

// FetchAll retrieves every record of a collection, following
// pagination.next_token until it is null or empty. params are sent on the
// first request only; later requests carry just the cursor.
//
// Any failed page aborts the whole fetch with a *FetchError.
func (c *Client) FetchAll(ctx context.Context, rawURL string, token types.Token, params url.Values) ([]types.Record, error) {
	ctx, span := tracer.Start(ctx, "FetchAll")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	var (
		records []types.Record
		seen    map[string]struct{}
		query   = params
	)
	if c.detectCursorCycles {
		seen = make(map[string]struct{})
	}

	for pageNum := 1; ; pageNum++ {
		if c.maxPages > 0 && pageNum > c.maxPages {
			err := &FetchError{URL: rawURL, Page: pageNum, Err: fmt.Errorf("%w: limit is %d", ErrTooManyPages, c.maxPages)}
			span.SetStatus(codes.Error, "page limit exceeded")
			return nil, err
		}

		page, err := c.fetchPage(ctx, rawURL, token, query, pageNum)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			return nil, err
		}

		records = append(records, page.Data...)
		slog.DebugContext(ctx, "fetched page", "url", rawURL, "page", pageNum, "records", len(page.Data))

		next := page.Next()
		if next == "" {
			span.SetAttributes(attribute.Int("pages", pageNum), attribute.Int("records", len(records)))
			return records, nil
		}

		if seen != nil {
			if _, dup := seen[next]; dup {
				span.SetStatus(codes.Error, "cursor cycle")
				return nil, &FetchError{URL: rawURL, Page: pageNum, Err: fmt.Errorf("%w: %q", ErrCursorCycle, next)}
			}
			seen[next] = struct{}{}
		}

		query = url.Values{PaginationParam: []string{next}}
	}
}

// fetchPage issues one authorized GET and decodes the page envelope.
func (c *Client) fetchPage(ctx context.Context, rawURL string, token types.Token, query url.Values, pageNum int) (types.Page, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+string(token))
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}

	res, err := req.Get(rawURL)
	if err != nil {
		return types.Page{}, &FetchError{URL: rawURL, Page: pageNum, Err: err}
	}

	if !res.IsSuccess() {
		return types.Page{}, &FetchError{URL: rawURL, Page: pageNum, Err: newAPIError(res)}
	}

	page, err := decodePage(res.Body())
	if err != nil {
		return types.Page{}, fmt.Errorf("page %d of %s: %w", pageNum, rawURL, err)
	}

	return page, nil
}

var (
	errMissingData       = errors.New(`response has no "data" array`)
	errMissingPagination = errors.New(`response has no "pagination" object`)
)

// decodePage requires both the data array and the pagination object; a null
// or absent next_token is the last page.
func decodePage(body []byte) (types.Page, error) {
	var envelope struct {
		Data       *[]types.Record   `json:"data"`
		Pagination *types.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return types.Page{}, fmt.Errorf("failed to decode page: %w", err)
	}

	if envelope.Data == nil {
		return types.Page{}, errMissingData
	}
	if envelope.Pagination == nil {
		return types.Page{}, errMissingPagination
	}

	return types.Page{
		Data:       *envelope.Data,
		Pagination: *envelope.Pagination,
	}, nil
}

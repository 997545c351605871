package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/eve-marketwatch/pkg/stats"
)

// PageResult is the outcome of one successful page fetch.
type PageResult[T any] struct {
	// Page is the pagination state the result was fetched with.
	Page *Page

	// MaxPages is the total page count reported by the response.
	MaxPages int

	// Changed is false for a 304 Not Modified response, in which case
	// Items is empty and the caller should fall back to Page.Cached.
	Changed bool

	Items []T
}

// PageFunc fetches one page. It is called once per attempt.
type PageFunc[T any] func(ctx context.Context, s *Session, number int) (PageResult[T], error)

// FetchPaged walks a paginated resource from page 1, calling visit for each
// page in order. The page bound is the count reported by the first page; a
// later page may lower it but never raise it. Each page is attempted up to
// the retry budget. A terminal failure (ErrAbandoned) or exhausted budget
// (ErrRetryExhausted) stops the walk and is returned. An error returned by
// visit also stops the walk.
func FetchPaged[T any](ctx context.Context, s *Session, category string, fetch PageFunc[T], visit func(PageResult[T]) error) error {
	startTime := time.Now()
	defer func() {
		s.stats.Update(stats.Request, stats.Delta{Elapsed: time.Since(startTime)})
	}()

	maxPages := 0
	for number := 1; ; number++ {
		var result PageResult[T]
		err := s.retry(ctx, category, func() error {
			var err error
			result, err = fetch(ctx, s, number)
			return err
		})
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("category", category).
				Int("page", number).
				Msg("Paged fetch stopped")
			return err
		}

		if maxPages == 0 || result.MaxPages < maxPages {
			maxPages = result.MaxPages
		}

		if err := visit(result); err != nil {
			return err
		}
		if number >= maxPages {
			return nil
		}
	}
}

// CollectPaged is FetchPaged in buffering mode: it returns the items of every
// changed page, in page order.
func CollectPaged[T any](ctx context.Context, s *Session, category string, fetch PageFunc[T]) ([]T, error) {
	var items []T
	err := FetchPaged(ctx, s, category, fetch, func(result PageResult[T]) error {
		items = append(items, result.Items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// pageRequest describes the endpoint of a paginated resource.
type pageRequest struct {
	category  string
	endpoint  string
	params    url.Values
	needsAuth bool
}

// pageIndex extracts the IDs an unchanged page reports from the items of
// its last changed response.
type pageIndex[T any] func(items []T) (ids, locationIDs []int64)

// fetchPage performs one conditional attempt at a page using the tag stored
// on page. A failed attempt clears the tag so the next attempt fetches the
// full body. On a changed response the new tag is stored together with the
// IDs index extracts.
func fetchPage[T any](ctx context.Context, s *Session, req pageRequest, page *Page, index pageIndex[T]) (PageResult[T], error) {
	params := url.Values{}
	for k, v := range req.params {
		params[k] = v
	}
	params.Set("page", strconv.Itoa(page.Number()))

	resp, err := s.get(ctx, req.category, req.endpoint, params, page.ETag(), req.needsAuth)
	if err != nil {
		page.invalidate()
		s.stats.Update(stats.Request, stats.Delta{Total: 1, Failure: 1})
		return PageResult[T]{}, err
	}

	result := PageResult[T]{Page: page, MaxPages: resp.maxPages()}
	if resp.notModified() {
		s.stats.Update(stats.Request, stats.Delta{Total: 1})
		return result, nil
	}

	if err := json.Unmarshal(resp.body, &result.Items); err != nil {
		page.invalidate()
		s.stats.Update(stats.Request, stats.Delta{Total: 1, Failure: 1})
		return PageResult[T]{}, &ESIError{StatusCode: resp.status, ErrorClass: ErrorClassServer, Message: "decode page", Err: err}
	}
	if index != nil {
		ids, locationIDs := index(result.Items)
		page.update(resp.etag, ids, locationIDs)
	} else {
		page.setETag(resp.etag)
	}
	result.Changed = true
	s.stats.Update(stats.Request, stats.Delta{Total: 1, Changed: 1})
	return result, nil
}

// FetchUnpaged fetches a single resource with the retry budget and decodes
// it into a T.
func FetchUnpaged[T any](ctx context.Context, s *Session, category, endpoint string, needsAuth bool) (T, error) {
	var out T

	startTime := time.Now()
	defer func() {
		s.stats.Update(stats.Request, stats.Delta{Elapsed: time.Since(startTime)})
	}()

	err := s.retry(ctx, category, func() error {
		resp, err := s.get(ctx, category, endpoint, nil, "", needsAuth)
		if err != nil {
			s.stats.Update(stats.Request, stats.Delta{Total: 1, Failure: 1})
			return err
		}
		if resp.notModified() {
			s.stats.Update(stats.Request, stats.Delta{Total: 1})
			return nil
		}

		var decoded T
		if err := json.Unmarshal(resp.body, &decoded); err != nil {
			s.stats.Update(stats.Request, stats.Delta{Total: 1, Failure: 1})
			return &ESIError{StatusCode: resp.status, ErrorClass: ErrorClassServer, Message: "decode " + endpoint, Err: err}
		}
		out = decoded
		s.stats.Update(stats.Request, stats.Delta{Total: 1, Changed: 1})
		return nil
	})
	if err != nil {
		return out, err
	}
	return out, nil
}

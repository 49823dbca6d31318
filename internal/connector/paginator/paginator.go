// Package paginator walks page/per_page endpoints of the stats API one page
// at a time.
package paginator

import (
	"context"
	"encoding/json"
	"iter"
	"net/url"
	"strconv"

	"github.com/crimson-sun/vidstat/internal/model"
)

const (
	DefaultStartPage = 1
	DefaultPerPage   = 100
)

// Getter issues one GET and returns a body that is valid JSON.
// *httpclient.Client satisfies it.
type Getter interface {
	GetRaw(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithStartPage sets the first page requested. Default: 1.
func WithStartPage(n int) Option {
	return func(p *Paginator) {
		if n > 0 {
			p.startPage = n
		}
	}
}

// WithPerPage sets the per_page parameter. Default: 100.
func WithPerPage(n int) Option {
	return func(p *Paginator) {
		if n > 0 {
			p.perPage = n
		}
	}
}

// Paginator drives repeated calls against one paged endpoint.
type Paginator struct {
	client    Getter
	path      string
	startPage int
	perPage   int
}

// New creates a Paginator for path.
func New(client Getter, path string, opts ...Option) *Paginator {
	p := &Paginator{
		client:    client,
		path:      path,
		startPage: DefaultStartPage,
		perPage:   DefaultPerPage,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pages returns a lazy sequence of pages. Each iteration step issues exactly
// one request. The sequence ends after the first page holding fewer than
// PerPage items, after a body that is not a JSON array, or after the first
// error, which is yielded with a zero Page. Stopping the range loop early
// issues no further requests.
func (p *Paginator) Pages(ctx context.Context) iter.Seq2[model.Page, error] {
	return func(yield func(model.Page, error) bool) {
		for n := p.startPage; ; n++ {
			q := url.Values{
				"page":     {strconv.Itoa(n)},
				"per_page": {strconv.Itoa(p.perPage)},
			}

			body, err := p.client.GetRaw(ctx, p.path, q)
			if err != nil {
				yield(model.Page{}, err)
				return
			}

			page := model.Page{Number: n, Body: body}
			var items []json.RawMessage
			if err := json.Unmarshal(body, &items); err == nil {
				page.List = true
				page.Items = make([]model.Item, len(items))
				for i, it := range items {
					page.Items[i] = model.Item(it)
				}
			}

			if !yield(page, nil) {
				return
			}
			if !page.List || len(page.Items) < p.perPage {
				return
			}
		}
	}
}

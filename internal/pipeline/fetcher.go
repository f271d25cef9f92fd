package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/fidoo"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/metrics"
	"google.golang.org/api/iterator"
)

// Fetcher turns the paginated read capability into record sequences.
type Fetcher struct {
	reader   Reader
	pageSize int
}

// NewFetcher creates a fetcher. pageSize is clamped to the API maximum.
func NewFetcher(reader Reader, pageSize int) *Fetcher {
	if pageSize <= 0 || pageSize > fidoo.MaxPageSize {
		pageSize = fidoo.MaxPageSize
	}
	return &Fetcher{reader: reader, pageSize: pageSize}
}

// Fetch returns a lazy iterator over every record of def. since is sent as
// the watermark filter only for incremental-capable objects.
func (f *Fetcher) Fetch(ctx context.Context, def domain.ObjectDefinition, since *time.Time, filters map[string]any) *RecordIterator {
	merged := make(map[string]any, len(filters)+1)
	for k, v := range filters {
		merged[k] = v
	}
	if since != nil && def.Incremental {
		merged[def.WatermarkFilter()] = since.UTC().Format(time.RFC3339)
	}

	return &RecordIterator{
		ctx:    ctx,
		reader: f.reader,
		object: def.Name,
		req: fidoo.ReadRequest{
			Endpoint: def.Endpoint,
			Limit:    f.pageSize,
			Filters:  merged,
		},
	}
}

// RecordIterator yields records page by page. Each call to Next may issue
// one request; nothing is fetched ahead. It is not restartable: use
// OffsetToken with a fresh request to resume.
type RecordIterator struct {
	ctx    context.Context
	reader Reader
	object string
	req    fidoo.ReadRequest
	parent *domain.ParentRef

	buf  []map[string]any
	pos  int
	done bool
	err  error

	pages   int
	fetched int
}

// Next returns the next record, iterator.Done at the end, or the fetch error.
func (it *RecordIterator) Next() (domain.Record, error) {
	for {
		if it.err != nil {
			return domain.Record{}, it.err
		}
		if it.pos < len(it.buf) {
			rec := it.buf[it.pos]
			it.pos++
			it.fetched++
			return domain.Record{Fields: rec, Parent: it.parent}, nil
		}
		if it.done {
			return domain.Record{}, iterator.Done
		}
		it.fetchPage()
	}
}

func (it *RecordIterator) fetchPage() {
	page, err := it.reader.Read(it.ctx, it.req)
	if err != nil {
		it.err = fmt.Errorf("fetching %s page %d: %w", it.object, it.pages+1, err)
		return
	}

	it.pages++
	it.buf = page.Records
	it.pos = 0
	metrics.PagesFetchedTotal.WithLabelValues(it.object).Inc()
	metrics.RecordsFetchedTotal.WithLabelValues(it.object).Add(float64(len(page.Records)))

	log := logger.FromContext(it.ctx)
	log.Debug().
		Str("endpoint", it.req.Endpoint).
		Int("page", it.pages).
		Int("records", len(page.Records)).
		Bool("complete", page.Complete).
		Msg("Fetched page")

	switch {
	case page.Complete, len(page.Records) == 0, page.NextOffsetToken == "":
		it.done = true
	case page.NextOffsetToken == it.req.OffsetToken:
		log.Warn().
			Str("endpoint", it.req.Endpoint).
			Str("offset_token", page.NextOffsetToken).
			Msg("API repeated the offset token, stopping pagination")
		it.done = true
	default:
		it.req.OffsetToken = page.NextOffsetToken
	}
}

// Pages returns the number of pages fetched so far.
func (it *RecordIterator) Pages() int { return it.pages }

// Fetched returns the number of records yielded so far.
func (it *RecordIterator) Fetched() int { return it.fetched }

// OffsetToken returns the token of the next page still to be requested.
func (it *RecordIterator) OffsetToken() string { return it.req.OffsetToken }

// drain collects every remaining record.
func (it *RecordIterator) drain() ([]domain.Record, error) {
	var out []domain.Record
	for {
		rec, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// Package polygon derives quote snapshots from Polygon.io daily aggregates.
package polygon

import (
	"context"
	"fmt"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// lookback covers weekends and market holidays when looking for the last two
// daily bars.
const lookback = 10 * 24 * time.Hour

// AggsIterator is the subset of the polygon aggregate iterator used here.
type AggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// AggsAPI lists aggregate bars.
type AggsAPI interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) AggsIterator
}

type restAPI struct {
	client *polygon.Client
}

func (r restAPI) ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) AggsIterator {
	return r.client.ListAggs(ctx, params, options...)
}

// Client builds snapshots from the last two daily closes of each symbol.
type Client struct {
	api AggsAPI
	now func() time.Time
}

// NewClient creates a client for the Polygon REST API.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("polygon: api key is required")
	}
	return NewClientWithAPI(restAPI{client: polygon.New(apiKey)}), nil
}

// NewClientWithAPI creates a client over an existing aggregates API.
func NewClientWithAPI(api AggsAPI) *Client {
	return &Client{api: api, now: time.Now}
}

// Quote returns the latest daily close as price and the one before it as the
// previous close.
func (c *Client) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	end := c.now().UTC()
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(end.Add(-lookback)),
		To:         models.Millis(end),
	}.WithLimit(50)

	iter := c.api.ListAggs(ctx, params)

	var last, prev models.Agg
	n := 0
	for iter.Next() {
		prev = last
		last = iter.Item()
		n++
	}
	if err := iter.Err(); err != nil {
		return domain.Quote{}, fmt.Errorf("polygon: list aggs %s: %w", symbol, err)
	}
	if n == 0 {
		return domain.Quote{}, fmt.Errorf("polygon: %s: %w", symbol, domain.ErrUnknownSymbol)
	}

	price := decimal.NewFromFloat(last.Close)
	prevClose := decimal.Zero
	if n > 1 {
		prevClose = decimal.NewFromFloat(prev.Close)
	}
	return domain.Quote{
		Symbol:        symbol,
		Price:         price,
		ChangePercent: domain.ChangePercent(price, prevClose),
		PreviousClose: prevClose,
		UpdatedAt:     time.Time(last.Timestamp).UTC(),
	}, nil
}

// Snapshot fetches quotes for all symbols concurrently. Any failure fails the
// whole snapshot with domain.ErrFeedUnavailable.
func (c *Client) Snapshot(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	quotes := make([]domain.Quote, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, sym := range symbols {
		g.Go(func() error {
			q, err := c.Quote(gctx, sym)
			if err != nil {
				return err
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
	}
	return quotes, nil
}

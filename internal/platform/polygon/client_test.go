package polygon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

type fakeIterator struct {
	aggs  []models.Agg
	index int
	err   error
}

func (f *fakeIterator) Next() bool {
	if f.index < len(f.aggs) {
		f.index++
		return true
	}
	return false
}

func (f *fakeIterator) Item() models.Agg {
	if f.index > 0 && f.index <= len(f.aggs) {
		return f.aggs[f.index-1]
	}
	return models.Agg{}
}

func (f *fakeIterator) Err() error {
	return f.err
}

type fakeAPI struct {
	mu       sync.Mutex
	bySymbol map[string]*fakeIterator
	params   []*models.ListAggsParams
}

func (f *fakeAPI) ListAggs(_ context.Context, params *models.ListAggsParams, _ ...models.RequestOption) AggsIterator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, params)
	if it, ok := f.bySymbol[params.Ticker]; ok {
		return it
	}
	return &fakeIterator{}
}

type PolygonClientTestSuite struct {
	suite.Suite
}

func TestPolygonClientSuite(t *testing.T) {
	suite.Run(t, new(PolygonClientTestSuite))
}

func bar(day int, close float64) models.Agg {
	return models.Agg{
		Timestamp: models.Millis(time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)),
		Close:     close,
	}
}

func (s *PolygonClientTestSuite) TestNewClientRequiresKey() {
	_, err := NewClient("")
	s.Error(err)
}

func (s *PolygonClientTestSuite) TestQuoteUsesLastTwoCloses() {
	api := &fakeAPI{bySymbol: map[string]*fakeIterator{
		"AAPL": {aggs: []models.Agg{bar(2, 140), bar(3, 150), bar(4, 165)}},
	}}
	client := NewClientWithAPI(api)

	q, err := client.Quote(context.Background(), "AAPL")
	s.Require().NoError(err)

	s.True(q.Price.Equal(decimal.NewFromInt(165)))
	s.True(q.PreviousClose.Equal(decimal.NewFromInt(150)))
	s.True(q.ChangePercent.Equal(decimal.NewFromInt(10)))
	s.Equal(4, q.UpdatedAt.Day())

	s.Require().Len(api.params, 1)
	s.Equal(models.Day, api.params[0].Timespan)
	s.Equal(1, api.params[0].Multiplier)
}

func (s *PolygonClientTestSuite) TestQuoteSingleBar() {
	api := &fakeAPI{bySymbol: map[string]*fakeIterator{"MSFT": {aggs: []models.Agg{bar(4, 300)}}}}

	q, err := NewClientWithAPI(api).Quote(context.Background(), "MSFT")
	s.Require().NoError(err)
	s.True(q.ChangePercent.IsZero())
}

func (s *PolygonClientTestSuite) TestQuoteNoBars() {
	_, err := NewClientWithAPI(&fakeAPI{}).Quote(context.Background(), "NOPE")
	s.ErrorIs(err, domain.ErrUnknownSymbol)
}

func (s *PolygonClientTestSuite) TestSnapshotIteratorError() {
	api := &fakeAPI{bySymbol: map[string]*fakeIterator{
		"AAPL": {aggs: []models.Agg{bar(3, 150), bar(4, 151)}},
		"TSLA": {err: errors.New("boom")},
	}}

	_, err := NewClientWithAPI(api).Snapshot(context.Background(), []string{"AAPL", "TSLA"})
	s.ErrorIs(err, domain.ErrFeedUnavailable)
}

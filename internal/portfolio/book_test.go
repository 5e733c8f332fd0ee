package portfolio

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type BookTestSuite struct {
	suite.Suite
	book *Book
	seq  int
}

func TestBookSuite(t *testing.T) {
	suite.Run(t, new(BookTestSuite))
}

func (s *BookTestSuite) SetupTest() {
	s.seq = 0
	s.book = NewBook(Options{})
	s.book.now = func() time.Time { return time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC) }
	s.book.newID = func() string {
		s.seq++
		return fmt.Sprintf("ord-%d", s.seq)
	}
	s.book.SetQuotes([]domain.Quote{
		{Symbol: "AAPL", Price: d("150"), PreviousClose: d("148")},
		{Symbol: "GOOGL", Price: d("2800")},
		{Symbol: "AMZN", Price: d("3300")},
		{Symbol: "MSFT", Price: d("300")},
		{Symbol: "TSLA", Price: d("250")},
	})
}

func (s *BookTestSuite) setPrice(symbol, price string) {
	s.book.ApplyTicks([]domain.Tick{{Symbol: symbol, Price: d(price)}})
}

func (s *BookTestSuite) TestInitialState() {
	s.True(s.book.Cash().Equal(d("100000")))
	s.Empty(s.book.Orders())
	s.True(s.book.Value().Equal(d("100000")))
}

func (s *BookTestSuite) TestBuyDebitsCash() {
	order, err := s.book.Buy("AAPL", 10, domain.OrderSourceUser)
	s.Require().NoError(err)

	s.Equal("ord-1", order.ID)
	s.Equal(domain.ActionBuy, order.Action)
	s.True(order.Price.Equal(d("150")))
	s.True(s.book.Cash().Equal(d("98500")))
	s.Equal(int64(10), s.book.Holdings()["AAPL"])
	s.True(s.book.RealizedPL("AAPL").Equal(d("-1500")))
}

func (s *BookTestSuite) TestSellAfterBuyLiquidates() {
	_, err := s.book.Buy("AAPL", 10, domain.OrderSourceUser)
	s.Require().NoError(err)
	s.Require().NoError(s.book.SetStopLoss("AAPL", d("140")))
	s.Require().NoError(s.book.SetInput("AAPL", domain.ActionBuy, 3))
	s.setPrice("AAPL", "160")

	_, err = s.book.Sell("AAPL", 10, domain.OrderSourceUser)
	s.Require().NoError(err)

	s.True(s.book.Cash().Equal(d("100100")))
	s.Equal(int64(0), s.book.Holdings()["AAPL"])
	s.True(s.book.RealizedPL("AAPL").Equal(d("100")))
	_, ok := s.book.StopLoss("AAPL")
	s.False(ok)
	s.Equal(int64(1), s.book.PendingQuantity("AAPL", domain.ActionBuy))
}

func (s *BookTestSuite) TestSellWithoutHoldingsIsRejected() {
	before := s.book.State()

	_, err := s.book.Sell("MSFT", 5, domain.OrderSourceUser)
	s.ErrorIs(err, domain.ErrInsufficientHoldings)
	s.Equal(before, s.book.State())
}

func (s *BookTestSuite) TestBuyBeyondCashIsRejected() {
	s.setPrice("GOOGL", "500")
	before := s.book.State()

	_, err := s.book.Buy("GOOGL", 1000, domain.OrderSourceUser)
	s.ErrorIs(err, domain.ErrInsufficientFunds)
	s.Equal(before, s.book.State())
}

func (s *BookTestSuite) TestBuyExactCashAllowed() {
	s.setPrice("MSFT", "1000")
	_, err := s.book.Buy("MSFT", 100, domain.OrderSourceUser)
	s.Require().NoError(err)
	s.True(s.book.Cash().IsZero())
}

func (s *BookTestSuite) TestPartialSellKeepsStopLoss() {
	_, err := s.book.Buy("TSLA", 5, domain.OrderSourceUser)
	s.Require().NoError(err)
	s.Require().NoError(s.book.SetStopLoss("TSLA", d("200")))

	_, err = s.book.Sell("TSLA", 2, domain.OrderSourceUser)
	s.Require().NoError(err)

	_, ok := s.book.StopLoss("TSLA")
	s.True(ok)
	s.Equal(int64(3), s.book.Holdings()["TSLA"])
}

func (s *BookTestSuite) TestInvalidQuantityAndSymbol() {
	_, err := s.book.Buy("AAPL", 0, domain.OrderSourceUser)
	s.ErrorIs(err, domain.ErrInvalidQuantity)

	_, err = s.book.Sell("AAPL", -1, domain.OrderSourceUser)
	s.ErrorIs(err, domain.ErrInvalidQuantity)

	_, err = s.book.Buy("NFLX", 1, domain.OrderSourceUser)
	s.ErrorIs(err, domain.ErrUnknownSymbol)
}

func (s *BookTestSuite) TestBuyClearsBuyInput() {
	s.Require().NoError(s.book.SetInput("AAPL", domain.ActionBuy, 4))
	s.Equal(int64(4), s.book.PendingQuantity("AAPL", domain.ActionBuy))

	_, err := s.book.Buy("AAPL", s.book.PendingQuantity("AAPL", domain.ActionBuy), domain.OrderSourceUser)
	s.Require().NoError(err)

	s.Equal(int64(4), s.book.Holdings()["AAPL"])
	s.Equal(int64(1), s.book.PendingQuantity("AAPL", domain.ActionBuy))
}

func (s *BookTestSuite) TestSetInputValidation() {
	s.ErrorIs(s.book.SetInput("NFLX", domain.ActionBuy, 1), domain.ErrUnknownSymbol)
	s.ErrorIs(s.book.SetInput("AAPL", domain.ActionSell, -2), domain.ErrInvalidQuantity)
	s.Require().NoError(s.book.SetInput("AAPL", domain.ActionSell, 2))
	s.Require().NoError(s.book.SetInput("AAPL", domain.ActionSell, 0))
	s.Equal(int64(1), s.book.PendingQuantity("AAPL", domain.ActionSell))
}

func (s *BookTestSuite) TestSetStopLossValidation() {
	s.ErrorIs(s.book.SetStopLoss("AAPL", d("0")), domain.ErrInvalidPrice)
	s.ErrorIs(s.book.SetStopLoss("NFLX", d("10")), domain.ErrUnknownSymbol)
	s.Require().NoError(s.book.SetStopLoss("AAPL", d("10")))
	s.True(s.book.ClearStopLoss("AAPL"))
	s.False(s.book.ClearStopLoss("AAPL"))
}

func (s *BookTestSuite) TestApplyTicksPreviousBaseline() {
	changed := s.book.ApplyTicks([]domain.Tick{
		{Symbol: "AAPL", Price: d("165")},
		{Symbol: "NFLX", Price: d("400")},
	})
	s.Require().Len(changed, 1)

	q, ok := s.book.Quote("AAPL")
	s.Require().True(ok)
	s.True(q.Price.Equal(d("165")))
	s.True(q.ChangePercent.Equal(d("10")))
	s.True(q.PreviousClose.Equal(d("148")))

	_, ok = s.book.Quote("NFLX")
	s.False(ok)
}

func (s *BookTestSuite) TestApplyTicksCloseBaseline() {
	book := NewBook(Options{Baseline: BaselineClose})
	book.SetQuotes([]domain.Quote{{Symbol: "AAPL", Price: d("150"), PreviousClose: d("100")}})

	book.ApplyTicks([]domain.Tick{{Symbol: "AAPL", Price: d("160")}})
	book.ApplyTicks([]domain.Tick{{Symbol: "AAPL", Price: d("120")}})

	q, _ := book.Quote("AAPL")
	s.True(q.ChangePercent.Equal(d("20")))
}

func (s *BookTestSuite) TestApplyTickCreatesMissingQuote() {
	book := NewBook(Options{})
	book.ApplyTicks([]domain.Tick{{Symbol: "MSFT", Price: d("310")}})

	q, ok := book.Quote("MSFT")
	s.Require().True(ok)
	s.True(q.ChangePercent.IsZero())
}

func (s *BookTestSuite) TestValueMarksToMarket() {
	_, err := s.book.Buy("AAPL", 10, domain.OrderSourceUser)
	s.Require().NoError(err)
	_, err = s.book.Buy("TSLA", 4, domain.OrderSourceUser)
	s.Require().NoError(err)

	s.setPrice("AAPL", "155")
	s.setPrice("TSLA", "240")

	want := s.book.Cash().Add(d("1550")).Add(d("960"))
	s.True(s.book.Value().Equal(want))
	s.True(s.book.Portfolio().Value.Equal(want))
}

func (s *BookTestSuite) TestValueMissingQuoteContributesZero() {
	cash := d("1000")
	holdings := map[string]int64{"AAPL": 3, "MSFT": 2}
	quotes := map[string]domain.Quote{"AAPL": {Symbol: "AAPL", Price: d("10")}}

	s.True(Value(cash, holdings, quotes).Equal(d("1030")))
}

func (s *BookTestSuite) TestResetKeepsQuotes() {
	_, err := s.book.Buy("AAPL", 10, domain.OrderSourceUser)
	s.Require().NoError(err)
	s.Require().NoError(s.book.SetStopLoss("AAPL", d("100")))
	s.Require().NoError(s.book.SetInput("MSFT", domain.ActionSell, 3))
	quotes := s.book.Quotes()

	s.book.Reset()

	st := s.book.State()
	s.True(st.Cash.Decimal.Equal(d("100000")))
	s.Empty(st.Orders)
	s.Empty(st.RealizedPL)
	s.Empty(st.StopLoss)
	s.Empty(st.SellInputs)
	s.Equal(quotes, st.Quotes)
}

func (s *BookTestSuite) TestStateRestoreRoundTrip() {
	_, err := s.book.Buy("AAPL", 10, domain.OrderSourceUser)
	s.Require().NoError(err)
	s.Require().NoError(s.book.SetStopLoss("AAPL", d("120")))
	st := s.book.State()

	restored := NewBook(Options{})
	restored.now = s.book.now
	restored.Restore(st)

	s.Equal(st, restored.State())
}

func (s *BookTestSuite) TestRestoreWithoutCashRebuildsFromOrders() {
	restored := NewBook(Options{})
	restored.Restore(domain.State{
		Orders: []domain.Order{
			{Symbol: "AAPL", Quantity: 10, Action: domain.ActionBuy, Price: d("150")},
			{Symbol: "AAPL", Quantity: 4, Action: domain.ActionSell, Price: d("160")},
		},
	})

	s.True(restored.Cash().Equal(d("99140")))
	s.Equal(int64(6), restored.Holdings()["AAPL"])
}

// Random order sequences never drive holdings negative and always leave cash
// equal to initial - buys + sells.
func (s *BookTestSuite) TestRandomSequencesKeepInvariants() {
	rng := rand.New(rand.NewSource(7))
	symbols := []string{"AAPL", "GOOGL", "AMZN", "MSFT", "TSLA"}

	for i := 0; i < 500; i++ {
		sym := symbols[rng.Intn(len(symbols))]
		s.setPrice(sym, fmt.Sprintf("%d.%02d", 50+rng.Intn(400), rng.Intn(100)))
		qty := int64(1 + rng.Intn(40))

		before := s.book.State()
		var err error
		if rng.Intn(2) == 0 {
			_, err = s.book.Buy(sym, qty, domain.OrderSourceUser)
		} else {
			_, err = s.book.Sell(sym, qty, domain.OrderSourceUser)
		}
		if err != nil {
			s.Equal(before.Orders, s.book.Orders())
			s.True(before.Cash.Decimal.Equal(s.book.Cash()))
		}

		for _, h := range s.book.Holdings() {
			s.GreaterOrEqual(h, int64(0))
		}
		s.False(s.book.Cash().IsNegative())
		s.True(s.book.Cash().Equal(CashFromOrders(DefaultInitialCash, s.book.Orders())))

		quotes := make(map[string]domain.Quote)
		for _, q := range s.book.Quotes() {
			quotes[q.Symbol] = q
		}
		s.True(s.book.Portfolio().Value.Equal(Value(s.book.Cash(), s.book.Holdings(), quotes)))
	}
}

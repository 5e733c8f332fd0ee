package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/notify"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printQuotes(w io.Writer, quotes []domain.Quote, currency string) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tCHANGE\tUPDATED")
	for _, q := range quotes {
		fmt.Fprintf(tw, "%s\t%s\t%s%%\t%s\n",
			q.Symbol,
			notify.FormatMoney(q.Price, currency),
			q.ChangePercent.StringFixed(2),
			formatTime(q.UpdatedAt),
		)
	}
	return tw.Flush()
}

func printPortfolio(w io.Writer, p domain.Portfolio, currency string) error {
	fmt.Fprintf(w, "Cash:      %s\n", notify.FormatMoney(p.Cash, currency))
	fmt.Fprintf(w, "Portfolio: %s\n", notify.FormatMoney(p.Value, currency))
	fmt.Fprintf(w, "Orders:    %d\n\n", p.OrderCount)

	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tHOLDING\tP/L\tSTOP-LOSS")
	for _, q := range p.Quotes {
		stop := "-"
		if sl, ok := p.StopLoss[q.Symbol]; ok && sl.IsPositive() {
			stop = notify.FormatMoney(sl, currency)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			q.Symbol,
			notify.FormatMoney(q.Price, currency),
			p.Holdings[q.Symbol],
			notify.FormatMoney(p.RealizedPL[q.Symbol], currency),
			stop,
		)
	}
	return tw.Flush()
}

func printOrders(w io.Writer, orders []domain.Order, currency string) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(w, "no orders")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tACTION\tSYMBOL\tQTY\tPRICE\tVALUE\tSOURCE")
	for _, o := range orders {
		source := string(o.Source)
		if source == "" {
			source = string(domain.OrderSourceUser)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			formatTime(o.ExecutedAt),
			o.Action,
			o.Symbol,
			o.Quantity,
			notify.FormatMoney(o.Price, currency),
			notify.FormatMoney(o.Value(), currency),
			source,
		)
	}
	return tw.Flush()
}

func printArchives(w io.Writer, infos []domain.BlobInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "no archived sessions")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "PATH\tSIZE\tMODIFIED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Path, info.Size, formatTime(info.LastModified))
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

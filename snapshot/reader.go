package snapshot

import (
	"time"

	"github.com/shopspring/decimal"

	"matchd/domain/orderbook"
)

// Source is the published side of the book registry.
type Source interface {
	OrderBook(assetPairID string) *orderbook.OrderBook
	StopBook(assetPairID string) *orderbook.StopBook
	AssetPairIDs() []string
}

type Reader struct {
	books Source
	now   func() time.Time
}

func NewReader(books Source) *Reader {
	return &Reader{
		books: books,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Book returns up to depth levels per side of one instrument. depth <= 0
// means the full book.
func (r *Reader) Book(assetPairID string, depth int) *Book {
	ob := r.books.OrderBook(assetPairID)
	b := &Book{
		AssetPairID: assetPairID,
		Taken:       r.now(),
		Bids:        ob.Levels(true, depth),
		Asks:        ob.Levels(false, depth),
		Orders:      ob.Len(),
		StopOrders:  r.books.StopBook(assetPairID).Len(),
	}
	if mid, ok := ob.MidPrice(); ok {
		b.Mid = decimal.NewNullDecimal(mid)
	}
	return b
}

// All returns a view of every instrument that ever had a book, sorted by
// asset pair.
func (r *Reader) All(depth int) []*Book {
	ids := r.books.AssetPairIDs()
	out := make([]*Book, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.Book(id, depth))
	}
	return out
}

package entity

import "github.com/shopspring/decimal"

// ReceiptLine is a fiscal receipt position. Catalog codes are used by the
// alternate regional format only.
type ReceiptLine struct {
	Quantity      int
	Name          string
	Price         decimal.Decimal
	TaxCode       string
	PaymentMethod string
	PaymentObject string
	IkpuCode      string
	PackageCode   string
	UnitCode      string
}

func (l ReceiptLine) Amount() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Receipt struct {
	Format ReceiptFormat
	Lines  []ReceiptLine
}

// Total is the sum of price times quantity over all lines.
func (r *Receipt) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.Lines {
		total = total.Add(line.Amount())
	}
	return total
}

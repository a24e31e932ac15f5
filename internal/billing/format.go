package billing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var inr = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders an amount with Indian digit grouping, e.g.
// "₹1,23,456.78". Used on notification payloads and rendered invoice
// responses; stored values stay decimal.
func FormatINR(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return inr.Sprintf("₹%v", number.Decimal(f,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

package billing

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// ComputeLine fills the amount and tax components of a line. Intrastate
// supplies split the tax equally into CGST and SGST; interstate supplies
// carry the whole tax as IGST. Rounding to 2 places happens per line,
// half up, before any totalling, so the printed lines always reconcile
// with the invoice totals.
func ComputeLine(in LineInput, interstate bool) LineItem {
	qty := decimal.NewFromInt(in.Quantity)
	gross := qty.Mul(in.UnitPrice)
	discount := gross.Mul(in.DiscountPercent).Div(hundred)
	amount := gross.Sub(discount).Round(2)

	line := LineItem{
		Type:            in.Type,
		Description:     in.Description,
		Quantity:        in.Quantity,
		UnitPrice:       in.UnitPrice,
		GSTRate:         in.GSTRate,
		DiscountPercent: in.DiscountPercent,
		LineAmount:      amount,
		ItemID:          in.ItemID,
	}
	if interstate {
		line.IGSTAmount = amount.Mul(in.GSTRate).Div(hundred).Round(2)
		return line
	}
	half := amount.Mul(in.GSTRate.Div(two)).Div(hundred).Round(2)
	line.CGSTAmount = half
	line.SGSTAmount = half
	return line
}

// Totals sums computed lines into invoice figures. Each component is the
// sum of already-rounded line values; totals are never recomputed from a
// blended rate. Discount is the gap between gross and discounted line
// amounts, so subtotal plus discount always reconciles with the gross.
func Totals(lines []LineItem) (subtotal, discount, cgst, sgst, igst, tax, total decimal.Decimal) {
	for _, line := range lines {
		gross := decimal.NewFromInt(line.Quantity).Mul(line.UnitPrice)
		discount = discount.Add(gross.Sub(line.LineAmount))
		subtotal = subtotal.Add(line.LineAmount)
		cgst = cgst.Add(line.CGSTAmount)
		sgst = sgst.Add(line.SGSTAmount)
		igst = igst.Add(line.IGSTAmount)
	}
	discount = discount.Round(2)
	tax = cgst.Add(sgst).Add(igst)
	total = subtotal.Add(tax)
	return subtotal, discount, cgst, sgst, igst, tax, total
}

// Interstate reports whether the supply crosses state lines. A missing
// customer state code is treated as local supply.
func Interstate(branchStateCode, customerStateCode string) bool {
	if customerStateCode == "" {
		return false
	}
	return branchStateCode != customerStateCode
}

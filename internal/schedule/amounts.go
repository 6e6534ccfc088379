package schedule

import (
	"github.com/shopspring/decimal"
)

// SplitAmount distributes total across count installments, rounding each to
// the currency's minor-unit precision. The last installment absorbs the
// rounding remainder so the slice always sums exactly to total. When fixed
// is non-nil every installment before the last uses the fixed amount
// instead of total/count.
func SplitAmount(total decimal.Decimal, count int, fixed *decimal.Decimal, precision int32) []decimal.Decimal {
	if count < 1 {
		return nil
	}

	per := total.Div(decimal.NewFromInt(int64(count))).Round(precision)
	if fixed != nil {
		per = fixed.Round(precision)
	}

	amounts := make([]decimal.Decimal, count)
	running := decimal.Zero
	for i := 0; i < count-1; i++ {
		amounts[i] = per
		running = running.Add(per)
	}
	amounts[count-1] = total.Sub(running)
	return amounts
}

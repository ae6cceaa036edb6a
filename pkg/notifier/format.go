package notifier

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatAmount renders an amount in minor currency units as a human-readable
// string for notification bodies, e.g. FormatAmount(4900, "USD") -> "USD 49.00".
// The minor-unit scale comes from the currency itself, so zero-decimal (JPY)
// and three-decimal (BHD) codes render correctly. Unknown currency codes fall
// back to a plain minor-unit rendering so a bad gateway payload never breaks
// alert delivery.
func FormatAmount(amount int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%d %s", amount, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	p := message.NewPrinter(language.English)
	return p.Sprintf("%v", unit.Amount(float64(amount)/math.Pow10(scale)))
}

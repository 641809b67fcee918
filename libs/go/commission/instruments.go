package commission

import "strings"

// Institutional accounts only earn commission on FX and metals.
var currencyCodes = toSet(
	"USD", "EUR", "GBP", "JPY", "CHF", "CAD", "AUD", "NZD",
	"SEK", "NOK", "DKK", "PLN", "HUF", "CZK", "TRY", "ZAR",
	"MXN", "SGD", "HKD", "CNH", "CNY", "RUB", "ILS", "THB",
)

var metalTickers = []string{
	"ALUMINIUM", "ALUMINUM", "PALLADIUM", "PLATINUM",
	"COPPER", "SILVER", "GOLD",
	"XAU", "XAG", "XPT", "XPD", "XCU", "XAL", "HG",
}

func toSet(codes ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// IsEligibleInstrument reports whether trades in symbol earn commission for
// the account class. Unknown classes are never eligible.
//
// For Institutional accounts the symbol must be a currency pair (EURUSD,
// EUR/USD, EURUSDm) or a metal, optionally quoted in a currency (XAUUSD,
// GOLD, COPPER.cash). A currency code elsewhere in the symbol is not enough,
// so BTCUSD or NOKIA are not eligible.
func IsEligibleInstrument(symbol string, class AccountClass) bool {
	switch class {
	case ClassDirect:
		return true
	case ClassInstitutional:
		s := normalizeSymbol(symbol)
		return isCurrencyPair(s) || isMetal(s)
	default:
		return false
	}
}

// normalizeSymbol upper-cases the symbol, drops a broker suffix after '.',
// and removes pair separators.
func normalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(s)
}

func isCurrency(code string) bool {
	_, ok := currencyCodes[code]
	return ok
}

// isCurrencyPair accepts BASEQUOTE with an optional single-letter account
// suffix such as EURUSDm.
func isCurrencyPair(s string) bool {
	if len(s) != 6 && len(s) != 7 {
		return false
	}
	return isCurrency(s[:3]) && isCurrency(s[3:6])
}

func isMetal(s string) bool {
	for _, m := range metalTickers {
		rest, ok := strings.CutPrefix(s, m)
		if !ok {
			continue
		}
		if rest == "" || (len(rest) >= 3 && len(rest) <= 4 && isCurrency(rest[:3])) {
			return true
		}
	}
	return false
}

package bitkub

import "strings"

// Display form (THB_BTC) to trading form (btc_thb) for the markets the bots trade.
var symbolTable = map[string]string{
	"THB_BTC":   "btc_thb",
	"THB_ETH":   "eth_thb",
	"THB_XRP":   "xrp_thb",
	"THB_ADA":   "ada_thb",
	"THB_DOGE":  "doge_thb",
	"THB_SOL":   "sol_thb",
	"THB_BNB":   "bnb_thb",
	"THB_USDT":  "usdt_thb",
	"THB_KUB":   "kub_thb",
	"THB_DOT":   "dot_thb",
	"THB_LINK":  "link_thb",
	"THB_LTC":   "ltc_thb",
	"THB_XLM":   "xlm_thb",
	"THB_MATIC": "matic_thb",
	"THB_SIX":   "six_thb",
}

// NormalizeSymbol converts a market symbol into the trading form used by the
// v3 endpoints ("THB_BTC" -> "btc_thb"). Already-normalized input is returned
// unchanged. Unknown symbols fall through to a lowercase heuristic.
func NormalizeSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	s = strings.NewReplacer("/", "_", "-", "_").Replace(s)

	if v, ok := symbolTable[strings.ToUpper(s)]; ok {
		return v
	}

	lower := strings.ToLower(s)
	parts := strings.Split(lower, "_")
	switch {
	case len(parts) == 2 && parts[0] == "thb":
		return parts[1] + "_thb"
	case len(parts) == 1 && lower != "" && lower != "thb":
		return lower + "_thb"
	default:
		return lower
	}
}

// DisplaySymbol converts any accepted form into the display form used by
// the public ticker ("btc_thb" -> "THB_BTC").
func DisplaySymbol(symbol string) string {
	parts := strings.Split(NormalizeSymbol(symbol), "_")
	if len(parts) != 2 {
		return strings.ToUpper(symbol)
	}
	return strings.ToUpper(parts[1] + "_" + parts[0])
}

// BaseCurrency returns the traded coin of a market ("THB_BTC" -> "BTC").
func BaseCurrency(symbol string) string {
	base, _, _ := strings.Cut(NormalizeSymbol(symbol), "_")
	return strings.ToUpper(base)
}

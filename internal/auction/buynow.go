package auction

import (
	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultPriceEpsilon is the tolerance for matching an offered Buy Now price.
var DefaultPriceEpsilon = decimal.RequireFromString("0.005")

// BuyNowPrice derives the instant purchase price from the live auction. premium
// is the configured step above the current bid; zero means one bid increment.
//
// Without a reserve, or with a reserve already met, the price is currentBid +
// premium. With an unmet reserve the price is the reserve itself.
func BuyNowPrice(a *domain.Auction, premium decimal.Decimal) decimal.Decimal {
	if premium.IsZero() {
		premium = a.BidIncrement
	}
	if a.ReservePrice != nil && a.CurrentBid.LessThan(*a.ReservePrice) {
		return *a.ReservePrice
	}
	return a.CurrentBid.Add(premium)
}

// PriceMatches reports whether offered equals expected within epsilon.
func PriceMatches(offered, expected, epsilon decimal.Decimal) bool {
	return offered.Sub(expected).Abs().LessThanOrEqual(epsilon)
}

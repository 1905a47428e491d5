package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of fractional digits kept for every amount.
const MoneyPlaces = 2

// Round2 rounds half away from zero to two fractional digits.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Split divides an escrowed amount into the platform charge and the owner's
// net payout. net = round2(amount - amount*rate); charge is what remains so
// that charge + net == amount exactly.
func Split(amount, rate decimal.Decimal) (charge, net decimal.Decimal) {
	net = Round2(amount.Sub(amount.Mul(rate)))
	charge = amount.Sub(net)
	return charge, net
}

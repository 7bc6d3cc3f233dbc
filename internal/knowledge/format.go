package knowledge

import (
	"fmt"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Missing stands in for absent or zero values.
const Missing = "--"

var printer = message.NewPrinter(language.English)

// Pace formats seconds per kilometre as m'ss".
func Pace(secPerKm float64) string {
	if secPerKm <= 0 {
		return Missing
	}
	s := int(secPerKm)
	return fmt.Sprintf("%d'%02d\"", s/60, s%60)
}

// Duration formats seconds as XhYYmZZs, or YmZZs under an hour.
func Duration(seconds float64) string {
	s := int(seconds)
	if s <= 0 {
		return Missing
	}
	h, m, sec := s/3600, s%3600/60, s%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	return fmt.Sprintf("%dm%02ds", m, sec)
}

// Distance formats metres as N.NNkm.
func Distance(meters float64) string {
	if meters <= 0 {
		return Missing
	}
	return fmt.Sprintf("%.2fkm", meters/1000)
}

// Date formats a YYYYMMDD integer as YYYY-MM-DD.
func Date(d int) string {
	if d <= 0 {
		return Missing
	}
	return fmt.Sprintf("%04d-%02d-%02d", d/10000, d/100%100, d%100)
}

// Number formats v without trailing zeros, or Missing when it is zero.
func Number(v float64) string {
	if v == 0 {
		return Missing
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Count formats n with thousands separators.
func Count(n int) string {
	return printer.Sprintf("%d", n)
}

// Mean formats v with prec decimals and thousands separators.
func Mean(v float64, prec int) string {
	return printer.Sprintf(fmt.Sprintf("%%.%df", prec), v)
}

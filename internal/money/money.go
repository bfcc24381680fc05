// Package money converts category balances between their numeric form and the
// formatted currency strings persisted in the ledger.
//
// All arithmetic happens on decimal.Decimal values. Strings are produced only at
// the store boundary by Format and read back with Parse.
package money

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultSymbol is the currency glyph appended to formatted amounts.
const DefaultSymbol = "₸"

// ErrInvalidAmount is returned when a display string holds no parseable number.
var ErrInvalidAmount = errors.New("invalid amount")

var half = decimal.New(5, -1)

// Codec formats and parses amounts for one locale and currency symbol.
type Codec struct {
	printer *message.Printer
	symbol  string
}

// NewCodec creates a codec for the given BCP 47 locale tag and currency symbol.
func NewCodec(locale, symbol string) (*Codec, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	if strings.TrimSpace(symbol) == "" {
		symbol = DefaultSymbol
	}
	return &Codec{
		printer: message.NewPrinter(tag),
		symbol:  symbol,
	}, nil
}

// Default is the codec used by the package level helpers.
var Default = &Codec{
	printer: message.NewPrinter(language.Russian),
	symbol:  DefaultSymbol,
}

// Symbol returns the currency glyph.
func (c *Codec) Symbol() string {
	return c.symbol
}

// Format renders d rounded to the nearest integer, grouped with the locale's
// thousands separator and suffixed with the currency symbol.
func (c *Codec) Format(d decimal.Decimal) string {
	n := Round(d).IntPart()
	return c.printer.Sprintf("%d", n) + " " + c.symbol
}

// Parse extracts the numeric value from a formatted currency string. Every rune
// other than a digit, a sign or a decimal point is discarded first.
func (c *Codec) Parse(display string) (decimal.Decimal, error) {
	return Parse(display)
}

// Round rounds half up, matching how balances have always been rounded:
// 2.5 becomes 3 and -2.5 becomes -2.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Add(half).Floor()
}

// Format renders d with the default codec.
func Format(d decimal.Decimal) string {
	return Default.Format(d)
}

// Parse is locale independent; see Codec.Parse.
func Parse(display string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range display {
		switch {
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			b.WriteRune(r)
		case r == '-' || r == '−':
			b.WriteByte('-')
		case r == '.':
			b.WriteByte('.')
		}
	}

	cleaned := b.String()
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, display)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, display)
	}
	return d, nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(display string) decimal.Decimal {
	d, err := Parse(display)
	if err != nil {
		panic(err)
	}
	return d
}

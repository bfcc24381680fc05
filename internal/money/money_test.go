package money

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain integer", in: "1000", want: "1000"},
		{name: "formatted with symbol", in: "800 ₸", want: "800"},
		{name: "nbsp grouping", in: "1 000 ₸", want: "1000"},
		{name: "space grouping", in: "12 345 678 ₸", want: "12345678"},
		{name: "negative", in: "-200 ₸", want: "-200"},
		{name: "unicode minus", in: "−50 ₸", want: "-50"},
		{name: "decimal point", in: "12.5", want: "12.5"},
		{name: "comma grouping", in: "1,234 $", want: "1234"},
		{name: "empty", in: "", wantErr: true},
		{name: "symbol only", in: "₸", wantErr: true},
		{name: "sign only", in: "- ₸", wantErr: true},
		{name: "two points", in: "1.2.3", wantErr: true},
		{name: "sign in the middle", in: "12-3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"2.4", 2},
		{"2.5", 3},
		{"-2.5", -2},
		{"-2.6", -3},
		{"199.99", 200},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Round(decimal.RequireFromString(tt.in)).IntPart())
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "800 ₸", Format(decimal.NewFromInt(800)))
	assert.Equal(t, "0 ₸", Format(decimal.Zero))
	assert.Equal(t, "-200 ₸", Format(decimal.NewFromInt(-200)))
	assert.Equal(t, "701 ₸", Format(decimal.RequireFromString("700.5")))

	large := Format(decimal.NewFromInt(1234567))
	assert.True(t, strings.HasSuffix(large, " ₸"))
	assert.Equal(t, "1234567", digitsOnly(large), "grouping must only add separators")
}

func TestCodecLocale(t *testing.T) {
	c, err := NewCodec("en", "$")
	require.NoError(t, err)

	assert.Equal(t, "1,234,567 $", c.Format(decimal.NewFromInt(1234567)))
	assert.Equal(t, "$", c.Symbol())

	got, err := c.Parse("1,234,567 $")
	require.NoError(t, err)
	assert.Equal(t, int64(1234567), got.IntPart())

	_, err = NewCodec("not a locale!", "$")
	assert.Error(t, err)

	c, err = NewCodec("ru", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSymbol, c.Symbol())
}

func TestFormatParseRoundTrip(t *testing.T) {
	values := []string{"0", "1", "-1", "999", "1000", "1000.49", "1000.5", "-1000.5", "987654321.2", "0.5"}

	for _, v := range values {
		t.Run(v, func(t *testing.T) {
			x := decimal.RequireFromString(v)

			once := Format(x)
			parsed, err := Parse(once)
			require.NoError(t, err)
			assert.True(t, Round(x).Equal(parsed), "Parse(Format(%s)) = %s", v, parsed)

			assert.Equal(t, once, Format(parsed), "Format must be idempotent through Parse")
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("abc") })
	assert.Equal(t, int64(5), MustParse("5 ₸").IntPart())
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package format_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/straye-as/invoice-api/internal/format"
	"github.com/stretchr/testify/assert"
)

func TestCurrency(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{name: "zero", amount: "0", want: "$0.00"},
		{name: "grouping", amount: "1234.5", want: "$1,234.50"},
		{name: "rounds half up", amount: "10.005", want: "$10.01"},
		{name: "negative", amount: "-12", want: "-$12.00"},
		{name: "millions", amount: "1250000", want: "$1,250,000.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, format.Currency(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "7.5%", format.Percent(decimal.RequireFromString("7.5")))
	assert.Equal(t, "25%", format.Percent(decimal.NewFromInt(25)))
	assert.Equal(t, "0%", format.Percent(decimal.Zero))
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "100", want: "100"},
		{name: "symbol and commas", raw: "$1,234.50", want: "1234.5"},
		{name: "spaces", raw: "  $ 99.99 ", want: "99.99"},
		{name: "negative", raw: "-$5", want: "-5"},
		{name: "empty", raw: "", want: "0"},
		{name: "garbage", raw: "abc", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tt.want).Equal(format.ParseMoney(tt.raw)),
				"got %s", format.ParseMoney(tt.raw))
		})
	}
}

func TestPlainAmount(t *testing.T) {
	assert.Equal(t, "1234.50", format.PlainAmount(decimal.RequireFromString("1234.5")))
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain string", raw: "  Copper   pipe ", want: "Copper pipe"},
		{name: "html", raw: "<p>Install <b>valves</b></p><p>and fittings</p>", want: "Install valves and fittings"},
		{name: "rich json", raw: `{"blocks":[{"text":"Demo"},{"children":[{"text":"labor"}]}]}`, want: "Demo labor"},
		{name: "json array", raw: `[{"text":"A"},{"text":"B"}]`, want: "A B"},
		{name: "invalid json falls back to text", raw: "{not json", want: "{not json"},
		{name: "empty", raw: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, format.PlainText(tt.raw))
		})
	}
}

func TestSanitizeNotes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "keeps formatting", in: "<p>Thanks <strong>a lot</strong></p>", want: "<p>Thanks <strong>a lot</strong></p>"},
		{name: "drops scripts", in: "<p>Hi</p><script>alert(1)</script>", want: "<p>Hi</p>"},
		{name: "strips attributes", in: `<p style="color:red" onclick="x()">Hi</p>`, want: "<p>Hi</p>"},
		{name: "keeps http links", in: `<a href="https://example.com" target="_blank">site</a>`, want: `<a href="https://example.com">site</a>`},
		{name: "drops javascript links", in: `<a href="javascript:alert(1)">x</a>`, want: "<a>x</a>"},
		{name: "unwraps unknown tags", in: "<h1>Title</h1>", want: "Title"},
		{name: "line breaks", in: "a<br/>b", want: "a<br>b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, format.SanitizeNotes(tt.in))
		})
	}
}

func TestSanitizeNotes_Idempotent(t *testing.T) {
	in := `<p>Payment due in <em>30 days</em>.</p><ul><li>Wire</li><li>Check</li></ul>`
	once := format.SanitizeNotes(in)
	assert.Equal(t, once, format.SanitizeNotes(once))
}

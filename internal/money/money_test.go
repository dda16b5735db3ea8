package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizeHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0.000005", "0.00001"},
		{"0.0000049", "0.00000"},
		{"9.987649999", "9.98765"},
		{"0.01195", "0.01195"},
	}

	for _, c := range cases {
		in, err := decimal.NewFromString(c.in)
		require.NoError(t, err)

		got := QuantizeHalfUp(in)
		assert.Equal(t, c.want, got.String(), "quantizing %s", c.in)
	}
}

func TestPerMillion(t *testing.T) {
	price := decimal.NewFromInt(5) // $5 per million tokens
	got := PerMillion(1000, price)
	want, _ := decimal.NewFromString("0.005")
	assert.True(t, want.Equal(got), "got %s want %s", got, want)
}

func TestChatCostDeterministic(t *testing.T) {
	inPrice := decimal.NewFromInt(5)
	outPrice := decimal.NewFromInt(15)

	cost1 := QuantizeHalfUp(PerMillion(1000, inPrice).Add(PerMillion(500, outPrice)))
	cost2 := QuantizeHalfUp(PerMillion(1000, inPrice).Add(PerMillion(500, outPrice)))

	assert.True(t, cost1.Equal(cost2))
	assert.Equal(t, "0.0125", cost1.String())
}

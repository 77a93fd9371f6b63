package events

import (
	"testing"

	"eventsync/internal/common/jsoncodec"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_String(t *testing.T) {
	tests := []struct {
		name  string
		money Money
		want  string
	}{
		{"zero value", Money{}, "0"},
		{"whole", MoneyFromInt(5), "5"},
		{"trailing zero", MustParseMoney("2.50"), "2.50"},
		{"cents of zero", MustParseMoney("0.00"), "0.00"},
		{"negative", MustParseMoney("-19.90"), "-19.90"},
		{"positive exponent", NewMoney(decimal.New(5, 2)), "500"},
		{"many places", MustParseMoney("7.1250"), "7.1250"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.money.String())

			data, err := jsoncodec.Marshal(tt.money)
			require.NoError(t, err)
			assert.Equal(t, `"`+tt.want+`"`, string(data))

			var back Money
			require.NoError(t, jsoncodec.Unmarshal(data, &back))
			assert.Equal(t, tt.want, back.String())
		})
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	total := MustParseMoney("2.50").Mul(3)
	assert.Equal(t, "7.50", total.String())

	var sum Money
	sum = sum.Add(MustParseMoney("0.10")).Add(MoneyFromInt(1))
	assert.Equal(t, "1.10", sum.String())

	_, err := ParseMoney("ten")
	assert.Error(t, err)
}

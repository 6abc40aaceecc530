package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("creates money with valid amount and currency", func(t *testing.T) {
		m, err := NewMoney(decimal.NewFromInt(15000), KRW)
		require.NoError(t, err)
		assert.Equal(t, KRW, m.Currency())
		assert.True(t, m.Amount().Equal(decimal.NewFromInt(15000)))
	})

	t.Run("returns error for empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(100), "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "currency cannot be empty")
	})
}

func TestNewMoneyFromString(t *testing.T) {
	t.Run("valid string", func(t *testing.T) {
		m, err := NewMoneyFromString("123.45", USD)
		require.NoError(t, err)
		assert.True(t, m.Amount().Equal(decimal.RequireFromString("123.45")))
	})

	t.Run("invalid string", func(t *testing.T) {
		_, err := NewMoneyFromString("not-a-number", KRW)
		assert.Error(t, err)
	})
}

func TestMoney_Add(t *testing.T) {
	sum, err := KRWFromInt(1000).Add(KRWFromInt(2500))
	require.NoError(t, err)
	assert.True(t, sum.Equals(KRWFromInt(3500)))

	_, err = KRWFromInt(1).Add(Zero(USD))
	assert.Error(t, err)
}

func TestMoney_MultiplyByInt(t *testing.T) {
	assert.True(t, KRWFromInt(1200).MultiplyByInt(3).Equals(KRWFromInt(3600)))
	assert.True(t, KRWFromInt(1200).MultiplyByInt(0).IsZero())
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(KRWFromInt(9900))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"9900","currency":"KRW"}`, string(data))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"10.5"}`), &m))
	assert.Equal(t, KRW, m.Currency())
	assert.True(t, m.IsPositive())
}

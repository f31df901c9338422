package trades

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "ai-trader-platform/database/models_pkg"
)

func TestExecutedUpdatesPersistBrokerOrderID(t *testing.T) {
	price := 123.45
	at := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	updates := executedUpdates(&price, "ord-7f3a", at)

	assert.Equal(t, models.TradeStatusExecuted, updates["status"])
	assert.Equal(t, at, updates["executed_at"])
	assert.Equal(t, 123.45, updates["execution_price"])
	assert.Equal(t, "ord-7f3a", updates["broker_trade_id"], "broker order id must reach the stored row")
}

func TestExecutedUpdatesOmitUnknownFill(t *testing.T) {
	updates := executedUpdates(nil, "", time.Now())

	require.NotContains(t, updates, "execution_price")
	require.NotContains(t, updates, "broker_trade_id")
	assert.Equal(t, models.TradeStatusExecuted, updates["status"])
}

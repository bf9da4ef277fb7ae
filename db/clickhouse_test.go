package db

import (
	"testing"
	"time"

	"stock_screener/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToResultRows(t *testing.T) {
	pe := 12.5
	runAt := time.Date(2026, 10, 17, 19, 30, 15, 999, time.FixedZone("CEST", 2*3600))
	rows := []models.ScoredSymbol{
		{Symbol: "AAPL", Price: 229.87, PE: &pe, Score: 7},
		{Symbol: "INTC", Price: 22.1, Score: 4},
	}

	out := ToResultRows("run-1", runAt, rows)
	require.Len(t, out, 2)

	assert.Equal(t, uint16(1), out[0].Rank)
	assert.Equal(t, uint16(2), out[1].Rank)
	assert.Equal(t, "AAPL", out[0].Symbol)
	assert.Equal(t, &pe, out[0].PE)
	assert.Nil(t, out[1].PE)
	assert.Equal(t, uint8(7), out[0].Score)
	assert.Equal(t, time.Date(2026, 10, 17, 17, 30, 15, 0, time.UTC), out[0].RunAt)
	assert.Equal(t, "run-1", out[1].RunID)
}

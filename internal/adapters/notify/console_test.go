package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/nbahedge/tradeengine/internal/adapters/notify"
	"github.com/nbahedge/tradeengine/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_Notify_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	err := n.Notify(context.Background(), ports.TickSummary{
		Mode:           "paper",
		JobsDiscovered: 8,
		JobsDispatched: 3,
		OrdersPlaced:   2,
		MergesExecuted: 1,
		SignalsSettled: 0,
		RiskLevel:      "GREEN",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "mode=paper")
	assert.Contains(t, out, "discovered:8")
	assert.Contains(t, out, "risk:GREEN")
}

func TestConsole_Notify_CompactWithErrors(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	err := n.Notify(context.Background(), ports.TickSummary{
		Mode:   "live",
		Errors: []string{"order rejected: insufficient balance"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "errors:1")
	assert.Contains(t, out, "order rejected: insufficient balance")
}

func TestConsole_Notify_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	err := n.Notify(context.Background(), ports.TickSummary{
		Mode:           "dry-run",
		JobsDiscovered: 12,
		RiskLevel:      "YELLOW",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "jobs discovered")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "no errors")
}

func TestConsole_Notify_TableEscapesErrors(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	err := n.Notify(context.Background(), ports.TickSummary{
		Mode:   "live",
		Errors: []string{"order|cancelled `reason`"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "\\|")
	assert.Contains(t, out, "\\`")
}

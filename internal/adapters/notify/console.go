package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nbahedge/tradeengine/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// Console implements ports.Notifier, printing a tick summary to an
// io.Writer (spec §7: notification failures must never affect trading —
// Notify only ever returns an error on a write failure to out itself).
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole builds a notifier that writes to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter builds a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify prints the tick summary in the configured mode.
func (c *Console) Notify(_ context.Context, summary ports.TickSummary) error {
	if c.table {
		return c.printTable(summary)
	}
	return c.printCompact(summary)
}

func (c *Console) printCompact(s ports.TickSummary) error {
	now := time.Now().Format("15:04:05")
	_, err := fmt.Fprintf(c.out, "[%s] mode=%s discovered:%d dispatched:%d orders:%d merges:%d settled:%d risk:%s",
		now, s.Mode, s.JobsDiscovered, s.JobsDispatched, s.OrdersPlaced, s.MergesExecuted, s.SignalsSettled, s.RiskLevel)
	if err != nil {
		return fmt.Errorf("notify.Console.Notify: %w", err)
	}
	if len(s.Errors) > 0 {
		fmt.Fprintf(c.out, " errors:%d", len(s.Errors))
	}
	fmt.Fprintln(c.out)
	for _, e := range s.Errors {
		fmt.Fprintf(c.out, "  ! %s\n", e)
	}
	return nil
}

func (c *Console) printTable(s ports.TickSummary) error {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] tick summary — mode=%s risk=%s\n", now, s.Mode, s.RiskLevel)

	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("jobs discovered", fmt.Sprintf("%d", s.JobsDiscovered))
	table.Append("jobs dispatched", fmt.Sprintf("%d", s.JobsDispatched))
	table.Append("orders placed", fmt.Sprintf("%d", s.OrdersPlaced))
	table.Append("merges executed", fmt.Sprintf("%d", s.MergesExecuted))
	table.Append("signals settled", fmt.Sprintf("%d", s.SignalsSettled))
	table.Append("risk level", s.RiskLevel)
	table.Render()

	if len(s.Errors) == 0 {
		fmt.Fprintln(c.out, "  no errors")
		return nil
	}

	fmt.Fprintf(c.out, "  %d error(s):\n", len(s.Errors))
	for _, e := range s.Errors {
		fmt.Fprintf(c.out, "    - %s\n", escapeMarkdown(e))
	}
	return nil
}

// escapeMarkdown neutralizes characters tablewriter/markdown renderers would
// otherwise treat as formatting when an error message is echoed verbatim
// (spec §7: error text originates from exchange/RPC responses, untrusted).
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"|", "\\|",
		"*", "\\*",
		"_", "\\_",
		"`", "\\`",
	)
	return replacer.Replace(s)
}

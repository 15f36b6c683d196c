// End-of-run metrics collector printing a best-effort health snapshot
package metrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"homeops-driver/internal/recovery"
	"homeops-driver/internal/target"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	targetStyle = lipgloss.NewStyle().Bold(true)
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	fieldStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Collect performs one best-effort health GET per target and prints a final
// summary block. A failed probe prints "offline" with whatever recovery time
// is known; nothing here can fail the run.
func Collect(ctx context.Context, targets []*target.Target, inj *recovery.Injector) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("=== Final metrics ==="))
	b.WriteByte('\n')

	for _, t := range targets {
		b.WriteString(targetStyle.Render(t.Name))
		b.WriteByte('\n')

		health, err := t.Health(ctx)
		if err != nil {
			b.WriteString("  " + offStyle.Render("offline") + "\n")
		} else {
			writeField(&b, "memory_mb", health["memory_mb"])
			writeField(&b, "entity_count", health["entity_count"])
			writeField(&b, "latency_ms", health["latency_ms"])
			writeField(&b, "state_changes", health["state_changes"])
		}

		if rec := inj.Record(t.Name); rec != nil && !rec.RestoreTime.IsZero() {
			if rec.RecoverySeconds != nil {
				writeField(&b, "recovery_seconds", fmt.Sprintf("%.1f", *rec.RecoverySeconds))
			} else {
				writeField(&b, "recovery_seconds", "never recovered")
			}
		}
	}
	fmt.Print(b.String())
}

func writeField(b *strings.Builder, name string, value any) {
	if value == nil {
		value = "n/a"
	}
	fmt.Fprintf(b, "  %s %v\n", fieldStyle.Render(name+":"), value)
}

package supervisor

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/danmuck/codetango/internal/coordinator"
)

func (s *Supervisor) report(res Result) {
	out := s.cfg.Out
	for _, e := range res.Exits {
		if e.Code != 0 {
			fmt.Fprintln(out, "Warning: One or more programs exited with non-zero status")
			break
		}
	}

	fmt.Fprintf(out, "\nBarrier sequence: %s\n", strings.Join(res.Sequence, " -> "))
	for _, id := range res.Missing {
		fmt.Fprintf(out, "Warning: Barrier '%s' was not reached by both programs\n", id)
	}
	if s.cfg.Strict {
		for _, id := range res.Mismatches {
			fmt.Fprintf(out, "Warning: Barrier '%s' had differing variables\n", id)
		}
	}
	if s.cfg.Verbose && len(res.Records) > 0 {
		fmt.Fprintln(out)
		WriteSummary(out, res.Records)
	}

	if res.Passed {
		fmt.Fprintln(out, "\nAll barriers passed successfully!")
		return
	}
	fmt.Fprintln(out, "\nSome barriers failed or were not reached by both programs.")
}

// WriteSummary renders one row per barrier record.
func WriteSummary(w io.Writer, records []coordinator.BarrierRecord) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Barrier", coordinator.ProgramOne, coordinator.ProgramTwo, "Result", "Differences"})
	for _, rec := range records {
		tw.AppendRow(table.Row{
			rec.BarrierID,
			mark(rec, coordinator.ProgramOne),
			mark(rec, coordinator.ProgramTwo),
			result(rec),
			len(rec.Differences),
		})
	}
	tw.Render()
}

func mark(rec coordinator.BarrierRecord, id string) string {
	for _, s := range rec.Submitted {
		if s == id {
			return "reached"
		}
	}
	return "-"
}

func result(rec coordinator.BarrierRecord) string {
	switch {
	case !rec.Complete:
		return "incomplete"
	case len(rec.Differences) > 0:
		return "differ"
	default:
		return "match"
	}
}

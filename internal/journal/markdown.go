package journal

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// WriteMarkdown renders the leak report for one session.
func WriteMarkdown(w io.Writer, info SessionInfo, leaks []Leak) error {
	md := markdown.NewMarkdown(w)

	md.H1("torbridge Handle Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Session", "`" + info.ID + "`"},
			{"Started", formatTime(info.Started)},
			{"Last Event", formatTime(info.LastEvent)},
			{"Events", strconv.Itoa(info.Events)},
			{"Open Handles", strconv.Itoa(len(leaks))},
		},
	})
	md.PlainText("")

	if len(leaks) == 0 {
		md.Tip("Every handle opened in this session was closed.")
		md.PlainText("")
		return md.Build()
	}

	md.Warningf("%d handle(s) were opened and never closed. Streams stay connected until close_stream is called.", len(leaks))
	md.PlainText("")

	writeLeakChart(md, leaks)

	md.H2("Open Handles")
	md.PlainText("")
	rows := make([][]string, len(leaks))
	for i, l := range leaks {
		owner := "-"
		if l.Kind == HandleTLSStream {
			owner = strconv.FormatInt(l.Owner, 10)
		}
		detail := l.Detail
		if detail == "" {
			detail = "-"
		}
		rows[i] = []string{string(l.Kind), "`" + l.Handle + "`", owner, formatTime(l.Opened), detail}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Handle", "Owner Thread", "Opened", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")

	return md.Build()
}

func writeLeakChart(md *markdown.Markdown, leaks []Leak) {
	counts := make(map[HandleKind]uint64)
	for _, l := range leaks {
		counts[l.Kind]++
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Open Handles by Kind"),
		piechart.WithShowData(true),
	)
	for _, kind := range []HandleKind{HandleCircuit, HandleStream, HandleTLSStream} {
		if counts[kind] > 0 {
			chart.LabelAndIntValue(string(kind), counts[kind])
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05.000 MST")
}

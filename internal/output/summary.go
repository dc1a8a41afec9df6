package output

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/ppiankov/prospector/internal/model"
)

// WriteSummary renders a run summary as Markdown
func WriteSummary(w io.Writer, s model.RunSummary) error {
	md := markdown.NewMarkdown(w)

	md.H1("Prospector Run Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + s.RunID + "`"},
			{"Started", s.StartedAt.UTC().Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", s.Elapsed.Round(1e9).String()},
			{"State", string(s.State)},
		},
	})
	md.PlainText("")

	switch {
	case s.State == model.StateAborted:
		md.Warningf("Run aborted: %s. Records collected before the abort were saved.", s.AbortReason)
	case s.Stopped:
		md.Note("Run stopped on request before the plan finished.")
	case s.FlushErrors > 0:
		md.Cautionf("%d flush(es) failed. Check the log for the affected sinks.", s.FlushErrors)
	default:
		md.Tip("Run completed.")
	}
	md.PlainText("")

	md.H2("Search")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Tasks planned", strconv.Itoa(s.TasksPlanned)},
			{"Tasks run", strconv.Itoa(s.TasksRun)},
			{"Search failures", strconv.Itoa(s.SearchFailures)},
			{"URLs found", strconv.Itoa(s.URLsFound)},
		},
	})
	md.PlainText("")

	md.H2("Extraction")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"URLs visited", strconv.Itoa(s.URLsVisited)},
			{"Already visited", strconv.Itoa(s.URLsRepeated)},
			{"Robots skipped", strconv.Itoa(s.RobotsSkipped)},
			{"Static", strconv.Itoa(s.StaticExtractions)},
			{"Dynamic", strconv.Itoa(s.DynamicExtractions)},
			{"Failures", strconv.Itoa(s.ExtractionFailures)},
		},
	})
	md.PlainText("")

	if s.StaticExtractions+s.DynamicExtractions > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Extraction strategy"),
			piechart.WithShowData(true),
		)
		if s.StaticExtractions > 0 {
			chart.LabelAndIntValue("Static", uint64(s.StaticExtractions))
		}
		if s.DynamicExtractions > 0 {
			chart.LabelAndIntValue("Dynamic", uint64(s.DynamicExtractions))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	md.H2("Contacts")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Accepted", strconv.Itoa(s.Accepted)},
			{"Duplicates", strconv.Itoa(s.Duplicates)},
			{"Rejected", strconv.Itoa(s.Rejected)},
			{"With email", strconv.Itoa(s.WithEmail)},
			{"With phone", strconv.Itoa(s.WithPhone)},
			{"Saved", strconv.Itoa(s.RecordsSaved)},
			{"Flushes", strconv.Itoa(s.Flushes)},
		},
	})

	return md.Build()
}

// WriteSummaryFile writes the Markdown summary to path atomically
func WriteSummaryFile(path string, s model.RunSummary) error {
	return writeAtomic(path, func(w io.Writer) error {
		return WriteSummary(w, s)
	})
}

// Package tui renders omd command output: progress lines, dataset
// classifications, lake reports and search hits.
// Simple, streaming, no full-screen UI.
package tui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/sujanshetty01/OMD/pkg/catalog"
	"github.com/sujanshetty01/OMD/pkg/ingest"
	"github.com/sujanshetty01/OMD/pkg/lake"
	"github.com/sujanshetty01/OMD/pkg/progress"
	"github.com/sujanshetty01/OMD/pkg/reconcile"
	"github.com/sujanshetty01/OMD/pkg/vectorindex"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// Printer writes styled output. The zero value writes to stdout.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: w}
}

func (p *Printer) w() io.Writer {
	if p.out == nil {
		return os.Stdout
	}
	return p.out
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w(), format, args...)
}

// Header prints the banner.
func (p *Printer) Header(version string) {
	p.printf("\n%s %s\n%s\n\n",
		accentStyle.Render("▸ OMD"),
		mutedStyle.Render(version),
		mutedStyle.Render("  Classified ingestion into catalog, lake and index"))
}

// Endpoint returns a progress endpoint that prints each event as a line.
func (p *Printer) Endpoint() progress.Endpoint {
	return progress.Func(func(ev progress.Event) error {
		p.Event(ev)
		return nil
	})
}

// Event prints one progress event.
func (p *Printer) Event(ev progress.Event) {
	var mark string
	switch ev.Status {
	case progress.StatusComplete:
		mark = successStyle.Render("✓")
	case progress.StatusWarning:
		mark = warningStyle.Render("!")
	case progress.StatusError:
		mark = accentStyle.Render("✗")
	default:
		mark = mutedStyle.Render("⟳")
	}
	p.printf("  %s %s\n", mark, ev.Step)
}

// Result prints an ingestion result.
func (p *Printer) Result(name string, res *ingest.Result) {
	if res == nil {
		return
	}
	if !res.Registered || res.Dataset == nil {
		p.printf("\n  %s %s %s\n\n", warningStyle.Render("!"), titleStyle.Render(name),
			mutedStyle.Render("("+res.Message+", not registered)"))
		return
	}
	p.Dataset(res.Dataset)
}

// Dataset prints a catalog view with one line per column.
func (p *Printer) Dataset(v *catalog.DatasetView) {
	var b strings.Builder
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, successStyle.Render("  ✓ "+v.Name))
	fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("FQN:"), codeStyle.Render(v.FQN))
	fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("Rows:"), titleStyle.Render(formatNumber(int64(v.RowCount))))
	fmt.Fprintln(&b, mutedStyle.Render(rule))
	for _, c := range v.Columns {
		fmt.Fprintf(&b, "  %-24s %s", c.Name, mutedStyle.Render(c.Datatype))
		for _, t := range c.Tags {
			label := t.TagFQN
			if t.Confidence > 0 && t.Confidence < 1 {
				label = fmt.Sprintf("%s %.2f", t.TagFQN, t.Confidence)
			}
			if t.IsAutoApplied {
				fmt.Fprintf(&b, "  %s", accentStyle.Render(label))
			} else {
				fmt.Fprintf(&b, "  %s", mutedStyle.Render(label))
			}
		}
		fmt.Fprintln(&b)
	}
	fmt.Fprintln(&b)
	p.printf("%s", b.String())
}

// Batch prints a bucket ingestion summary.
func (p *Printer) Batch(bucket string, s *ingest.BatchSummary, elapsed time.Duration) {
	p.printf("\n%s\n  %s %s %s\n\n",
		successStyle.Render("  ✓ BATCH COMPLETE"),
		mutedStyle.Render(bucket+":"),
		titleStyle.Render(fmt.Sprintf("%d files", s.Processed)),
		mutedStyle.Render("("+formatDuration(elapsed)+")"))
}

// Sync prints a reconciliation summary.
func (p *Printer) Sync(s *reconcile.Summary, elapsed time.Duration) {
	p.printf("\n%s\n", successStyle.Render("  ✓ SYNC "+strings.ToUpper(s.Status)))
	p.printf("  %s %s\n", mutedStyle.Render("Scanned:"), titleStyle.Render(fmt.Sprint(s.TotalScanned)))
	p.printf("  %s %s\n", mutedStyle.Render("Lake:"), titleStyle.Render(fmt.Sprint(s.LakeStoredCount)))
	p.printf("  %s %s\n", mutedStyle.Render("Indexed:"), titleStyle.Render(fmt.Sprint(s.IndexedCount)))
	p.printf("  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(elapsed)))
	if s.LakeStats != nil {
		p.LakeStats(s.LakeStats)
		return
	}
	p.printf("\n")
}

// LakeStats prints lake totals grouped by source type and database.
func (p *Printer) LakeStats(s *lake.Stats) {
	var b strings.Builder
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, accentStyle.Render("▸ DATA LAKE"))
	fmt.Fprintf(&b, "  %s %s  %s\n", mutedStyle.Render("Tables:"),
		titleStyle.Render(fmt.Sprint(s.TotalTables)),
		mutedStyle.Render(fmt.Sprintf("(%.2f MB)", s.TotalSizeMB)))
	writeGroups(&b, "Sources", s.Sources)
	writeGroups(&b, "Databases", s.Databases)
	fmt.Fprintln(&b)
	p.printf("%s", b.String())
}

func writeGroups(b *strings.Builder, title string, groups map[string]*lake.GroupStats) {
	if len(groups) == 0 {
		return
	}
	fmt.Fprintln(b, mutedStyle.Render(rule))
	fmt.Fprintln(b, mutedStyle.Render("  "+title))
	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		g := groups[n]
		fmt.Fprintf(b, "  %-24s %d %s\n", n, g.Count, mutedStyle.Render(fmt.Sprintf("(%.2f MB)", g.SizeMB)))
	}
}

// LakeTables prints current lake objects.
func (p *Printer) LakeTables(tables []lake.TableInfo) {
	var b strings.Builder
	fmt.Fprintln(&b)
	for _, t := range tables {
		fmt.Fprintf(&b, "  %-40s %s  %s\n",
			t.SourceType+"/"+t.Database+"/"+t.Table,
			titleStyle.Render(formatBytes(t.SizeBytes)),
			mutedStyle.Render(t.LastModified.Format(time.RFC3339)))
	}
	fmt.Fprintf(&b, "%s\n\n", mutedStyle.Render(fmt.Sprintf("  %d tables", len(tables))))
	p.printf("%s", b.String())
}

// Search prints semantic search hits.
func (p *Printer) Search(query string, docs []vectorindex.Document) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s %s\n", accentStyle.Render("▸ SEARCH"), titleStyle.Render(query))
	if len(docs) == 0 {
		fmt.Fprintln(&b, mutedStyle.Render("  No matches."))
	}
	for i, d := range docs {
		fmt.Fprintf(&b, "  %d. %s %s\n", i+1, codeStyle.Render(fmt.Sprintf("%s#%d", d.Source, d.RowIndex)),
			mutedStyle.Render(fmt.Sprintf("(distance %.3f)", d.Distance)))
		fmt.Fprintf(&b, "     %s\n", d.Content)
		if len(d.Tags) > 0 {
			fmt.Fprintf(&b, "     %s\n", warningStyle.Render(strings.Join(d.Tags, ", ")))
		}
	}
	fmt.Fprintln(&b)
	p.printf("%s", b.String())
}

// Error prints a failure line.
func (p *Printer) Error(name string, err error) {
	p.printf("  %s %s %s\n", accentStyle.Render("✗"), name, mutedStyle.Render(err.Error()))
}

// ShowProgress creates a progress bar counting files.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

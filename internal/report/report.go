// Package report renders detection results for a terminal.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/hazyhaar/typescope/grouping"
)

// Options tunes Render.
type Options struct {
	// SampleWidth caps the sample column, in terminal cells. Default: 40.
	SampleWidth int
	// Samples is the number of samples shown per group. Default: 1.
	Samples int
}

var columns = []string{"TAG", "FONT", "SIZE", "WEIGHT", "STYLE", "LINE", "SPACING", "COUNT", "SAMPLE"}

// Render writes one section per non-empty classifier bucket followed by a
// summary line. Styling degrades to plain text when w is not a terminal.
func Render(w io.Writer, groups []grouping.StyleGroup, opts Options) error {
	if opts.SampleWidth <= 0 {
		opts.SampleWidth = 40
	}
	if opts.Samples <= 0 {
		opts.Samples = 1
	}
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	header := r.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	muted := r.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))

	if len(groups) == 0 {
		_, err := fmt.Fprintln(w, muted.Render("no visible text found"))
		return err
	}

	var b strings.Builder
	for _, bucket := range grouping.Buckets(groups) {
		rows := [][]string{columns}
		for _, g := range bucket.Groups {
			rows = append(rows, row(g, opts))
		}
		widths := columnWidths(rows)

		b.WriteString(title.Render(bucket.Classifier.String()))
		b.WriteString("\n")
		for i, cells := range rows {
			line := "  " + strings.TrimRight(formatRow(cells, widths), " ")
			if i == 0 {
				line = header.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	s := grouping.Summarize(groups)
	b.WriteString(muted.Render(fmt.Sprintf("%d groups, %d text runs, %d font families", s.Groups, s.Attributions, s.Families)))
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func row(g grouping.StyleGroup, opts Options) []string {
	sig := g.Signature
	var samples []string
	for i, s := range g.Samples {
		if i == opts.Samples {
			break
		}
		samples = append(samples, strconv.Quote(s))
	}
	sample := runewidth.Truncate(strings.Join(samples, " "), opts.SampleWidth, "…")
	return []string{
		sig.Tag, g.DisplayName, sig.FontSize, sig.FontWeight, sig.FontStyle,
		sig.LineHeight, sig.LetterSpacing, strconv.Itoa(g.Count), sample,
	}
}

func columnWidths(rows [][]string) []int {
	widths := make([]int, len(columns))
	for _, cells := range rows {
		for i, c := range cells {
			if w := runewidth.StringWidth(c); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = runewidth.FillRight(c, widths[i])
	}
	return strings.Join(parts, "  ")
}

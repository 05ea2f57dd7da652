package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"marketing-groupchat/agent"
	"marketing-groupchat/client"
)

// Printer writes participant replies as "# NAME: content". Styles are bound
// to the output, so colors disappear when it is not a terminal.
type Printer struct {
	out        io.Writer
	nameStyle  lipgloss.Style
	errorStyle lipgloss.Style
	faintStyle lipgloss.Style
	markdown   *glamour.TermRenderer
}

// NewPrinter returns a printer for out. With markdown set, reply content is
// rendered with glamour before printing.
func NewPrinter(out io.Writer, markdown bool) (*Printer, error) {
	r := lipgloss.NewRenderer(out)
	p := &Printer{
		out:        out,
		nameStyle:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		errorStyle: r.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		faintStyle: r.NewStyle().Faint(true),
	}

	if markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		p.markdown = renderer
	}
	return p, nil
}

// Reply prints one participant turn.
func (p *Printer) Reply(m agent.Message) {
	content := strings.TrimSpace(m.Content)
	if p.markdown != nil {
		if rendered, err := p.markdown.Render(content); err == nil {
			content = "\n" + strings.Trim(rendered, "\n")
		}
	}
	fmt.Fprintf(p.out, "\n%s %s\n", p.nameStyle.Render(fmt.Sprintf("# %s:", strings.ToUpper(m.Author))), content)
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.out, p.errorStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Note(format string, args ...any) {
	fmt.Fprintln(p.out, p.faintStyle.Render(fmt.Sprintf(format, args...)))
}

// History prints the conversation as a table.
func (p *Printer) History(messages []agent.Message) {
	if len(messages) == 0 {
		p.Note("No messages yet.")
		return
	}

	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"#", "Author", "Time", "Content"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, m := range messages {
		table.Append([]string{
			fmt.Sprint(m.Ordinal),
			m.Author,
			m.At.Format("15:04:05"),
			truncateString(strings.Join(strings.Fields(m.Content), " "), 80),
		})
	}
	table.Render()
}

// Usage prints token usage per caller and the session total.
func (p *Printer) Usage(snap client.UsageSnapshot) {
	if len(snap.Callers) == 0 {
		p.Note("No model calls yet.")
		return
	}

	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"Caller", "Calls", "Input", "Output", "Cost (USD)"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	for _, c := range snap.Callers {
		table.Append([]string{
			c.Caller,
			fmt.Sprint(c.CallCount),
			fmt.Sprint(c.Usage.InputTokens),
			fmt.Sprint(c.Usage.OutputTokens),
			fmt.Sprintf("%.4f", c.Usage.Cost),
		})
	}
	table.SetFooter([]string{
		"Total",
		"",
		fmt.Sprint(snap.Total.InputTokens),
		fmt.Sprint(snap.Total.OutputTokens),
		fmt.Sprintf("%.4f", snap.Total.Cost),
	})
	table.Render()
}

// truncateString keeps the first maxLen runes so multi-byte characters are
// never split.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/tidwall/gjson"

	"github.com/ngoclaw/gemini-go/pkg/gemini"
)

// Renderer turns responses, function calls and model listings into
// terminal output.
type Renderer struct {
	glamour *glamour.TermRenderer
	width   int
}

// NewRenderer creates a renderer for the given terminal width. With
// markdown off, text is printed as is.
func NewRenderer(width int, markdown bool) *Renderer {
	if width <= 0 {
		width = 80
	}
	r := &Renderer{width: width}
	if markdown {
		r.glamour, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-4),
		)
	}
	return r
}

// RenderMarkdown renders md, falling back to the raw text on any error.
func (r *Renderer) RenderMarkdown(md string) string {
	if r.glamour == nil {
		return md
	}
	out, err := r.glamour.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

// RenderResponse prints thoughts, the answer text, any non-text parts of
// the first candidate and a usage footer.
func (r *Renderer) RenderResponse(resp *gemini.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	if th := resp.Thoughts(); th != "" {
		sb.WriteString(thoughtStyle.Render(th))
		sb.WriteString("\n\n")
	}
	if text := resp.Text(); text != "" {
		sb.WriteString(r.RenderMarkdown(text))
		sb.WriteString("\n")
	}
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			if line := renderPart(p); line != "" {
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}
		if fr := resp.Candidates[0].FinishReason; fr != "" && fr != gemini.FinishReasonStop {
			sb.WriteString(labelStyle.Render("finish: " + string(fr)))
			sb.WriteString("\n")
		}
	}
	if footer := r.RenderUsage(resp); footer != "" {
		sb.WriteString(footer)
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderPart(p gemini.Part) string {
	switch d := p.Data.(type) {
	case gemini.FunctionCall:
		return functionCallLine(d)
	case gemini.ExecutableCode:
		return labelStyle.Render("```"+strings.ToLower(string(d.Language))) + "\n" + d.Code + "\n" + labelStyle.Render("```")
	case gemini.CodeExecutionResult:
		return labelStyle.Render("["+string(d.Outcome)+"] ") + d.Output
	case gemini.InlineData:
		raw, err := d.Bytes()
		if err != nil {
			return labelStyle.Render(fmt.Sprintf("<inline %s, invalid base64>", d.MimeType))
		}
		return labelStyle.Render(fmt.Sprintf("<inline %s, %d bytes>", d.MimeType, len(raw)))
	case gemini.FileData:
		return labelStyle.Render(fmt.Sprintf("<file %s %s>", d.MimeType, d.FileURI))
	}
	return ""
}

// RenderUsage returns a one-line token summary, or "" without usage data.
func (r *Renderer) RenderUsage(resp *gemini.GenerateContentResponse) string {
	u := resp.UsageMetadata
	if u == nil {
		return ""
	}
	parts := []string{
		fmt.Sprintf("prompt %d", u.PromptTokenCount),
		fmt.Sprintf("output %d", u.CandidatesTokenCount),
	}
	if u.ThoughtsTokenCount > 0 {
		parts = append(parts, fmt.Sprintf("thoughts %d", u.ThoughtsTokenCount))
	}
	line := "tokens: " + strings.Join(parts, " · ")
	if resp.ModelVersion != "" {
		line += " · " + resp.ModelVersion
	}
	return labelStyle.Render(line)
}

// RenderFunctionCall renders the line printed before a handler runs.
func (r *Renderer) RenderFunctionCall(call gemini.FunctionCall) string {
	return functionCallLine(call)
}

func functionCallLine(call gemini.FunctionCall) string {
	icon := lipgloss.NewStyle().Foreground(colorYellow).Bold(true).Render("⚙")
	return fmt.Sprintf("  %s %s %s", icon, nameStyle.Render(call.Name), labelStyle.Render(summarizeArgs(call.Args)))
}

// RenderFunctionResult renders the line printed after a handler returns.
func (r *Renderer) RenderFunctionResult(name string, err error, elapsed time.Duration) string {
	dur := labelStyle.Render(fmt.Sprintf(" (%s)", formatDuration(elapsed)))
	if err != nil {
		icon := lipgloss.NewStyle().Foreground(colorRed).Render("✗")
		return fmt.Sprintf("  %s %s%s %s", icon, nameStyle.Render(name), dur, errorStyle.Render(err.Error()))
	}
	icon := lipgloss.NewStyle().Foreground(colorGreen).Render("✓")
	return fmt.Sprintf("  %s %s%s", icon, nameStyle.Render(name), dur)
}

// RenderModels renders the catalog as a table.
func (r *Renderer) RenderModels(models []gemini.Model) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorGray)).
		Headers("MODEL", "NAME", "INPUT", "OUTPUT", "METHODS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, m := range models {
		id := m.BaseModelID
		if id == "" {
			id = strings.TrimPrefix(m.Name, "models/")
		}
		t.Row(id, m.DisplayName,
			strconv.Itoa(m.InputTokenLimit),
			strconv.Itoa(m.OutputTokenLimit),
			strings.Join(m.SupportedGenerationMethods, ","),
		)
	}
	return t.Render()
}

// RenderError formats a command failure for stderr.
func RenderError(err error) string {
	return errorStyle.Render("✗ ") + err.Error()
}

// summarizeArgs renders top-level arguments as k=v pairs.
func summarizeArgs(args []byte) string {
	if len(args) == 0 || !gjson.ValidBytes(args) {
		return ""
	}
	res := gjson.ParseBytes(args)
	if !res.IsObject() {
		return truncate(res.Raw, 60)
	}
	var parts []string
	res.ForEach(func(key, value gjson.Result) bool {
		v := value.String()
		if value.IsObject() || value.IsArray() {
			v = value.Raw
		}
		parts = append(parts, key.String()+"="+truncate(v, 40))
		return len(parts) < 6
	})
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

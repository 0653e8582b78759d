package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/keyboard-slayer/mcstatus/internal/address"
	"github.com/keyboard-slayer/mcstatus/internal/minecraft"
)

const (
	playersWidth  = 60
	playersIndent = 4
)

type styles struct {
	count  lipgloss.Style
	full   lipgloss.Style
	player lipgloss.Style
	motd   lipgloss.Style
	dim    lipgloss.Style
	err    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)

	return styles{
		count:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#22aa22")), // Green
		full:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaf5f")), // Orange-amber
		player: r.NewStyle().Foreground(lipgloss.Color("#5f5fd7")),            // Purple/Blue
		motd:   r.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),            // White
		dim:    r.NewStyle().Foreground(lipgloss.Color("#767676")),            // Dimmed Gray
		err:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f5f")), // Soft red
	}
}

// RenderText prints the status the way a person wants to read it.
func RenderText(w io.Writer, endpoint address.Endpoint, status *minecraft.Status) {
	s := newStyles(w)

	count := s.count
	if status.Players.Online >= status.Players.Max {
		count = s.full
	}

	names, anonymous := samplePlayers(status.Players.Sample)

	line := count.Render(fmt.Sprintf("%d/%d", status.Players.Online, status.Players.Max)) + " online"
	if len(names) > 0 || anonymous > 0 {
		line += ":"
	}
	fmt.Fprintln(w, line)

	if len(names) > 0 {
		// Word wrap first, then hard wrap whatever single name is still too long.
		players := wordwrap.String(strings.Join(names, " "), playersWidth-playersIndent)
		players = wrap.String(players, playersWidth-playersIndent)
		renderLines(w, s.player, indent.String(players, playersIndent))
	}

	if anonymous > 0 {
		fmt.Fprintln(w, strings.Repeat(" ", playersIndent)+s.dim.Render(fmt.Sprintf("%d anonymous", anonymous)))
	}

	if motd := StripFormatting(status.Description.String()); strings.TrimSpace(motd) != "" {
		renderLines(w, s.motd, motd)
	}

	details := []string{endpoint.String()}
	if status.Version.Name != "" {
		details = append(details, fmt.Sprintf("%s (protocol %d)", StripFormatting(status.Version.Name), status.Version.Protocol))
	}
	if status.Latency > 0 {
		details = append(details, status.Latency.Round(time.Millisecond).String())
	}
	fmt.Fprintln(w, s.dim.Render(strings.Join(details, " · ")))
}

// samplePlayers splits the sample into the names worth showing and the
// number of anonymous placeholders.
func samplePlayers(sample []minecraft.Player) ([]string, int) {
	names := make([]string, 0, len(sample))
	anonymous := 0

	for _, p := range sample {
		switch {
		case p.Anonymous():
			anonymous++
		case p.Name != "":
			names = append(names, p.Name)
		}
	}

	return names, anonymous
}

// renderLines styles line by line, lipgloss would pad a block to its widest line.
func renderLines(w io.Writer, style lipgloss.Style, text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintln(w, style.Render(line))
	}
}

// StripFormatting removes the legacy § color and style codes.
func StripFormatting(text string) string {
	var sb strings.Builder
	skip := false

	for _, r := range text {
		if skip {
			skip = false
			continue
		}
		if r == '§' {
			skip = true
			continue
		}
		sb.WriteRune(r)
	}

	return sb.String()
}

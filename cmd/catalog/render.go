package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/catalog/internal/domain"
	"golang.org/x/term"
)

// Color palette
var (
	accent    = lipgloss.Color("#E5A00D")
	dimGray   = lipgloss.Color("#6B7280")
	lightGray = lipgloss.Color("#9CA3AF")
	green     = lipgloss.Color("#10B981")
	red       = lipgloss.Color("#EF4444")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(dimGray)
	labelStyle   = lipgloss.NewStyle().Foreground(lightGray).Width(14)
	accentStyle  = lipgloss.NewStyle().Foreground(accent)
	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	idStyle      = lipgloss.NewStyle().Foreground(accent).Width(8).Align(lipgloss.Right).MarginRight(2)
)

const defaultWidth = 80

type renderer struct {
	w     io.Writer
	width int
}

func newRenderer(f *os.File) *renderer {
	width := defaultWidth
	if term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}
	return &renderer{w: f, width: width}
}

func (r *renderer) line(s string) {
	fmt.Fprintln(r.w, s)
}

// row prints "id  title  detail" truncated to the terminal width.
func (r *renderer) row(id int, title, detail string) {
	text := title
	if detail != "" {
		text += "  " + dimStyle.Render(detail)
	}
	avail := r.width - 10
	r.line(idStyle.Render(strconv.Itoa(id)) + truncate(text, avail))
}

func (r *renderer) field(label, value string) {
	if value == "" {
		return
	}
	r.line(labelStyle.Render(label) + value)
}

func (r *renderer) empty(what string) {
	r.line(dimStyle.Render("No " + what))
}

func (r *renderer) success(msg string) {
	r.line(successStyle.Render("✓ " + msg))
}

func (r *renderer) shows(shows []domain.Show) {
	if len(shows) == 0 {
		r.empty("shows")
		return
	}
	for _, s := range shows {
		r.row(s.ID, s.Title, "")
	}
}

func (r *renderer) show(s *domain.Show) {
	r.line(titleStyle.Render(s.Title))
	r.field("ID", strconv.Itoa(s.ID))
	r.field("Description", s.Description)
	r.field("Image", s.ImageURL)
	if s.Embedded != nil {
		r.field("Hosts", names(s.Embedded.Hosts))
	}
}

func (r *renderer) episodes(episodes []domain.Episode) {
	if len(episodes) == 0 {
		r.empty("episodes")
		return
	}
	for _, e := range episodes {
		r.row(e.ID, e.Title, formatDuration(e.Duration))
	}
}

func (r *renderer) episode(e *domain.Episode) {
	r.line(titleStyle.Render(e.Title))
	r.field("ID", strconv.Itoa(e.ID))
	if e.ShowID != 0 {
		r.field("Show", strconv.Itoa(e.ShowID))
	}
	r.field("Duration", formatDuration(e.Duration))
	r.field("Published", e.PublishedAt)
	r.field("Media", e.MediaURL)
	r.field("Description", e.Description)
	if e.HasPeople() {
		r.field("People", names(e.Embedded.People))
	}
}

func (r *renderer) streams(streams []domain.Stream) {
	if len(streams) == 0 {
		r.empty("streams")
		return
	}
	for _, s := range streams {
		detail := s.Kind
		if s.IsLive {
			detail = strings.TrimSpace(detail + " " + accentStyle.Render("LIVE"))
		}
		r.row(s.ID, s.Title, detail)
	}
}

func (r *renderer) stream(s *domain.Stream, canPlay bool) {
	r.line(titleStyle.Render(s.Title))
	r.field("ID", strconv.Itoa(s.ID))
	r.field("Kind", s.Kind)
	r.field("URL", s.StreamURL)
	r.field("Live", yesNo(s.IsLive))
	if canPlay {
		r.field("Playback", successStyle.Render("allowed"))
	} else {
		r.field("Playback", errorStyle.Render("blocked on this connection"))
	}
}

func (r *renderer) people(people []domain.Person) {
	if len(people) == 0 {
		r.empty("people")
		return
	}
	for _, p := range people {
		r.row(p.ID, p.Name, p.Role)
	}
}

func (r *renderer) person(p *domain.Person) {
	r.line(titleStyle.Render(p.Name))
	r.field("ID", strconv.Itoa(p.ID))
	r.field("Role", p.Role)
	r.field("Image", p.ImageURL)
	r.field("Bio", p.Bio)
}

type freshLine struct {
	Entity domain.EntityType
	Count  int
	Fresh  bool
}

type statusView struct {
	State     domain.ConnectivityState
	Online    bool
	CanPlay   bool
	CacheDir  string
	UsedBytes int64
	Quota     int64
	Fresh     []freshLine
}

func (r *renderer) status(v statusView) {
	r.line(titleStyle.Render("Connectivity"))
	r.field("Online", yesNo(v.Online))
	r.field("Connection", string(v.State.ConnectionType))
	r.field("Cellular", allowedText(v.State.UserAllowsCellular))
	r.field("Playback", allowedText(v.CanPlay))
	r.line("")

	r.line(titleStyle.Render("Cache"))
	dir := v.CacheDir
	if dir == "" {
		dir = "(memory only)"
	}
	r.field("Location", dir)
	r.field("Used", fmt.Sprintf("%s of %s", formatBytes(v.UsedBytes), formatBytes(v.Quota)))
	for _, f := range v.Fresh {
		state := dimStyle.Render("stale or missing")
		if f.Fresh {
			state = successStyle.Render(fmt.Sprintf("%d fresh", f.Count))
		}
		r.field(string(f.Entity), state)
	}
}

func (r *renderer) cellular(allowed, canPlay bool) {
	r.success("Cellular data " + allowedText(allowed))
	r.field("Playback", allowedText(canPlay))
}

func (r *renderer) transition(at time.Time, s domain.ConnectivityState) {
	conn := string(s.ConnectionType)
	if !s.IsConnected {
		conn = errorStyle.Render("offline")
	} else {
		conn = successStyle.Render(conn)
	}
	r.line(dimStyle.Render(at.Format(time.Kitchen)) + "  " + conn + dimStyle.Render("  playback "+allowedText(s.CanProceed())))
}

func names(people []domain.Person) string {
	out := make([]string, 0, len(people))
	for _, p := range people {
		out = append(out, p.Name)
	}
	return strings.Join(out, ", ")
}

func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width-1).Render(s) + "…"
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func allowedText(b bool) string {
	if b {
		return "allowed"
	}
	return "not allowed"
}

package cli

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// DefaultDepictURL is the public CDK Depict instance.
const DefaultDepictURL = "https://www.simolecule.com/cdkdepict"

// ─────────────────────────────────────────────────────────────────────────────
// Structure renderer
// ─────────────────────────────────────────────────────────────────────────────

// Depiction is the rendered form of one structure string.
type Depiction struct {
	Structure string `json:"structure"`
	URL       string `json:"url"`
}

// StructureRenderer converts a structure string into a depiction.
type StructureRenderer interface {
	Depict(structure string) Depiction
}

// CDKDepict renders structures as SVG links served by a CDK Depict instance.
type CDKDepict struct {
	BaseURL string
	// Style is the CDK colour scheme, e.g. "cow" (colour on white) or "bow".
	Style  string
	Width  int
	Height int
}

// NewCDKDepict returns a renderer against baseURL, or DefaultDepictURL when
// baseURL is empty.
func NewCDKDepict(baseURL string) *CDKDepict {
	if baseURL == "" {
		baseURL = DefaultDepictURL
	}
	return &CDKDepict{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Style:   "cow",
		Width:   300,
		Height:  200,
	}
}

// Depict builds the depiction URL for structure.  The structure is trimmed
// and query-escaped; an empty structure yields an empty URL.
func (r *CDKDepict) Depict(structure string) Depiction {
	s := strings.TrimSpace(structure)
	if s == "" {
		return Depiction{Structure: structure}
	}
	q := url.Values{}
	q.Set("smi", s)
	q.Set("w", strconv.Itoa(r.Width))
	q.Set("h", strconv.Itoa(r.Height))
	q.Set("abbr", "on")
	q.Set("zoom", "2")
	return Depiction{
		Structure: structure,
		URL:       fmt.Sprintf("%s/depict/%s/svg?%s", r.BaseURL, r.Style, q.Encode()),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Card styles
// ─────────────────────────────────────────────────────────────────────────────

// cardStyles holds the lipgloss styles used for candidate cards.
type cardStyles struct {
	Card    lipgloss.Style
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Link    lipgloss.Style
	Warning lipgloss.Style
	Alert   lipgloss.Style
}

func newCardStyles(w io.Writer, noColor bool) cardStyles {
	r := lipgloss.NewRenderer(w)
	s := cardStyles{
		Card:    r.NewStyle().BorderStyle(lipgloss.RoundedBorder()).Padding(0, 1).MarginBottom(1),
		Title:   r.NewStyle().Bold(true),
		Label:   r.NewStyle(),
		Value:   r.NewStyle(),
		Link:    r.NewStyle().Underline(true),
		Warning: r.NewStyle(),
		Alert:   r.NewStyle().Bold(true),
	}
	if noColor {
		return s
	}
	s.Card = s.Card.BorderForeground(lipgloss.Color("#45475A"))
	s.Title = s.Title.Foreground(lipgloss.Color("#7C3AED"))
	s.Label = s.Label.Foreground(lipgloss.Color("#6C7086"))
	s.Value = s.Value.Foreground(lipgloss.Color("#CDD6F4"))
	s.Link = s.Link.Foreground(lipgloss.Color("#06B6D4"))
	s.Warning = s.Warning.Foreground(lipgloss.Color("#F9E2AF"))
	s.Alert = s.Alert.Foreground(lipgloss.Color("#F38BA8"))
	return s
}

// CardWriter prints candidates as bordered cards, one per structure.
type CardWriter struct {
	out      io.Writer
	renderer StructureRenderer
	styles   cardStyles
}

// NewCardWriter returns a CardWriter printing to out.
func NewCardWriter(out io.Writer, renderer StructureRenderer, noColor bool) *CardWriter {
	if renderer == nil {
		renderer = NewCDKDepict("")
	}
	return &CardWriter{out: out, renderer: renderer, styles: newCardStyles(out, noColor)}
}

// WriteCandidates prints one card per candidate.  An empty slice prints a
// single "no molecules" line.
func (cw *CardWriter) WriteCandidates(candidates []gentypes.Candidate) {
	if len(candidates) == 0 {
		fmt.Fprintln(cw.out, cw.styles.Label.Render("No molecules to display."))
		return
	}
	for i, c := range candidates {
		fmt.Fprintln(cw.out, cw.card(i+1, c))
	}
}

func (cw *CardWriter) card(n int, c gentypes.Candidate) string {
	d := cw.renderer.Depict(c.Structure)
	lines := []string{
		cw.styles.Title.Render(fmt.Sprintf("Molecule %d", n)),
		cw.field("SMILES", c.Structure),
		cw.field("Score", FormatNumber(c.Score)),
	}
	if d.URL != "" {
		lines = append(lines, cw.styles.Label.Render("Depiction: ")+cw.styles.Link.Render(d.URL))
	}
	return cw.styles.Card.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (cw *CardWriter) field(label, value string) string {
	return cw.styles.Label.Render(label+": ") + cw.styles.Value.Render(value)
}

// WriteWarning prints a non-blocking notice.
func (cw *CardWriter) WriteWarning(msg string) {
	if msg == "" {
		return
	}
	fmt.Fprintln(cw.out, cw.styles.Warning.Render("Warning: "+msg))
}

// WriteAlert prints a blocking failure notice.
func (cw *CardWriter) WriteAlert(msg string) {
	if msg == "" {
		return
	}
	fmt.Fprintln(cw.out, cw.styles.Alert.Render(msg))
}

// FormatNumber renders n for display; non-finite values print as "n/a".
func FormatNumber(n gentypes.Number) string {
	if !n.IsFinite() {
		return "n/a"
	}
	return strconv.FormatFloat(n.Float64(), 'f', -1, 64)
}

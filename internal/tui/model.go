// Package tui is a terminal inspector for a verifier report: it shows the
// checklist and score, pages through chunks and their similar corpus cases,
// and runs free-text corpus searches.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"levi/internal/domain"
	"levi/internal/service"
)

// SearchPort is the TUI-facing subset of the document service.
type SearchPort interface {
	SearchCorpus(ctx context.Context, query string, k int) (service.SearchResult, error)
}

type pane int

const (
	chunksPane pane = iota
	searchPane
)

// Model is the Bubble Tea model of the inspector.
type Model struct {
	svc      SearchPort
	name     string
	report   domain.VerifierReport
	input    textinput.Model
	viewport viewport.Model
	pane     pane
	cursor   int
	search   *service.SearchResult
	status   string
	ready    bool
}

// New creates an inspector for the report of the document called name.
func New(svc SearchPort, name string, report domain.VerifierReport) Model {
	ti := textinput.New()
	ti.Prompt = "search> "
	ti.Placeholder = "Type a query and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		svc:      svc,
		name:     name,
		report:   report,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "↑/↓ browse chunks, Enter searches the corpus, Tab switches view, Ctrl+C quits.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 3 + 1 + qh + 1 // header, checklist, spacer; status; input box; spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.Type {
		case tea.KeyEnter:
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m.runSearch(q)
				return m, nil
			}
		case tea.KeyTab:
			if m.search != nil {
				m.pane = 1 - m.pane
				m.cursor = 0
				m.refresh()
			}
			return m, nil
		case tea.KeyEsc:
			m.pane, m.cursor, m.search = chunksPane, 0, nil
			m.input.SetValue("")
			m.status = "Back to chunks."
			m.refresh()
			return m, nil
		case tea.KeyDown:
			if n := m.items(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.refresh()
			}
			return m, nil
		case tea.KeyUp:
			if n := m.items(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.refresh()
			}
			return m, nil
		case tea.KeyPgDown, tea.KeyPgUp:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) runSearch(q string) {
	res, err := m.svc.SearchCorpus(context.Background(), q, 10)
	if err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	m.search = &res
	m.pane = searchPane
	m.cursor = 0
	switch {
	case res.OutOfContext:
		m.status = fmt.Sprintf("%q looks out of context for this corpus (%s ranking).", q, res.Mode)
	default:
		m.status = fmt.Sprintf("%d results for %q (%s ranking).", len(res.Results), q, res.Mode)
	}
	m.refresh()
}

func (m Model) items() int {
	if m.pane == searchPane && m.search != nil {
		return len(m.search.Results)
	}
	return len(m.report.Chunks)
}

func (m *Model) refresh() {
	if m.pane == searchPane && m.search != nil {
		m.viewport.SetContent(m.renderSearchResult())
	} else {
		m.viewport.SetContent(m.renderChunk())
	}
	m.viewport.GotoTop()
}

// View renders the inspector layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render(fmt.Sprintf("Levi Report Inspector  %s", m.name)) +
		"  " + scoreStyle(m.report.SufficiencyScore).Render(fmt.Sprintf("sufficiency %.1f", m.report.SufficiencyScore))
	checklist := renderChecklist(m.report.RuleChecklist)
	body := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + checklist + "\n\n" + body + "\n" + input + "\n" + status
}

func renderChecklist(c domain.RuleChecklist) string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		if c[name] {
			parts[i] = passStyle.Render("✓ " + name)
		} else {
			parts[i] = failStyle.Render("✗ " + name)
		}
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderChunk() string {
	if len(m.report.Chunks) == 0 {
		return "The document has no chunks."
	}
	ch := m.report.Chunks[m.cursor]
	var b strings.Builder
	fmt.Fprintf(&b, "Chunk %d/%d\n\n%s\n\n", m.cursor+1, len(m.report.Chunks), ch.ChunkPreview)
	if len(ch.SimilarCases) == 0 {
		b.WriteString(dimStyle.Render("No similar cases."))
		return b.String()
	}
	b.WriteString(titleStyle.Render("Similar cases"))
	for i, sc := range ch.SimilarCases {
		fmt.Fprintf(&b, "\n\n%d. %s  score=%.3f\n%s", i+1, sc.ID, sc.Score, sc.Text)
	}
	return b.String()
}

func (m Model) renderSearchResult() string {
	if len(m.search.Results) == 0 {
		return "No corpus entries matched."
	}
	r := m.search.Results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  %s  score=%.3f", m.cursor+1, len(m.search.Results), r.ID, r.Score)
	return title + "\n\n" + highlightBestSentence(r.Text, m.search.Query)
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	passStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

func scoreStyle(score float64) lipgloss.Style {
	switch {
	case score >= 75:
		return passStyle
	case score >= 50:
		return highlightStyle
	default:
		return failStyle
	}
}

// highlightBestSentence emphasizes the sentence sharing the most distinct
// tokens with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	qTokens := toTokenSet(query)
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := tokenOverlap(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlap(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range toTokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

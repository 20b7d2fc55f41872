package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vecsearch/internal/domain"
	"vecsearch/internal/embedding/hashing"
	"vecsearch/internal/service"
)

// SearchPort is the TUI-facing subset of the search API.
type SearchPort interface {
	Retrieve(ctx context.Context, req service.RetrieveRequest) ([]domain.Hit, error)
	Health(ctx context.Context) (service.Health, error)
}

type resultsMsg struct {
	query string
	ns    domain.Namespace
	hits  []domain.Hit
	err   error
}

type healthMsg struct {
	health service.Health
	err    error
}

// Model is the Bubble Tea model for the search console.
type Model struct {
	service   SearchPort
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.Hit
	header    string
	status    string
	namespace int
	topK      int
	timeout   time.Duration
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a console bound to service. topK is the number of hits asked
// for per query.
func New(service SearchPort, header string, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter (Tab switches namespace)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	if topK < 1 {
		topK = 5
	}
	return Model{
		service:  service,
		input:    ti,
		viewport: vp,
		header:   header,
		topK:     topK,
		timeout:  30 * time.Second,
		status:   "Connecting...",
	}
}

// Init starts the cursor blink and the initial health probe.
func (m Model) Init() tea.Cmd { return tea.Batch(textinput.Blink, m.checkHealth()) }

func (m Model) currentNamespace() domain.Namespace {
	return domain.Namespaces()[m.namespace]
}

func (m Model) checkHealth() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		h, err := m.service.Health(ctx)
		return healthMsg{health: h, err: err}
	}
}

func (m Model) search(q string, ns domain.Namespace) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		hits, err := m.service.Retrieve(ctx, service.RetrieveRequest{TopK: m.topK, Query: q, Namespace: string(ns)})
		return resultsMsg{query: q, ns: ns, hits: hits, err: err}
	}
}

// Update handles key, window and async result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // header + namespace bar
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case healthMsg:
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
		case !msg.health.Ready:
			m.status = fmt.Sprintf("Index %q is not provisioned.", msg.health.Index)
		default:
			m.status = fmt.Sprintf("Connected to index %q. Type to search.", msg.health.Index)
		}
		return m, nil
	case resultsMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q in %s", len(msg.hits), msg.query, msg.ns)
			m.results = msg.hits
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m.status = "Searching..."
				return m, m.search(q, m.currentNamespace())
			}
		case "tab":
			m.namespace = (m.namespace + 1) % len(domain.Namespaces())
			return m, nil
		case "shift+tab":
			n := len(domain.Namespaces())
			m.namespace = (m.namespace - 1 + n) % n
			return m, nil
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the layout and the current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Namespaced Search") + "  " +
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.header)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + m.renderNamespaces() + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderNamespaces() string {
	parts := make([]string, 0, len(domain.Namespaces()))
	for i, ns := range domain.Namespaces() {
		if i == m.namespace {
			parts = append(parts, activeTabStyle.Render(string(ns)))
		} else {
			parts = append(parts, tabStyle.Render(string(ns)))
		}
	}
	return strings.Join(parts, " ")
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  id=%s  score=%.2f", m.cursor+1, len(m.results), r.ID, r.Score)
	if r.Title != "" {
		title += "\n" + lipgloss.NewStyle().Bold(true).Render(r.Title)
	}
	body := highlightBestSentence(r.Text, m.lastQuery)
	return title + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12")).Padding(0, 1)
	tokenRe        = hashing.TokenPattern()
	stopwords      = hashing.DefaultStopwords()
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := hashing.Tokenize(tokenRe, stopwords, s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range hashing.Tokenize(tokenRe, stopwords, sentence) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

var (
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pickStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

type resultsMsg struct {
	query    string
	products []domain.Product
	err      error
}

// browser is the Bubble Tea model behind `catalogctl browse`.
type browser struct {
	ctx      context.Context
	search   searcher
	limit    int
	input    textinput.Model
	viewport viewport.Model
	results  []domain.Product
	cursor   int
	status   string
	ready    bool
}

func newBrowser(ctx context.Context, s searcher, limit int) browser {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe a product and press Enter"
	ti.Focus()
	return browser{
		ctx:      ctx,
		search:   s,
		limit:    limit,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Type a query. Up/Down move through results, Ctrl-C quits.",
	}
}

func (m browser) Init() tea.Cmd { return textinput.Blink }

func (m browser) runSearch(q string) tea.Cmd {
	return func() tea.Msg {
		products, err := m.search.SearchText(m.ctx, q, nil, m.limit)
		return resultsMsg{query: q, products: products, err: err}
	}
}

func (m browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, frame := boxStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-4-2*frame)
		m.viewport.SetContent(m.render())
		return m, nil

	case resultsMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q", len(msg.products), msg.query)
			m.results = msg.products
		}
		m.cursor = 0
		m.viewport.SetContent(m.render())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if err := domain.ValidateQuery(q); err != nil {
				m.status = "Error: " + err.Error()
				return m, nil
			}
			m.status = "Searching..."
			return m, m.runSearch(q)
		case tea.KeyDown:
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.render())
			}
			return m, nil
		case tea.KeyUp:
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.render())
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m browser) View() string {
	if !m.ready {
		return "Loading..."
	}
	return titleStyle.Render("Product search") + "\n" +
		boxStyle.Render(m.viewport.View()) + "\n" +
		boxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(m.status)
}

func (m browser) render() string {
	if len(m.results) == 0 {
		return dimStyle.Render("No results yet.")
	}
	var b strings.Builder
	for i, p := range m.results {
		line := fmt.Sprintf("%2d. %s  %s", i+1, p.Name, dimStyle.Render(fmt.Sprintf("%.3f", p.Score)))
		if i == m.cursor {
			line = pickStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	p := m.results[m.cursor]
	fmt.Fprintf(&b, "\n%s\n%s\n", titleStyle.Render(p.Name), p.URL)
	if p.Category != "" {
		fmt.Fprintf(&b, "category: %s\n", p.Category)
	}
	if p.Tags != "" {
		fmt.Fprintf(&b, "tags: %s\n", p.Tags)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", p.Description)
	}
	return b.String()
}

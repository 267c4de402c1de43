// Package tui is the interactive numbered menu over a pipeline.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragpipe/internal/domain"
	"ragpipe/internal/generator"
	"ragpipe/internal/pipeline"
	"ragpipe/internal/textutil"
)

// Port is the TUI-facing subset of the pipeline.
type Port interface {
	Load(ctx context.Context, path string) (int, error)
	Process(ctx context.Context) (pipeline.ProcessReport, error)
	Query(ctx context.Context, question string, k int) (domain.QueryResult, error)
	BatchQuery(ctx context.Context, questions []string, k int) []domain.QueryResult
	Reset(ctx context.Context) error
	Stats(ctx context.Context) (domain.PipelineStats, error)
}

type action int

const (
	actLoadDir action = iota
	actLoadFile
	actProcess
	actAsk
	actAskMany
	actStats
	actReset
	actConfig
	actExit
)

type menuItem struct {
	label       string
	prompt      string
	placeholder string
}

var menu = []menuItem{
	actLoadDir:  {label: "Load documents from directory", prompt: "Directory", placeholder: "empty for the configured documents path"},
	actLoadFile: {label: "Load single document", prompt: "File", placeholder: "path to a .txt or .pdf file"},
	actProcess:  {label: "Process documents"},
	actAsk:      {label: "Ask a question", prompt: "Question", placeholder: "What is this document about?"},
	actAskMany:  {label: "Ask multiple questions", prompt: "Questions", placeholder: "separate questions with ;"},
	actStats:    {label: "View statistics"},
	actReset:    {label: "Reset pipeline", prompt: "Type yes to confirm", placeholder: "yes"},
	actConfig:   {label: "View configuration"},
	actExit:     {label: "Exit"},
}

// resultMsg carries the outcome of a pipeline call back to Update.
type resultMsg struct {
	title string
	body  string
	err   error
}

// Model is the Bubble Tea model for the menu.
type Model struct {
	port       Port
	configText string
	ctx        context.Context

	input     textinput.Model
	viewport  viewport.Model
	cursor    int
	prompting bool
	pending   action
	busy      bool
	ready     bool
	status    string
}

// New creates the menu. configText is shown by "View configuration".
func New(ctx context.Context, port Port, configText string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	vp.SetContent("Choose an option with 1-9 or the arrow keys and Enter.")
	return Model{
		port:       port,
		configText: configText,
		ctx:        ctx,
		input:      ti,
		viewport:   vp,
		status:     "Ready.",
	}
}

// Init has nothing to start; the menu waits for input.
func (m Model) Init() tea.Cmd { return nil }

// Update handles key, window and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + len(menu) + 1 + qh + 1 + 1 // header, menu, spacer, input, status, spacer
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		return m, nil
	case resultMsg:
		m.busy = false
		if msg.err != nil {
			m.status = errorStyle.Render(describeError(msg.err))
			if msg.body == "" {
				msg.body = describeError(msg.err)
			}
		} else {
			m.status = okStyle.Render(msg.title)
		}
		m.viewport.SetContent(msg.body)
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.prompting {
			return m.updatePrompt(msg)
		}
		return m.updateMenu(msg)
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.cursor = (m.cursor - 1 + len(menu)) % len(menu)
		return m, nil
	case "down", "j":
		m.cursor = (m.cursor + 1) % len(menu)
		return m, nil
	case "enter":
		return m.choose(action(m.cursor))
	}
	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		m.cursor = int(key[0] - '1')
		return m.choose(action(m.cursor))
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompting = false
		m.input.Blur()
		m.status = "Cancelled."
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		m.prompting = false
		m.input.Blur()
		m.input.SetValue("")
		return m.submit(m.pending, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// choose starts an action, asking for input first when it needs some.
func (m Model) choose(a action) (tea.Model, tea.Cmd) {
	if m.busy {
		m.status = "Still working..."
		return m, nil
	}
	item := menu[a]
	switch a {
	case actExit:
		return m, tea.Quit
	case actConfig:
		m.viewport.SetContent(m.configText)
		m.viewport.GotoTop()
		m.status = okStyle.Render("Configuration")
		return m, nil
	}
	if item.prompt != "" {
		m.prompting = true
		m.pending = a
		m.input.Prompt = item.prompt + ": "
		m.input.Placeholder = item.placeholder
		m.input.SetValue("")
		m.input.Focus()
		m.status = "Enter submits, Esc cancels."
		return m, textinput.Blink
	}
	return m.submit(a, "")
}

func (m Model) submit(a action, value string) (tea.Model, tea.Cmd) {
	ctx, port := m.ctx, m.port
	var run func() resultMsg
	switch a {
	case actLoadDir, actLoadFile:
		if a == actLoadFile && value == "" {
			m.status = errorStyle.Render("A file path is required.")
			return m, nil
		}
		run = func() resultMsg {
			n, err := port.Load(ctx, value)
			body := fmt.Sprintf("Loaded %d new document(s).", n)
			if n == 0 && err == nil {
				body = "No new documents were loaded. Check the path contains .txt or .pdf files."
			}
			if err != nil && n > 0 {
				body += "\n\nSome files could not be read:\n" + err.Error()
				err = nil
			}
			return resultMsg{title: "Load complete", body: body, err: err}
		}
	case actProcess:
		run = func() resultMsg {
			rep, err := port.Process(ctx)
			if err != nil {
				return resultMsg{err: err}
			}
			body := fmt.Sprintf("Processed %d document(s) into %d chunk(s).\nChunks indexed: %d", rep.Documents, rep.Chunks, rep.State.ChunksIndexed)
			if rep.Documents == 0 {
				body = fmt.Sprintf("Nothing new to process. Chunks indexed: %d", rep.State.ChunksIndexed)
			}
			return resultMsg{title: "Processing complete", body: body}
		}
	case actAsk:
		if value == "" {
			m.status = errorStyle.Render("The question is empty.")
			return m, nil
		}
		run = func() resultMsg {
			res, err := port.Query(ctx, value, 0)
			if err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{title: "Answer", body: renderResult(res)}
		}
	case actAskMany:
		questions := splitQuestions(value)
		if len(questions) == 0 {
			m.status = errorStyle.Render("No questions given.")
			return m, nil
		}
		run = func() resultMsg {
			results := port.BatchQuery(ctx, questions, 0)
			parts := make([]string, len(results))
			failed := 0
			for i, r := range results {
				if r.Err != nil {
					failed++
				}
				parts[i] = fmt.Sprintf("%d. %s", i+1, renderResult(r))
			}
			return resultMsg{
				title: fmt.Sprintf("Answered %d of %d question(s)", len(results)-failed, len(results)),
				body:  strings.Join(parts, "\n\n"),
			}
		}
	case actStats:
		run = func() resultMsg {
			st, err := port.Stats(ctx)
			if err != nil {
				return resultMsg{err: err}
			}
			var b strings.Builder
			if err := pipeline.WriteStats(&b, st); err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{title: "Statistics", body: b.String()}
		}
	case actReset:
		if !strings.EqualFold(value, "yes") {
			m.status = "Reset cancelled."
			return m, nil
		}
		run = func() resultMsg {
			if err := port.Reset(ctx); err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{title: "Pipeline reset", body: "The vector index was cleared and all counters were reset."}
		}
	default:
		return m, nil
	}
	m.busy = true
	m.status = "Working on: " + menu[a].label + "..."
	return m, func() tea.Msg { return run() }
}

// View renders the menu, the result pane and the input line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("RAG Pipeline"))
	b.WriteString("\n")
	for i, item := range menu {
		line := fmt.Sprintf("%d. %s", i+1, item.label)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString(resultBoxStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	if m.prompting {
		b.WriteString(queryBoxStyle.Render(m.input.View()))
		b.WriteString("\n")
	}
	b.WriteString(m.status)
	return b.String()
}

func splitQuestions(s string) []string {
	var out []string
	for _, q := range strings.Split(s, ";") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// describeError prefixes an error with the stage it came from.
func describeError(err error) string {
	if stage, ok := domain.StageOf(err); ok {
		return fmt.Sprintf("Error during %s: %v", stage, err)
	}
	return "Error: " + err.Error()
}

func renderResult(r domain.QueryResult) string {
	var b strings.Builder
	b.WriteString(questionStyle.Render("Q: " + r.Question))
	b.WriteString("\n")
	if r.Err != nil {
		b.WriteString(errorStyle.Render(describeError(r.Err)))
		return b.String()
	}
	b.WriteString(r.Answer)
	for i, c := range r.Sources {
		fmt.Fprintf(&b, "\n\n[%d] %s  score=%.3f\n", i+1, generator.SourceLabel(c), r.Scores[i])
		b.WriteString(highlightBestSentence(c.Text, r.Question))
	}
	return b.String()
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// highlightBestSentence emphasises the sentence sharing the most words with
// the query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textutil.Sentences(text)
	qTokens := textutil.TokenSet(query)
	if len(qTokens) == 0 || len(sentences) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		if score := textutil.Overlap(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

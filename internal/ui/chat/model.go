// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/gemchat/internal/attach"
	"github.com/jeranaias/gemchat/internal/commands"
	"github.com/jeranaias/gemchat/internal/engine"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the chat view.
type Options struct {
	// Engine is required.
	Engine *engine.Engine

	// Theme defaults to an auto-detected theme.
	Theme *styles.Theme

	// Registry defaults to the built-in commands.
	Registry *commands.Registry

	// Pending defaults to an empty set.
	Pending *attach.Pending

	ExportDir    string
	ExportFormat string

	// Markdown renders committed model turns through glamour.
	Markdown bool

	// WordWrap wraps turns to the window width.
	WordWrap bool

	// WatchDir, when set, is watched so the session list follows changes
	// made by other processes.
	WatchDir string

	// Context bounds every send. Defaults to context.Background().
	Context context.Context

	Logger *slog.Logger
}

// inputHeight is the textarea height in lines.
const inputHeight = 3

// maxCompletionRows caps the suggestion list.
const maxCompletionRows = 5

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	engine *engine.Engine
	theme  *styles.Theme
	logger *slog.Logger
	ctx    context.Context
	bridge *bridge

	// Commands
	registry          *commands.Registry
	cmdCtx            *commands.Context
	completer         *commands.Completer
	completion        *commands.CompletionState
	completionApplied bool
	sessions          *sessionList

	pending  *attach.Pending
	md       *markdown
	wordWrap bool

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	retryBar progress.Model
	help     help.Model
	keys     KeyMap

	// Dimensions
	width  int
	height int
	ready  bool

	// Last engine snapshot
	state engine.State

	// Command output shown below the conversation
	notice    string
	noticeErr bool

	quitting bool
}

// sessionList is shared between copies of the model and the completer.
type sessionList struct {
	mu    sync.RWMutex
	metas []storage.Meta
}

func (s *sessionList) get() []storage.Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metas
}

func (s *sessionList) set(metas []storage.Meta) {
	s.mu.Lock()
	s.metas = metas
	s.mu.Unlock()
}

// New creates a chat view over opts.Engine. It does not subscribe to the
// engine; Run does that.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(styles.ModeAuto)
	}
	registry := opts.Registry
	if registry == nil {
		registry = commands.NewRegistry()
	}
	pending := opts.Pending
	if pending == nil {
		pending = &attach.Pending{}
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ti := textarea.New()
	ti.Placeholder = "Message Gemini (/help for commands)"
	ti.ShowLineNumbers = false
	ti.Prompt = ""
	ti.CharLimit = 32000
	ti.SetHeight(inputHeight)
	ti.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	sp := spinner.New(
		spinner.WithSpinner(spinner.Spinner{
			Frames: styles.LineSpinner.Frames,
			FPS:    styles.LineSpinner.Duration(),
		}),
		spinner.WithStyle(theme.Spinner),
	)

	fill := styles.Amber.Light
	if theme.IsDark {
		fill = styles.Amber.Dark
	}
	pb := progress.New(
		progress.WithSolidFill(fill),
		progress.WithoutPercentage(),
		progress.WithWidth(30),
	)

	h := help.New()
	h.Styles.ShortKey = theme.ShortcutKey
	h.Styles.ShortDesc = theme.ShortcutDesc
	h.Styles.ShortSeparator = theme.ShortcutDesc

	sessions := &sessionList{}
	completer := commands.NewCompleter(registry)
	completer.SessionsFn = sessions.get

	m := Model{
		engine:     opts.Engine,
		theme:      theme,
		logger:     logger,
		ctx:        ctx,
		registry:   registry,
		completer:  completer,
		completion: commands.NewCompletionState(),
		sessions:   sessions,
		pending:    pending,
		md:         newMarkdown(opts.Markdown, theme.GlamourStyle()),
		wordWrap:   opts.WordWrap,
		viewport:   vp,
		input:      ti,
		spinner:    sp,
		retryBar:   pb,
		help:       h,
		keys:       DefaultKeyMap(),
		cmdCtx: &commands.Context{
			Engine:       opts.Engine,
			Pending:      pending,
			ExportDir:    opts.ExportDir,
			ExportFormat: opts.ExportFormat,
		},
	}
	if opts.Engine != nil {
		m.state = opts.Engine.Snapshot()
	}
	return m
}

// withBridge attaches the channels Run feeds.
func (m Model) withBridge(b *bridge) Model {
	m.bridge = b
	return m
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the cursor blink and the listeners.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.loadSessions()}
	if m.bridge != nil {
		cmds = append(cmds, m.bridge.waitState(), m.bridge.waitSessions())
	}
	if m.state.Sending {
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case StateMsg:
		return m.handleState(msg.State)

	case SendDoneMsg:
		return m.handleSendDone(msg)

	case SessionsChangedMsg:
		cmds := []tea.Cmd{m.loadSessions()}
		if m.bridge != nil {
			cmds = append(cmds, m.bridge.waitSessions())
		}
		return m, tea.Batch(cmds...)

	case SessionsLoadedMsg:
		if msg.Err == nil {
			m.sessions.set(msg.Sessions)
		}
		return m, nil

	case NoticeMsg:
		m.setNotice(msg.Text, false)
		return m, nil

	case spinner.TickMsg:
		if !m.state.Sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state.Partial == "" {
			m.refreshContent(false)
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat view.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	return stack(m.renderTop(), m.viewport.View(), m.renderBottom())
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the last engine snapshot the view rendered.
func (m Model) State() engine.State {
	return m.state
}

// Notice returns the text shown below the conversation.
func (m Model) Notice() string {
	return m.notice
}

// InputValue returns the text in the input box.
func (m Model) InputValue() string {
	return m.input.Value()
}

// Quitting reports whether the view asked to exit.
func (m Model) Quitting() bool {
	return m.quitting
}

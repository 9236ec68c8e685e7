// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// progress.go - Line-mode rendering of engine state for ask and chat.

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/gemchat/internal/engine"
	"github.com/jeranaias/gemchat/internal/retry"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// retryBarWidth is the width of the ASCII retry bar.
const retryBarWidth = 20

// clearLine returns the cursor to column 0 and erases the line.
const clearLine = "\r\x1b[K"

// retryLine renders the backoff countdown, e.g.
// "[~] Retry 2/3 in 4s [#########-----------]".
func retryLine(r retry.State) string {
	remaining := time.Duration(r.RemainingMs) * time.Millisecond
	return fmt.Sprintf("%s Retry %d/%d in %s [%s]",
		styles.StatusIndicators.Retry,
		r.Attempt,
		r.MaxAttempts-1,
		formatCountdown(remaining),
		styles.RenderProgressBar(retryBarWidth, r.Progress()*100))
}

// formatCountdown rounds up to whole seconds: "3s" or "1m05s".
func formatCountdown(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter writes a reply to out as the engine reveals it, and keeps
// one transient status line (retry countdown, slow connection) on status.
// Methods are safe to call from engine listener goroutines.
type streamPrinter struct {
	mu sync.Mutex

	out    io.Writer
	status io.Writer // nil disables the status line

	// stream writes the partial reply as it grows; otherwise only the
	// status line moves.
	stream bool

	active      bool
	printed     string
	statusShown bool

	// abandoned is the text of a failed attempt. The engine keeps showing
	// it until the retry sends data, so it is not printed twice.
	abandoned string
}

func newStreamPrinter(out, status io.Writer, stream bool) *streamPrinter {
	return &streamPrinter{out: out, status: status, stream: stream}
}

// Begin starts a reply. Updates outside Begin and Finish or Abort are
// ignored.
func (p *streamPrinter) Begin() {
	p.mu.Lock()
	p.active = true
	p.printed = ""
	p.abandoned = ""
	p.mu.Unlock()
}

// Update renders st.
func (p *streamPrinter) Update(st engine.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return
	}

	switch {
	case st.Retrying && st.Retry.Active():
		if p.printed != "" {
			// The reply starts over on the next attempt.
			fmt.Fprintln(p.out)
			p.abandoned = p.printed
			p.printed = ""
		}
		p.showStatus(retryLine(st.Retry))
		return

	case st.ConnectivityWarning && p.printed == "":
		p.showStatus(styles.StatusIndicators.Warning + " Connection looks slow. Still waiting for a reply...")
		return
	}

	if !p.stream || st.Partial == "" || st.Partial == p.abandoned {
		if !st.Sending {
			p.clearStatus()
		}
		return
	}

	p.clearStatus()
	p.abandoned = ""
	p.write(st.Partial)
}

// Finish writes whatever part of reply is not on screen yet and ends the
// line. It resets the printer for the next reply.
func (p *streamPrinter) Finish(reply string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearStatus()
	if reply != "" && (reply != p.abandoned || p.printed != "") {
		p.write(reply)
	}
	if p.printed != "" && !strings.HasSuffix(p.printed, "\n") {
		fmt.Fprintln(p.out)
	}
	p.printed = ""
	p.abandoned = ""
	p.active = false
}

// Abort ends a reply that will not be completed.
func (p *streamPrinter) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearStatus()
	if p.printed != "" {
		fmt.Fprintln(p.out)
	}
	p.printed = ""
	p.active = false
}

// write brings the printed text up to text.
func (p *streamPrinter) write(text string) {
	if strings.HasPrefix(text, p.printed) {
		io.WriteString(p.out, text[len(p.printed):])
	} else {
		fmt.Fprintln(p.out)
		io.WriteString(p.out, text)
	}
	p.printed = text
}

func (p *streamPrinter) showStatus(line string) {
	if p.status == nil {
		return
	}
	fmt.Fprint(p.status, clearLine+DimStyle.Render(line))
	p.statusShown = true
}

func (p *streamPrinter) clearStatus() {
	if p.status == nil || !p.statusShown {
		return
	}
	fmt.Fprint(p.status, clearLine)
	p.statusShown = false
}

package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/bimmerbailey/streamchat/internal/session"
)

// ChatRenderer draws conversation events on a terminal. A terminal cannot
// redraw the whole reply cheaply, so each partial event prints only the text
// added since the previous one. When colors are on, the cursor marker is
// drawn after the text and erased with a backspace before the next write.
type ChatRenderer struct {
	w        io.Writer
	color    bool
	echoUser bool

	shown    string // reply text already printed, without the cursor
	cursorOn bool
	inReply  bool
}

// NewChatRenderer creates a renderer writing to w. User turns are printed
// only when echoUser is set, since an interactive user already sees them.
func NewChatRenderer(w io.Writer, mode ColorMode, echoUser bool) *ChatRenderer {
	return &ChatRenderer{
		w:        w,
		color:    shouldColorize(mode, w),
		echoUser: echoUser,
	}
}

// Render implements session.Renderer.
func (r *ChatRenderer) Render(e session.Event) error {
	switch e.Kind {
	case session.EventTurn:
		if !r.echoUser {
			return nil
		}
		_, err := fmt.Fprintf(r.w, "%s %s\n", paint(r.color, colorCyan+colorBold, "you:"), e.Text)
		return err

	case session.EventPartial:
		return r.write(strings.TrimSuffix(e.Text, session.Cursor), r.color)

	case session.EventFinal:
		if err := r.write(e.Text, false); err != nil {
			return err
		}
		r.reset()
		_, err := io.WriteString(r.w, "\n")
		return err

	case session.EventError:
		if err := r.eraseCursor(); err != nil {
			return err
		}
		if r.inReply {
			if _, err := io.WriteString(r.w, "\n"); err != nil {
				return err
			}
		}
		r.reset()
		_, err := fmt.Fprintln(r.w, paint(r.color, colorRed, e.Text))
		return err
	}
	return nil
}

// write prints the part of text not shown yet, replacing any drawn cursor,
// and draws a new cursor when asked.
func (r *ChatRenderer) write(text string, cursor bool) error {
	var b strings.Builder

	if !r.inReply {
		b.WriteString(paint(r.color, colorBold, "assistant:"))
		b.WriteString(" ")
		r.inReply = true
	}
	if r.cursorOn {
		b.WriteString("\b \b")
		r.cursorOn = false
	}

	// A reply only grows; anything else is redrawn from scratch.
	delta := text
	if strings.HasPrefix(text, r.shown) {
		delta = text[len(r.shown):]
	} else {
		b.WriteString("\n")
	}
	b.WriteString(delta)
	r.shown = text

	if cursor {
		b.WriteString(paint(true, colorGray, session.Cursor))
		r.cursorOn = true
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *ChatRenderer) eraseCursor() error {
	if !r.cursorOn {
		return nil
	}
	r.cursorOn = false
	_, err := io.WriteString(r.w, "\b \b")
	return err
}

func (r *ChatRenderer) reset() {
	r.shown = ""
	r.cursorOn = false
	r.inReply = false
}

// Warn prints a warning line, used for REPL command feedback.
func (r *ChatRenderer) Warn(format string, args ...any) {
	fmt.Fprintln(r.w, paint(r.color, colorYellow, fmt.Sprintf(format, args...)))
}

// Info prints a dimmed informational line.
func (r *ChatRenderer) Info(format string, args ...any) {
	fmt.Fprintln(r.w, paint(r.color, colorGray, fmt.Sprintf(format, args...)))
}

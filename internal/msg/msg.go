package msg

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
)

var (
	verbosity atomic.Int32
	// out is shared by every printer; compiler output streamed in parallel
	// goes through the same lock so lines don't interleave mid-line.
	outMu sync.Mutex
	out   io.Writer = os.Stdout
)

// SetVerbosity sets how chatty Debug (1) and Trace (2) are.
func SetVerbosity(level int) { verbosity.Store(int32(level)) }

func Verbosity() int { return int(verbosity.Load()) }

// SetOutput redirects all messages, mostly for tests. nil restores stdout.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	outMu.Lock()
	out = w
	outMu.Unlock()
}

func printPrefixed(prefix string, format string, a ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprint(out, prefix)
	fmt.Fprint(out, ": ")
	fmt.Fprintf(out, format, a...)
	fmt.Fprint(out, "\n")
}

func Error(format string, a ...any) {
	printPrefixed(color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	printPrefixed(color.YellowString("warn"), format, a...)
}

// Fatal prints and exits with the given code.
func Fatal(code int, format string, a ...any) {
	printPrefixed(color.RedString("fatal"), format, a...)
	os.Exit(code)
}

func Info(format string, a ...any) {
	printPrefixed(color.HiGreenString("info"), format, a...)
}

func Debug(format string, a ...any) {
	if Verbosity() < 1 {
		return
	}
	printPrefixed(color.CyanString("debug"), format, a...)
}

func Trace(format string, a ...any) {
	if Verbosity() < 2 {
		return
	}
	printPrefixed(color.HiBlackString("trace"), format, a...)
}

// Status prints a right-aligned verb followed by a message, cargo style.
func Status(verb, format string, a ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(out, "%12s %s\n", color.HiGreenString(verb), fmt.Sprintf(format, a...))
}

// IndentWriter prefixes every line written through it. Lines are buffered
// until complete and flushed under the shared output lock.
type IndentWriter struct {
	Indent string
	W      io.Writer
	buf    bytes.Buffer
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	w.buf.Write(p)
	for {
		line, rerr := w.buf.ReadBytes('\n')
		if rerr != nil {
			// incomplete line, keep it for the next write
			w.buf.Write(line)
			break
		}
		if err := w.emit(line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush writes out a trailing partial line, if any.
func (w *IndentWriter) Flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	line := append(w.buf.Bytes(), '\n')
	w.buf.Reset()
	return w.emit(line)
}

func (w *IndentWriter) emit(line []byte) error {
	dst := w.W
	if dst == nil {
		dst = out
	}
	outMu.Lock()
	defer outMu.Unlock()
	if _, err := io.WriteString(dst, w.Indent); err != nil {
		return err
	}
	_, err := dst.Write(line)
	return err
}

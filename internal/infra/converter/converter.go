// Package converter wraps the external PDF-to-DOCX conversion capability.
// The conversion itself is a black box; this package only builds the
// invocation and reports its outcome as an error.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"pdf2docx/internal/domain"
)

// Converter turns the PDF at inputPath into a DOCX at outputPath covering pages.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string, pages domain.PageRange) error
}

// Placeholders expanded in argument templates.
const (
	phInput  = "{input}"
	phOutput = "{output}"
	phStart  = "{start}"
	phEnd    = "{end}"
)

// DefaultArgs invokes the pdf2docx command line tool. The --end flag is only
// appended when the range is bounded.
var DefaultArgs = []string{"convert", phInput, phOutput, "--start=" + phStart}

// maxStderr bounds how much tool output is kept for error messages.
const maxStderr = 4 << 10

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args []string, stderr io.Writer) error
}

type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) { return exec.LookPath(file) }

func (osExecutor) Run(ctx context.Context, name string, args []string, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = stderr
	return cmd.Run()
}

// Command runs an external tool once per conversion.
type Command struct {
	bin     string
	args    []string
	timeout time.Duration
	exec    executor
}

// NewCommand returns a Command running bin with the given argument template.
// A nil or empty args uses DefaultArgs. A zero timeout leaves the call unbounded.
func NewCommand(bin string, args []string, timeout time.Duration) *Command {
	return newCommand(bin, args, timeout, osExecutor{})
}

func newCommand(bin string, args []string, timeout time.Duration, ex executor) *Command {
	if len(args) == 0 {
		args = DefaultArgs
	}
	return &Command{bin: bin, args: args, timeout: timeout, exec: ex}
}

// Name returns the configured binary.
func (c *Command) Name() string { return c.bin }

// Available reports whether the binary can be found.
func (c *Command) Available() error {
	if _, err := c.exec.LookPath(c.bin); err != nil {
		return fmt.Errorf("converter %s not found: %w", c.bin, err)
	}
	return nil
}

// Convert runs the tool. Non-zero exits, start failures and timeouts are
// returned as errors carrying the tail of the tool's stderr.
func (c *Command) Convert(ctx context.Context, inputPath, outputPath string, pages domain.PageRange) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := c.expand(inputPath, outputPath, pages)
	var stderr bytes.Buffer
	err := c.exec.Run(ctx, c.bin, args, &limitedWriter{w: &stderr, n: maxStderr})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(err, ctxErr)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("running %s: %w: %s", c.bin, err, msg)
	}
	return fmt.Errorf("running %s: %w", c.bin, err)
}

func (c *Command) expand(inputPath, outputPath string, pages domain.PageRange) []string {
	end := ""
	if pages.End > 0 {
		end = strconv.Itoa(pages.End)
	}
	r := strings.NewReplacer(
		phInput, inputPath,
		phOutput, outputPath,
		phStart, strconv.Itoa(pages.Start),
		phEnd, end,
	)

	out := make([]string, 0, len(c.args)+1)
	usesEnd := false
	for _, a := range c.args {
		if strings.Contains(a, phEnd) {
			usesEnd = true
			if end == "" {
				continue
			}
		}
		out = append(out, r.Replace(a))
	}
	if !usesEnd && end != "" && isDefault(c.args) {
		out = append(out, "--end="+end)
	}
	return out
}

func isDefault(args []string) bool {
	if len(args) != len(DefaultArgs) {
		return false
	}
	for i := range args {
		if args[i] != DefaultArgs[i] {
			return false
		}
	}
	return true
}

// limitedWriter keeps the first n bytes and drops the rest.
type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	if l.n <= 0 {
		return total, nil
	}
	if len(p) > l.n {
		p = p[:l.n]
	}
	n, err := l.w.Write(p)
	l.n -= n
	if err != nil {
		return n, err
	}
	return total, nil
}

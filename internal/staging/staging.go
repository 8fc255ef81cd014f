// Package staging manages the request-scoped files a conversion reads and
// writes. Every Job owns a unique input and output path under one Area.
package staging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"pdf2docx/internal/domain"
)

const (
	inputPrefix  = "temp_input_"
	outputPrefix = "converted_output_"

	// headerWindow is how far into the file the PDF marker may appear.
	headerWindow = 1024
)

var pdfMarker = []byte("%PDF-")

// Area is a directory shared by all in-flight jobs.
type Area struct {
	dir string
}

// NewArea returns an Area rooted at dir, creating the directory if needed.
func NewArea(dir string) (*Area, error) {
	if dir == "" {
		return nil, errors.New("staging dir is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return &Area{dir: dir}, nil
}

// Dir returns the root directory of the area.
func (a *Area) Dir() string { return a.dir }

// Ready reports whether the staging directory is present.
func (a *Area) Ready() bool {
	st, err := os.Stat(a.dir)
	return err == nil && st.IsDir()
}

// Job is one request's pair of staged files. Nothing is created on disk until
// the input is written.
type Job struct {
	ID         string
	InputPath  string
	OutputPath string
}

// Allocate reserves unique paths for a new job.
func (a *Area) Allocate() *Job {
	id := uuid.NewString()
	return &Job{
		ID:         id,
		InputPath:  filepath.Join(a.dir, inputPrefix+id+".pdf"),
		OutputPath: filepath.Join(a.dir, outputPrefix+id+".docx"),
	}
}

// WriteInput copies r to the input path and syncs it to disk before closing.
func (j *Job) WriteInput(r io.Reader) (int64, error) {
	f, err := os.OpenFile(j.InputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create staged input: %w", err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return n, fmt.Errorf("write staged input: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return n, fmt.Errorf("sync staged input: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close staged input: %w", err)
	}
	return n, nil
}

// WriteInputBytes is WriteInput for an in-memory payload.
func (j *Job) WriteInputBytes(b []byte) (int64, error) {
	return j.WriteInput(bytes.NewReader(b))
}

// VerifyInput checks that the staged input exists, is non-empty and starts
// with a readable PDF header. Failures are domain.KindBadInput errors unless
// the file could not be read for another reason.
func (j *Job) VerifyInput() (int64, error) {
	st, err := os.Stat(j.InputPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, domain.BadInput(domain.MsgEmptyUpload, domain.ErrEmptyUpload)
	}
	if err != nil {
		return 0, domain.Internal(fmt.Errorf("stat staged input: %w", err))
	}
	if st.Size() == 0 {
		return 0, domain.BadInput(domain.MsgEmptyUpload, domain.ErrEmptyUpload)
	}

	f, err := os.Open(j.InputPath)
	if err != nil {
		return 0, domain.Internal(fmt.Errorf("open staged input: %w", err))
	}
	defer f.Close()

	head := make([]byte, headerWindow)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, domain.Internal(fmt.Errorf("read staged input: %w", err))
	}
	if !bytes.Contains(head[:n], pdfMarker) {
		return 0, domain.BadInput(domain.MsgNotPDF, domain.ErrNotPDF)
	}
	return st.Size(), nil
}

// VerifyOutput checks that the converter left a non-empty output file.
func (j *Job) VerifyOutput() (int64, error) {
	st, err := os.Stat(j.OutputPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, domain.ErrNoOutput
	}
	if err != nil {
		return 0, fmt.Errorf("stat staged output: %w", err)
	}
	if st.Size() == 0 {
		return 0, domain.ErrNoOutput
	}
	return st.Size(), nil
}

// CleanupResult records what happened to one staged path.
type CleanupResult struct {
	Path    string
	Removed bool
	Err     error
}

// Cleanup removes both staged files. Paths that were never created are
// reported with Removed=false and no error.
func (j *Job) Cleanup() []CleanupResult {
	out := make([]CleanupResult, 0, 2)
	for _, p := range []string{j.InputPath, j.OutputPath} {
		err := os.Remove(p)
		switch {
		case err == nil:
			out = append(out, CleanupResult{Path: p, Removed: true})
		case errors.Is(err, os.ErrNotExist):
			out = append(out, CleanupResult{Path: p})
		default:
			out = append(out, CleanupResult{Path: p, Err: err})
		}
	}
	return out
}

// Sweep removes staged files older than maxAge, left behind by a process that
// died mid-request. It returns the number of files removed.
func (a *Area) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !isStagedName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func isStagedName(name string) bool {
	return (strings.HasPrefix(name, inputPrefix) && strings.HasSuffix(name, ".pdf")) ||
		(strings.HasPrefix(name, outputPrefix) && strings.HasSuffix(name, ".docx"))
}

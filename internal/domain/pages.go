package domain

import "fmt"

// PageRange selects pages by zero-based index. Start is inclusive, End is
// exclusive, and End == 0 means through the last page.
type PageRange struct {
	Start int
	End   int
}

// AllPages covers the whole document.
var AllPages = PageRange{}

// IsAll reports whether r covers the whole document.
func (r PageRange) IsAll() bool { return r.Start == 0 && r.End == 0 }

// Validate checks r against a document of pageCount pages. A pageCount of 0
// or less skips the upper-bound check.
func (r PageRange) Validate(pageCount int) error {
	if r.Start < 0 || r.End < 0 {
		return fmt.Errorf("page range %s: negative index", r)
	}
	if r.End != 0 && r.End <= r.Start {
		return fmt.Errorf("page range %s: end must be greater than start", r)
	}
	if pageCount > 0 {
		if r.Start >= pageCount {
			return fmt.Errorf("page range %s: start beyond last page (%d pages)", r, pageCount)
		}
		if r.End > pageCount {
			return fmt.Errorf("page range %s: end beyond last page (%d pages)", r, pageCount)
		}
	}
	return nil
}

func (r PageRange) String() string {
	if r.End == 0 {
		return fmt.Sprintf("[%d:]", r.Start)
	}
	return fmt.Sprintf("[%d:%d]", r.Start, r.End)
}

package pdfdoc

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// Splitter cuts single pages out of a document with pdfcpu
type Splitter struct{}

// NewSplitter creates a splitter. pdfcpu is kept from reading or writing
// its per-user configuration directory.
func NewSplitter() *Splitter {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Splitter{}
}

// pdfcpu commands record state in the configuration, so each call gets its own
func (s *Splitter) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	// Classic xref tables keep the output readable by older viewers
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// PageCount returns the number of pages in data
func (s *Splitter) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), s.config())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return n, nil
}

// SplitPage returns a new document holding only the page at the zero-based
// index. data is never modified.
func (s *Splitter) SplitPage(data []byte, index int) ([]byte, error) {
	count, err := s.PageCount(data)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= count {
		return nil, &RangeError{Index: index, Count: count}
	}

	var out bytes.Buffer
	selected := []string{strconv.Itoa(index + 1)}
	if err := api.Trim(bytes.NewReader(data), &out, selected, s.config()); err != nil {
		return nil, fmt.Errorf("failed to split page %d: %w", index+1, err)
	}
	return out.Bytes(), nil
}

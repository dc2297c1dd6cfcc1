// Package pdfdoc reads per-page text from PDF documents and cuts single
// pages out of them.
package pdfdoc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPages returns the text of every page in order. A page without
// text keeps its slot so that index i is always page i+1.
func ExtractPages(data []byte) (pages []string, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: documento vacío", ErrExtraction)
	}

	// The parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	n := reader.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("%w: el documento no tiene páginas", ErrExtraction)
	}

	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() || page.V.Key("Contents").IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: página %d: %v", ErrExtraction, i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	return pages, nil
}

// Package chunk partitions a multi-document page selection into the
// physically homogeneous units the print backend accepts. A chunk is a
// maximal run of selected pages sharing one media size; chunks may span
// document boundaries when the media matches.
package chunk

import (
	"fmt"

	"github.com/printworks/relay/internal/supplier"
)

// DocumentInfo is the chunker's view of one document in its original order.
type DocumentInfo struct {
	Index int
	Pages int
	Media supplier.MediaSize
}

// PageRange addresses pages within one source document, 1-based inclusive.
type PageRange struct {
	DocumentIndex int
	Begin         int
	End           int
}

func (r PageRange) Pages() int {
	return r.End - r.Begin + 1
}

// Chunk is an ordered list of page ranges sharing one media size.
type Chunk struct {
	Media  supplier.MediaSize
	Ranges []PageRange
}

func (c Chunk) Pages() int {
	total := 0
	for _, r := range c.Ranges {
		total += r.Pages()
	}
	return total
}

// Partition walks the selection in document order and groups the selected
// pages into chunks. Concatenating all chunks' ranges in order reproduces
// the input selection exactly; an attribute mismatch between consecutive
// ranges forces a new chunk.
func Partition(docs []DocumentInfo, selection string) ([]Chunk, error) {
	totalPages := 0
	for _, d := range docs {
		if d.Pages < 0 {
			return nil, fmt.Errorf("document %d has negative page count", d.Index)
		}
		totalPages += d.Pages
	}

	selected, err := parseSelection(selection, totalPages)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	var current *Chunk

	for _, sel := range selected {
		for _, local := range splitByDocument(docs, sel) {
			media := docs[indexOf(docs, local.DocumentIndex)].Media
			if current == nil || current.Media != media {
				chunks = append(chunks, Chunk{Media: media})
				current = &chunks[len(chunks)-1]
			}
			current.Ranges = append(current.Ranges, local)
		}
	}

	return chunks, nil
}

// splitByDocument maps one global range onto per-document local ranges,
// splitting at every document boundary it crosses.
func splitByDocument(docs []DocumentInfo, sel globalRange) []PageRange {
	var out []PageRange
	offset := 0

	for _, d := range docs {
		docBegin := offset + 1
		docEnd := offset + d.Pages
		offset = docEnd

		if d.Pages == 0 || sel.end < docBegin || sel.begin > docEnd {
			continue
		}

		begin := sel.begin
		if begin < docBegin {
			begin = docBegin
		}
		end := sel.end
		if end > docEnd {
			end = docEnd
		}

		out = append(out, PageRange{
			DocumentIndex: d.Index,
			Begin:         begin - docBegin + 1,
			End:           end - docBegin + 1,
		})
	}

	return out
}

func indexOf(docs []DocumentInfo, documentIndex int) int {
	for i, d := range docs {
		if d.Index == documentIndex {
			return i
		}
	}
	return 0
}

package chunk

import (
	"testing"

	"github.com/printworks/relay/internal/supplier"
)

func threeDocs() []DocumentInfo {
	return []DocumentInfo{
		{Index: 0, Pages: 5, Media: supplier.MediaA4},
		{Index: 1, Pages: 10, Media: supplier.MediaA3},
		{Index: 2, Pages: 5, Media: supplier.MediaA4},
	}
}

// TestChunkSpansDocumentBoundary verifies that a media match across a
// document boundary does not split the chunk.
func TestChunkSpansDocumentBoundary(t *testing.T) {
	chunks, err := Partition(threeDocs(), "4-5,16-")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Media != supplier.MediaA4 {
		t.Errorf("expected media A4, got %s", c.Media)
	}
	if len(c.Ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(c.Ranges))
	}
	assertRange(t, c.Ranges[0], 0, 4, 5)
	assertRange(t, c.Ranges[1], 2, 1, 5)
}

// TestChunkSplitsOnMediaChange verifies the three-way split when an A3
// document sits between the selected A4 pages.
func TestChunkSplitsOnMediaChange(t *testing.T) {
	chunks, err := Partition(threeDocs(), "4-5,9-10,16-")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	if chunks[0].Media != supplier.MediaA4 || chunks[1].Media != supplier.MediaA3 || chunks[2].Media != supplier.MediaA4 {
		t.Errorf("unexpected media sequence: %s %s %s",
			chunks[0].Media, chunks[1].Media, chunks[2].Media)
	}

	assertRange(t, chunks[0].Ranges[0], 0, 4, 5)
	assertRange(t, chunks[1].Ranges[0], 1, 4, 5)
	assertRange(t, chunks[2].Ranges[0], 2, 1, 5)
}

// TestChunkCoverage checks that concatenating all chunks reproduces the
// selection exactly, with no gap, overlap, or reordering.
func TestChunkCoverage(t *testing.T) {
	docs := []DocumentInfo{
		{Index: 0, Pages: 3, Media: supplier.MediaA4},
		{Index: 1, Pages: 4, Media: supplier.MediaA3},
		{Index: 2, Pages: 2, Media: supplier.MediaA3},
		{Index: 3, Pages: 6, Media: supplier.MediaA4},
	}

	selections := []string{"", "1-", "2-8,10-14", "1,3,5,7-9,12-", "-4"}
	for _, sel := range selections {
		chunks, err := Partition(docs, sel)
		if err != nil {
			t.Fatalf("Partition(%q) failed: %v", sel, err)
		}

		want, err := parseSelection(sel, 15)
		if err != nil {
			t.Fatalf("parseSelection(%q) failed: %v", sel, err)
		}

		var got []globalRange
		for _, c := range chunks {
			for _, r := range c.Ranges {
				offset := 0
				for _, d := range docs {
					if d.Index == r.DocumentIndex {
						break
					}
					offset += d.Pages
				}
				got = append(got, globalRange{begin: offset + r.Begin, end: offset + r.End})
			}
		}

		// Merge adjacent spans on both sides before comparing, since the
		// chunker may split a selected span at document boundaries.
		if !sameCoverage(mergeRanges(got), mergeRanges(want)) {
			t.Errorf("selection %q: coverage mismatch: got %v want %v", sel, got, want)
		}
	}
}

func TestEmptySelectionOfEmptyDocuments(t *testing.T) {
	chunks, err := Partition(nil, "")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestSelectionErrors(t *testing.T) {
	docs := threeDocs()

	for _, sel := range []string{"0-2", "5-3", "abc", "2-4,3-6", "21-", ",,"} {
		if _, err := Partition(docs, sel); err == nil {
			t.Errorf("expected error for selection %q", sel)
		}
	}
}

func TestOpenEndedRangeClampsToTotal(t *testing.T) {
	chunks, err := Partition(threeDocs(), "18-")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Pages() != 3 {
		t.Fatalf("expected one 3-page chunk, got %+v", chunks)
	}
	assertRange(t, chunks[0].Ranges[0], 2, 3, 5)
}

func assertRange(t *testing.T, r PageRange, doc, begin, end int) {
	t.Helper()
	if r.DocumentIndex != doc || r.Begin != begin || r.End != end {
		t.Errorf("expected range doc=%d %d-%d, got doc=%d %d-%d",
			doc, begin, end, r.DocumentIndex, r.Begin, r.End)
	}
}

func mergeRanges(ranges []globalRange) []globalRange {
	var out []globalRange
	for _, r := range ranges {
		if len(out) > 0 && out[len(out)-1].end+1 == r.begin {
			out[len(out)-1].end = r.end
			continue
		}
		out = append(out, r)
	}
	return out
}

func sameCoverage(a, b []globalRange) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

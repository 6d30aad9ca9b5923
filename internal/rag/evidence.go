package rag

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agenthands/tuberag/internal/index"
)

// NoEvidenceMarker is what Text renders when nothing was retrieved.
const NoEvidenceMarker = "No matching transcripts were found in the knowledge base."

const scoreUnavailable = "unavailable"

// Evidence is the result of one retrieval. It can only be built by a
// Retriever, so generation cannot run without a prior retrieval.
type Evidence struct {
	query     string
	results   []index.SearchResult
	retrieved bool
}

func (e Evidence) Query() string { return e.query }

// Found is false for the no-evidence sentinel.
func (e Evidence) Found() bool {
	return e.retrieved && len(e.results) > 0
}

func (e Evidence) Len() int { return len(e.results) }

func (e Evidence) Results() []index.SearchResult {
	out := make([]index.SearchResult, len(e.results))
	copy(out, e.results)
	return out
}

// Sources lists every block as provenance, in retrieval order.
func (e Evidence) Sources() []Source {
	out := make([]Source, 0, len(e.results))
	for _, r := range e.results {
		out = append(out, sourceOf(r))
	}
	return out
}

func (e Evidence) lookup(videoID string) (int, bool) {
	for i, r := range e.results {
		if r.VideoID == videoID {
			return i, true
		}
	}
	return -1, false
}

func sourceOf(r index.SearchResult) Source {
	s := Source{VideoID: r.VideoID, Title: r.Title}
	if r.Score != nil {
		v := *r.Score
		s.Score = &v
	}
	return s
}

// Text renders the evidence for a generation prompt. Each block is numbered
// from 1 and closed by a marker carrying the same number:
//
//	<<<EVIDENCE 1>>>
//	Video ID: intro_to_sql
//	Title: intro to sql
//	Score: 0.8123
//	Transcript:
//	...
//	<<<END EVIDENCE 1>>>
func (e Evidence) Text() string {
	if !e.Found() {
		return NoEvidenceMarker
	}
	blocks := make([]string, 0, len(e.results))
	for i, r := range e.results {
		n := i + 1
		var b strings.Builder
		fmt.Fprintf(&b, "<<<EVIDENCE %d>>>\n", n)
		// Indexes only hold whitespace-free ids, so the id is written as is.
		fmt.Fprintf(&b, "Video ID: %s\n", r.VideoID)
		fmt.Fprintf(&b, "Title: %s\n", oneLine(r.Title))
		fmt.Fprintf(&b, "Score: %s\n", formatScore(r.Score))
		b.WriteString("Transcript:\n")
		b.WriteString(escapeMarkers(strings.TrimRight(r.Text, "\n")))
		fmt.Fprintf(&b, "\n<<<END EVIDENCE %d>>>", n)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func formatScore(s *float64) string {
	if s == nil {
		return scoreUnavailable
	}
	return strconv.FormatFloat(*s, 'f', 4, 64)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Transcript text must not be able to open or close a block.
func escapeMarkers(s string) string {
	return strings.ReplaceAll(s, "<<<", "<< <")
}

// BlockHeader is the metadata recovered from one rendered block.
type BlockHeader struct {
	Number  int
	VideoID string
	Title   string
	Score   *float64
}

var blockRe = regexp.MustCompile(`(?s)<<<EVIDENCE (\d+)>>>\n(.*?)\n<<<END EVIDENCE (\d+)>>>`)

// ParseEvidence recovers block headers from text produced by Evidence.Text,
// also when it is embedded in a larger prompt. The sentinel yields no blocks.
func ParseEvidence(text string) ([]BlockHeader, error) {
	matches := blockRe.FindAllStringSubmatch(text, -1)
	headers := make([]BlockHeader, 0, len(matches))
	for i, m := range matches {
		if m[1] != m[3] {
			return nil, fmt.Errorf("block %s closed by marker %s", m[1], m[3])
		}
		n, _ := strconv.Atoi(m[1])
		if n != i+1 {
			return nil, fmt.Errorf("block %d out of sequence at position %d", n, i+1)
		}
		h := BlockHeader{Number: n}
		for _, line := range strings.Split(m[2], "\n") {
			switch {
			case strings.HasPrefix(line, "Video ID: "):
				h.VideoID = strings.TrimPrefix(line, "Video ID: ")
			case strings.HasPrefix(line, "Title: "):
				h.Title = strings.TrimPrefix(line, "Title: ")
			case strings.HasPrefix(line, "Score: "):
				raw := strings.TrimPrefix(line, "Score: ")
				if raw != scoreUnavailable {
					v, err := strconv.ParseFloat(raw, 64)
					if err != nil {
						return nil, fmt.Errorf("block %d: bad score %q", n, raw)
					}
					h.Score = &v
				}
			}
			if line == "Transcript:" {
				break
			}
		}
		if h.VideoID == "" {
			return nil, errors.New("block " + m[1] + " has no video id")
		}
		headers = append(headers, h)
	}
	return headers, nil
}

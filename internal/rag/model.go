package rag

// Source is provenance for one evidence block the answer drew from. Score
// is cosine similarity (higher is better) or nil when unavailable.
type Source struct {
	VideoID string   `json:"video_id"`
	Title   string   `json:"title"`
	Score   *float64 `json:"score"`
}

type Response struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// DeclineMessage is the answer given when the transcripts do not cover the
// question.
const DeclineMessage = "I cannot answer that from the available videos: none of the retrieved transcripts cover this question."

func Decline() *Response {
	return &Response{Answer: DeclineMessage, Sources: []Source{}}
}

// Declined reports whether r is a no-evidence answer.
func (r *Response) Declined() bool {
	return len(r.Sources) == 0
}

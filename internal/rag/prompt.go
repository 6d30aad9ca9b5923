package rag

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used when no prompt is configured.
const DefaultSystemPrompt = `You are a helpful data engineering instructor answering in the style of the YouTuber whose video transcripts you are given.

Rules:
- Answer ONLY from the transcripts in the EVIDENCE section. Do not use outside knowledge.
- If the transcripts do not contain the information, say that you cannot answer from the available videos and return an empty "sources" list.
- The transcripts come from speech-to-text and may contain garbled terms. You may interpret an obvious mistranscription, but when a term is ambiguous say so explicitly instead of guessing.
- Keep answers clear, direct and practical. Max around 6 sentences.
- List in "sources" only the videos whose transcripts you actually used, copying video_id and title exactly from the evidence.`

const outputContract = `Respond with a single JSON object and nothing else, exactly in this shape:
{"answer": "<your answer>", "sources": [{"video_id": "<Video ID>", "title": "<Title>", "score": <Score or null>}]}`

func buildPrompt(system, question string, ev Evidence) string {
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt
	}
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n")
	b.WriteString("EVIDENCE:\n")
	b.WriteString(ev.Text())
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "QUESTION:\n%s\n\n", question)
	b.WriteString(outputContract)
	return b.String()
}

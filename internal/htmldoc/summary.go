package htmldoc

import "strings"

// Summary is the text-derived data the indexer stores for a body.
type Summary struct {
	PlainText string
	WordCount int
	Excerpt   string
}

// DefaultExcerptWords is the excerpt length used by the indexer.
const DefaultExcerptWords = 30

// Summarize parses body and derives plain text, word count and an excerpt.
func Summarize(p Parser, body string, excerptWords int) (Summary, error) {
	doc, err := p.Parse(body)
	if err != nil {
		return Summary{}, err
	}

	text := doc.PlainText()
	words := strings.Fields(text)

	excerpt := strings.Join(words[:min(len(words), excerptWords)], " ")
	if len(words) > excerptWords {
		excerpt += "…"
	}

	return Summary{PlainText: text, WordCount: len(words), Excerpt: excerpt}, nil
}

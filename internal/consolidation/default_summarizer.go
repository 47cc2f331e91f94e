package consolidation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultSummarizer is a rule-based Summarizer requiring no LLM: it reports
// how many contents were merged and surfaces their most frequent
// significant words as key topics.
type DefaultSummarizer struct{}

// NewDefaultSummarizer creates a rule-based summarizer.
func NewDefaultSummarizer() *DefaultSummarizer {
	return &DefaultSummarizer{}
}

// Summarize joins a count, topic list, and truncated excerpt of each
// content into one deterministic summary string.
func (s *DefaultSummarizer) Summarize(_ context.Context, contents []string) (string, error) {
	if len(contents) == 0 {
		return "", errors.New("no content to summarize")
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("Consolidated summary of %d memories", len(contents)))

	topics := extractKeyTopics(contents, 5)
	if len(topics) > 0 {
		parts = append(parts, "Key topics: "+strings.Join(topics, ", "))
	}

	excerpts := make([]string, 0, len(contents))
	for _, c := range contents {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if len(c) > 120 {
			c = c[:120]
		}
		excerpts = append(excerpts, c)
		if len(excerpts) >= 3 {
			break
		}
	}
	if len(excerpts) > 0 {
		parts = append(parts, "Excerpts: "+strings.Join(excerpts, "; "))
	}

	summary := strings.Join(parts, ". ")
	const maxLen = 64 * 1024
	if len(summary) > maxLen {
		summary = summary[:maxLen]
	}
	return summary, nil
}

func extractKeyTopics(contents []string, limit int) []string {
	freq := make(map[string]int)
	for _, c := range contents {
		for _, word := range strings.Fields(strings.ToLower(c)) {
			word = strings.Trim(word, ".,!?;:\"'()")
			if len(word) > 5 && !isCommonWord(word) {
				freq[word]++
			}
		}
	}

	type item struct {
		word  string
		count int
	}
	items := make([]item, 0, len(freq))
	for w, c := range freq {
		items = append(items, item{w, c})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].count != items[j].count {
			return items[i].count > items[j].count
		}
		return items[i].word < items[j].word
	})

	out := make([]string, 0, limit)
	for i := 0; i < limit && i < len(items); i++ {
		out = append(out, items[i].word+"("+strconv.Itoa(items[i].count)+")")
	}
	return out
}

func isCommonWord(word string) bool {
	commonWords := map[string]bool{
		"the": true, "and": true, "for": true, "with": true,
		"from": true, "this": true, "that": true, "have": true,
		"been": true, "will": true, "would": true, "could": true,
		"should": true, "about": true, "after": true, "before": true,
		"there": true, "which": true, "their": true,
	}
	return commonWords[word]
}

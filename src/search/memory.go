package search

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is an in-process Index for development servers without
// Meilisearch, and for tests. Matching is a case-insensitive substring search
// over title and body.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[int]Document
}

var _ Index = &MemoryIndex{}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[int]Document)}
}

func (m *MemoryIndex) IndexTopics(ctx context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return nil
}

func (m *MemoryIndex) DeleteTopics(ctx context.Context, topicIDs []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range topicIDs {
		delete(m.docs, id)
	}
	return nil
}

func (m *MemoryIndex) Healthy() bool {
	return true
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Search(ctx context.Context, q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" || len(q.CategoryIDs) == 0 {
		return nil, 0, nil
	}
	allowed := make(map[int]bool, len(q.CategoryIDs))
	for _, id := range q.CategoryIDs {
		allowed[id] = true
	}

	m.mu.RLock()
	var matches []Document
	for _, d := range m.docs {
		if !allowed[d.CategoryID] {
			continue
		}
		if strings.Contains(strings.ToLower(d.Title), needle) || strings.Contains(strings.ToLower(d.Body), needle) {
			matches = append(matches, d)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].LastActive != matches[j].LastActive {
			return matches[i].LastActive > matches[j].LastActive
		}
		return matches[i].ID > matches[j].ID
	})

	total := len(matches)
	if q.Offset >= total {
		return []Result{}, total, nil
	}
	matches = matches[q.Offset:]
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}

	results := make([]Result, len(matches))
	for i, d := range matches {
		results[i] = Result{
			TopicID:    d.ID,
			CategoryID: d.CategoryID,
			Title:      highlight(d.Title, needle),
			Snippet:    highlight(snippet(d.Body, needle, 120), needle),
		}
	}
	return results, total, nil
}

// Cuts roughly width bytes of s around the first match.
func snippet(s, needle string, width int) string {
	if len(s) <= width {
		return s
	}
	start := strings.Index(strings.ToLower(s), needle) - width/2
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(s) {
		end = len(s)
		start = max(0, end-width)
	}
	for start > 0 && !isRuneStart(s[start]) {
		start--
	}
	for end < len(s) && !isRuneStart(s[end]) {
		end++
	}

	result := s[start:end]
	if start > 0 {
		result = "…" + result
	}
	if end < len(s) {
		result = result + "…"
	}
	return result
}

func highlight(s, needle string) string {
	lower := strings.ToLower(s)
	// Lowercasing can change byte lengths outside ASCII; don't guess offsets then.
	if len(lower) != len(s) {
		return s
	}

	var b strings.Builder
	for {
		i := strings.Index(lower, needle)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString("<mark>")
		b.WriteString(s[i : i+len(needle)])
		b.WriteString("</mark>")
		s, lower = s[i+len(needle):], lower[i+len(needle):]
	}
}

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"git.handmade.network/hmn/forum/src/logging"
	"git.handmade.network/hmn/forum/src/oops"
	meili "github.com/meilisearch/meilisearch-go"
)

type Meili struct {
	client  meili.ServiceManager
	index   string
	healthy atomic.Bool
}

var _ Index = &Meili{}

// NewMeili connects to Meilisearch and sets up the topic index. An unreachable
// server is not fatal; CheckHealth reconfigures the index once it comes back.
func NewMeili(url, apiKey, index string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		index:  index,
	}
	m.CheckHealth(context.Background())
	return m
}

func (m *Meili) configureIndex(ctx context.Context) {
	log := logging.ExtractLogger(ctx)

	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.index,
		PrimaryKey: "id",
	}); err != nil {
		log.Debug().Err(err).Str("index", m.index).Msg("create index (may already exist)")
	}

	index := m.client.Index(m.index)
	filterable := []interface{}{"category_id", "user_id"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Error().Err(err).Msg("failed to update filterable attributes")
	}
	searchable := []string{"title", "body"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Error().Err(err).Msg("failed to update searchable attributes")
	}
	sortable := []string{"last_active"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		log.Error().Err(err).Msg("failed to update sortable attributes")
	}
}

// CheckHealth pings the server and reconfigures the index after an outage.
func (m *Meili) CheckHealth(ctx context.Context) bool {
	_, err := m.client.Health()
	wasHealthy := m.healthy.Load()
	m.healthy.Store(err == nil)
	if err != nil {
		if wasHealthy {
			logging.ExtractLogger(ctx).Warn().Err(err).Msg("meilisearch became unavailable")
		}
		return false
	}
	if !wasHealthy {
		m.configureIndex(ctx)
	}
	return true
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) IndexTopics(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(m.index).AddDocuments(docs, nil)
	if err != nil {
		m.healthy.Store(false)
		return oops.New(err, "failed to index %d topics", len(docs))
	}
	return nil
}

func (m *Meili) DeleteTopics(ctx context.Context, topicIDs []int) error {
	for _, id := range topicIDs {
		if _, err := m.client.Index(m.index).DeleteDocument(strconv.Itoa(id), nil); err != nil {
			m.healthy.Store(false)
			return oops.New(err, "failed to delete topic %d from index", id)
		}
	}
	return nil
}

func categoryFilter(categoryIDs []int) string {
	ids := make([]string, len(categoryIDs))
	for i, id := range categoryIDs {
		ids[i] = strconv.Itoa(id)
	}
	return fmt.Sprintf("category_id IN [%s]", strings.Join(ids, ", "))
}

func (m *Meili) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if len(q.CategoryIDs) == 0 || strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if !m.healthy.Load() {
		return nil, 0, oops.New(nil, "meilisearch is unavailable")
	}

	resp, err := m.client.Index(m.index).Search(q.Text, &meili.SearchRequest{
		Limit:                 int64(q.Limit),
		Offset:                int64(q.Offset),
		Filter:                categoryFilter(q.CategoryIDs),
		AttributesToCrop:      []string{"body"},
		CropLength:            40,
		AttributesToHighlight: []string{"title", "body"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, oops.New(err, "meilisearch search failed")
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, Result{
			TopicID:    decodeInt(hit, "id"),
			CategoryID: decodeInt(hit, "category_id"),
			Title:      firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
			Snippet:    firstNonBlank(decodeFormattedString(hit, "body"), decodeString(hit, "body")),
		})
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

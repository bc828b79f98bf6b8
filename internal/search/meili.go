package search

import (
	"context"
	"fmt"

	"github.com/meilisearch/meilisearch-go"
)

var filterable = []string{"property_type", "listing_type", "area_name", "block_no", "price"}

type MeiliIndex struct {
	client *meilisearch.Client
	uid    string
}

func NewMeiliIndex(host, apiKey, uid string) *MeiliIndex {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	return &MeiliIndex{client: client, uid: uid}
}

// Bootstrap creates the index and its filterable attributes. Both calls
// enqueue tasks; an index that already exists fails its task, not the call.
func (m *MeiliIndex) Bootstrap() error {
	if _, err := m.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        m.uid,
		PrimaryKey: "id",
	}); err != nil {
		return fmt.Errorf("create index %s: %w", m.uid, err)
	}
	if _, err := m.client.Index(m.uid).UpdateFilterableAttributes(&filterable); err != nil {
		return fmt.Errorf("filterable attributes: %w", err)
	}
	return nil
}

// ReplaceAll enqueues a delete-all followed by an add. Meilisearch applies
// tasks on one index in order, so searches never see a mix of generations
// beyond the brief empty window between the two.
func (m *MeiliIndex) ReplaceAll(ctx context.Context, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx := m.client.Index(m.uid)
	if _, err := idx.DeleteAllDocuments(); err != nil {
		return fmt.Errorf("clear %s: %w", m.uid, err)
	}
	if len(docs) == 0 {
		return nil
	}
	if _, err := idx.AddDocuments(docs, "id"); err != nil {
		return fmt.Errorf("add documents to %s: %w", m.uid, err)
	}
	return nil
}

func (m *MeiliIndex) SearchIDs(ctx context.Context, q string, types []string, limit, offset int) ([]int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	req := &meilisearch.SearchRequest{
		Limit:                int64(limit),
		Offset:               int64(offset),
		AttributesToRetrieve: []string{"id"},
	}
	if f := typeFilter(types); f != "" {
		req.Filter = f
	}
	res, err := m.client.Index(m.uid).Search(q, req)
	if err != nil {
		return nil, 0, fmt.Errorf("search %s: %w", m.uid, err)
	}
	return hitIDs(res.Hits), res.EstimatedTotalHits, nil
}

func hitIDs(hits []interface{}) []int64 {
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		m, ok := h.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := m["id"].(float64); ok {
			ids = append(ids, int64(id))
		}
	}
	return ids
}

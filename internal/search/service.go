package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
// Results from private categories the viewer cannot read are dropped.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: sanitizeResults(nonNil(results), q), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: sanitizeResults(nonNil(results), q), Total: total, Query: q.Text}
}

// IndexCategory indexes a category (fire-and-forget to Meilisearch).
func (s *Service) IndexCategory(c CategoryRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCategory(c); err != nil {
			log.Printf("search: index category %d: %v", c.ID, err)
		}
	}()
}

// IndexTopic indexes a topic (fire-and-forget to Meilisearch).
func (s *Service) IndexTopic(t TopicRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTopic(t); err != nil {
			log.Printf("search: index topic %d: %v", t.ID, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	categories, topics, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexCategories(categories); err != nil {
		log.Printf("search: reindex categories: %v", err)
	}
	if err := s.meili.IndexTopics(topics); err != nil {
		log.Printf("search: reindex topics: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

func sanitizeResults(results []Result, q Query) []Result {
	if q.IsAdmin {
		return results
	}
	accessible := make(map[int64]bool, len(q.AccessibleCategoryIDs))
	for _, id := range q.AccessibleCategoryIDs {
		accessible[id] = true
	}
	filtered := make([]Result, 0, len(results))
	for _, result := range results {
		if result.IsPrivate && !accessible[result.CategoryID] {
			continue
		}
		filtered = append(filtered, result)
	}
	return filtered
}

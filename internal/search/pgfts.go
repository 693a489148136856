package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across categories and topics using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultCategory {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'category'::text AS type, c.id, c.title,
				ts_headline('english', c.description, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.id AS category_id, c.is_private,
				ts_rank(c.fts, %s) AS rank
			FROM categories c
			WHERE c.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultTopic {
		topicWhere := "t.fts @@ " + tsQuery
		if q.FilterCategoryID != 0 {
			topicWhere += fmt.Sprintf(" AND t.category_id = $%d", argN)
			args = append(args, q.FilterCategoryID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'topic'::text AS type, t.id, t.title,
				ts_headline('english', t.content, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.category_id, c.is_private,
				ts_rank(t.fts, %s) AS rank
			FROM topics t
			JOIN categories c ON c.id = t.category_id
			WHERE %s`, tsQuery, tsQuery, topicWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	query := fmt.Sprintf(`
		SELECT type, id, title, snippet, category_id, is_private
		FROM (%s) AS hits
		ORDER BY rank DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(subQueries, " UNION ALL "), argN, argN+1)
	args = append(args, limit, offset)

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.CategoryID, &r.IsPrivate); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts rows: %w", err)
	}

	return results, len(results), nil
}

// LoadAllRecords reads every category and topic for bulk reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CategoryRecord, []TopicRecord, error) {
	categoryRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, is_private FROM categories
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load categories: %w", err)
	}
	defer categoryRows.Close()

	var categories []CategoryRecord
	for categoryRows.Next() {
		var c CategoryRecord
		if err := categoryRows.Scan(&c.ID, &c.Title, &c.Description, &c.IsPrivate); err != nil {
			return nil, nil, fmt.Errorf("scan category record: %w", err)
		}
		categories = append(categories, c)
	}
	if err := categoryRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate category records: %w", err)
	}

	topicRows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.content, t.category_id, c.is_private
		FROM topics t
		JOIN categories c ON c.id = t.category_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load topics: %w", err)
	}
	defer topicRows.Close()

	var topics []TopicRecord
	for topicRows.Next() {
		var t TopicRecord
		if err := topicRows.Scan(&t.ID, &t.Title, &t.Content, &t.CategoryID, &t.IsPrivate); err != nil {
			return nil, nil, fmt.Errorf("scan topic record: %w", err)
		}
		topics = append(topics, t)
	}
	if err := topicRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate topic records: %w", err)
	}

	return categories, topics, nil
}

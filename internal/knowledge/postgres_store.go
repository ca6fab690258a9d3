package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// PostgresStore retrieves snippets from the knowledge_snippets table using
// tag and keyword matching. Vector similarity search lives behind an
// external service; this adapter covers the keyword path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Search(ctx context.Context, query string, topK int, minScore float64) ([]Snippet, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT title, content, tags
        FROM knowledge_snippets
        WHERE tags && $1 OR to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', $2)
        LIMIT 200
    `, pq.Array(terms), strings.Join(terms, " "))
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	defer rows.Close()

	var out []Snippet
	for rows.Next() {
		var title, content string
		var tags []string
		if err := rows.Scan(&title, &content, pq.Array(&tags)); err != nil {
			return nil, fmt.Errorf("knowledge: scan: %w", err)
		}
		score := overlapScore(terms, title+" "+content+" "+strings.Join(tags, " "))
		if score < minScore {
			continue
		}
		out = append(out, Snippet{Title: title, Content: content, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Add inserts a snippet; used by operator tooling to seed the base.
func (s *PostgresStore) Add(ctx context.Context, title, content string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO knowledge_snippets (title, content, tags) VALUES ($1, $2, $3)
    `, title, content, pq.Array(tags))
	if err != nil {
		return fmt.Errorf("knowledge: insert: %w", err)
	}
	return nil
}

package duckdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"

	"github.com/tinytelemetry/journalgate/internal/model"
)

// Search runs q against index. A free-text query is scored like an
// Elasticsearch best_fields multi_match: text fields score one point per
// query term present as a token, keyword fields score one point on exact
// equality, and a document's score is its best field score.
func (s *Store) Search(ctx context.Context, index string, q model.SearchQuery) (*model.SearchResult, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	schema, err := s.schemaFor(ctx, index)
	if err != nil {
		return nil, err
	}

	scoreExpr, scoreArgs := buildScore(schema, q)
	orderBy, err := buildOrderBy(schema, q.Sort)
	if err != nil {
		return nil, err
	}

	scored := fmt.Sprintf("SELECT *, CAST(%s AS DOUBLE) AS _score FROM %s", scoreExpr, quoteIdent(index))
	where := ""
	if !q.MatchAll() {
		where = " WHERE _score > 0"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	countQuery := "SELECT COUNT(*) FROM (" + scored + ") AS scored" + where
	if err := s.db.QueryRowContext(ctx, countQuery, scoreArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count matches: %w", err)
	}

	size := q.Size
	if size < 0 {
		size = 0
	}
	pageQuery := "SELECT _id, _source, _score FROM (" + scored + ") AS scored" + where + orderBy + " LIMIT ?"
	args := append(append([]any{}, scoreArgs...), size)

	rows, err := s.db.QueryContext(ctx, pageQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	result := &model.SearchResult{Total: total, Hits: make([]model.SearchHit, 0, size)}
	for rows.Next() {
		var hit model.SearchHit
		var source string
		if err := rows.Scan(&hit.ID, &source, &hit.Score); err != nil {
			log.Printf("duckdb scan error (Search): %v", err)
			continue
		}
		if err := json.Unmarshal([]byte(source), &hit.Source); err != nil {
			log.Printf("duckdb: skipping document %s with unreadable source: %v", hit.ID, err)
			continue
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, rows.Err()
}

// buildScore returns the SQL relevance expression for q and its arguments.
func buildScore(schema model.IndexSchema, q model.SearchQuery) (string, []any) {
	if q.MatchAll() {
		return "1.0", nil
	}

	terms := tokenize(q.Text)
	var fieldExprs []string
	var args []any
	for _, name := range q.Fields {
		mapping, ok := schema.Lookup(name)
		if !ok {
			continue
		}
		col := quoteIdent(name)
		switch mapping.Type {
		case model.FieldTypeKeyword:
			fieldExprs = append(fieldExprs, fmt.Sprintf("(CASE WHEN %s = ? THEN 1.0 ELSE 0.0 END)", col))
			args = append(args, q.Text)
		case model.FieldTypeText:
			if len(terms) == 0 {
				continue
			}
			parts := make([]string, 0, len(terms))
			for _, term := range terms {
				parts = append(parts, fmt.Sprintf("(CASE WHEN regexp_matches(lower(%s), ?) THEN 1.0 ELSE 0.0 END)", col))
				args = append(args, termPattern(term))
			}
			fieldExprs = append(fieldExprs, "("+strings.Join(parts, " + ")+")")
		}
	}

	switch len(fieldExprs) {
	case 0:
		return "0.0", nil
	case 1:
		return fieldExprs[0], args
	}
	return "greatest(" + strings.Join(fieldExprs, ", ") + ")", args
}

func buildOrderBy(schema model.IndexSchema, sort []model.SortField) (string, error) {
	if len(sort) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(sort))
	for _, sf := range sort {
		dir := " ASC"
		if sf.Desc {
			dir = " DESC"
		}
		if sf.Field == model.FieldScore {
			clauses = append(clauses, "_score"+dir)
			continue
		}
		if _, ok := schema.Lookup(sf.Field); !ok {
			return "", fmt.Errorf("no mapping found for [%s] in order to sort on", sf.Field)
		}
		clauses = append(clauses, quoteIdent(sf.Field)+dir+" NULLS LAST")
	}
	return " ORDER BY " + strings.Join(clauses, ", "), nil
}

// tokenize splits text the way a standard analyzer would: lowercase runs of
// letters and digits.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	seen := make(map[string]bool, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// termPattern matches term as a whole token. Boundaries use Unicode classes
// so they agree with tokenize.
func termPattern(term string) string {
	return `(^|[^\pL\pN_])` + regexp.QuoteMeta(term) + `([^\pL\pN_]|$)`
}

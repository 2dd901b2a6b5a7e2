package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/now-is/chicommons-maps/internal/db"
	"github.com/now-is/chicommons-maps/internal/domain"
)

// vocabularyRepository implements VocabularyRepository interface
type vocabularyRepository struct {
	db db.DBTX
}

// NewVocabularyRepository creates a new vocabulary repository
func NewVocabularyRepository(exec db.DBTX) VocabularyRepository {
	return &vocabularyRepository{db: exec}
}

// Upsert returns the term named name, inserting it on first use. The no-op
// update makes RETURNING yield the existing row on conflict.
func (r *vocabularyRepository) Upsert(ctx context.Context, name string) (domain.VocabularyTerm, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.VocabularyTerm{}, domain.Validationf("vocabulary term name is required")
	}

	var term domain.VocabularyTerm
	err := r.db.QueryRow(ctx,
		`INSERT INTO vocabulary_terms (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name`,
		name,
	).Scan(&term.ID, &term.Name)
	if err != nil {
		return domain.VocabularyTerm{}, translateError("upsert vocabulary term", err)
	}
	return term, nil
}

// List returns every vocabulary term ordered by name
func (r *vocabularyRepository) List(ctx context.Context) ([]domain.VocabularyTerm, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM vocabulary_terms ORDER BY name`)
	if err != nil {
		return nil, translateError("list vocabulary terms", err)
	}
	defer rows.Close()

	terms := []domain.VocabularyTerm{}
	for rows.Next() {
		var term domain.VocabularyTerm
		if err := rows.Scan(&term.ID, &term.Name); err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary term: %w", err)
		}
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vocabulary terms: %w", err)
	}
	return terms, nil
}

package tree

import (
	"context"
	"fmt"
)

// Root pagination defaults and bounds.
const (
	DefaultRootLimit = 20
	MaxRootLimit     = 100

	// MaxLookupLimit bounds FindByIDPrefix and Search results.
	MaxLookupLimit = 100
)

// Get returns one note of the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (*Note, error) {
	n, err := s.store.GetNote(ctx, orgID, id)
	if err != nil {
		return nil, classify(fmt.Errorf("note %s: %w", id, err))
	}
	return n, nil
}

// ListChildren returns the immediate children of parentID in display order.
func (s *Service) ListChildren(ctx context.Context, orgID, parentID string) ([]Note, error) {
	if _, err := s.store.GetNote(ctx, orgID, parentID); err != nil {
		return nil, classify(fmt.Errorf("parent %s: %w", parentID, err))
	}
	children, err := s.store.GetChildren(ctx, orgID, &parentID)
	if err != nil {
		return nil, classify(err)
	}
	return children, nil
}

// ListRoots returns one page of root notes in display order and the total
// number of roots.
func (s *Service) ListRoots(ctx context.Context, orgID string, skip, limit int) (*RootPage, error) {
	if skip < 0 {
		return nil, fmt.Errorf("%w: skip must be >= 0, got %d", ErrInvalidInput, skip)
	}
	if err := checkLimit(limit, MaxRootLimit); err != nil {
		return nil, err
	}
	total, err := s.store.CountChildren(ctx, orgID, nil)
	if err != nil {
		return nil, classify(err)
	}
	notes, err := s.store.ListRoots(ctx, orgID, skip, limit)
	if err != nil {
		return nil, classify(err)
	}
	if notes == nil {
		notes = []Note{}
	}
	return &RootPage{Notes: notes, Total: total}, nil
}

// Subtree returns a note followed by all of its descendants ordered by path.
func (s *Service) Subtree(ctx context.Context, orgID, id string) ([]Note, error) {
	n, err := s.store.GetNote(ctx, orgID, id)
	if err != nil {
		return nil, classify(fmt.Errorf("note %s: %w", id, err))
	}
	descendants, err := s.store.GetDescendants(ctx, orgID, n.DescendantPrefix())
	if err != nil {
		return nil, classify(err)
	}
	return append([]Note{*n}, descendants...), nil
}

// AllNotes returns every note of the organization ordered by path.
func (s *Service) AllNotes(ctx context.Context, orgID string) ([]Note, error) {
	notes, err := s.store.AllNotes(ctx, orgID)
	return notes, classify(err)
}

// FindByIDPrefix returns up to limit notes whose id starts with prefix.
func (s *Service) FindByIDPrefix(ctx context.Context, orgID, prefix string, limit int) ([]Note, error) {
	if err := checkLimit(limit, MaxLookupLimit); err != nil {
		return nil, err
	}
	notes, err := s.store.FindByIDPrefix(ctx, orgID, prefix, limit)
	return notes, classify(err)
}

// Search runs a text search when the store supports it.
func (s *Service) Search(ctx context.Context, orgID, query string, limit int) ([]Note, error) {
	if err := checkLimit(limit, MaxLookupLimit); err != nil {
		return nil, err
	}
	searcher, ok := s.store.(Searcher)
	if !ok {
		return nil, fmt.Errorf("%w: store does not support search", ErrInvalidInput)
	}
	terms := SearchTerms(query)
	if len(terms) == 0 {
		return []Note{}, nil
	}
	notes, err := searcher.Search(ctx, orgID, terms, limit)
	return notes, classify(err)
}

func checkLimit(limit, max int) error {
	if limit < 1 || limit > max {
		return fmt.Errorf("%w: limit must be 1-%d, got %d", ErrInvalidInput, max, limit)
	}
	return nil
}

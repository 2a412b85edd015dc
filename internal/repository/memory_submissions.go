package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemorySubmissionsRepository archive used when Postgres is disabled or unreachable
type MemorySubmissionsRepository struct {
	mu   sync.RWMutex
	byID map[string]*Submission
}

func NewMemorySubmissionsRepository() *MemorySubmissionsRepository {
	return &MemorySubmissionsRepository{byID: map[string]*Submission{}}
}

var _ SubmissionsRepository = (*MemorySubmissionsRepository)(nil)

func (r *MemorySubmissionsRepository) CreateSubmission(_ context.Context, s *Submission) (string, error) {
	if s == nil || s.ChataID == "" {
		return "", fmt.Errorf("chata_id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ChataID]; ok {
		return "", fmt.Errorf("%s: %w", s.ChataID, ErrDuplicate)
	}
	if s.SubmissionID == "" {
		s.SubmissionID = uuid.NewString()
	}
	cp := *s
	r.byID[s.ChataID] = &cp
	return s.SubmissionID, nil
}

func (r *MemorySubmissionsRepository) GetSubmission(_ context.Context, chataID string) (*Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[chataID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", chataID, ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySubmissionsRepository) ListSubmissions(_ context.Context, page, size int) ([]*Submission, int, error) {
	page, size = normalizePage(page, size)

	r.mu.RLock()
	all := make([]*Submission, 0, len(r.byID))
	for _, s := range r.byID {
		cp := *s
		all = append(all, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].SubmittedAt.Equal(all[j].SubmittedAt) {
			return all[i].ChataID < all[j].ChataID
		}
		return all[i].SubmittedAt.After(all[j].SubmittedAt)
	})

	start := (page - 1) * size
	if start >= len(all) {
		return []*Submission{}, len(all), nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

package project

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// TrainingSets is the slice of the remote API the project state needs.
type TrainingSets interface {
	ListTrainingSets(ctx context.Context, projectID int) ([]TrainingSet, error)
	GetTrainingSet(ctx context.Context, projectID, setID int) (*TrainingSet, error)
	CreateTrainingSet(ctx context.Context, in TrainingSetInput) (*TrainingSet, error)
	UpdateTrainingSet(ctx context.Context, id int, in TrainingSetInput) (*TrainingSet, error)
	SetTrainingSetExcluded(ctx context.Context, id int, excluded bool) error
}

// Store tracks the active project and which basemap dates have training
// data. The zero value has no project.
type Store struct {
	mu       sync.RWMutex
	api      TrainingSets
	current  *Project
	sets     []TrainingSet
	dates    []string
	excluded []string
}

// NewStore creates a store backed by api.
func NewStore(api TrainingSets) *Store {
	return &Store{api: api}
}

// API returns the training-set collaborator.
func (s *Store) API() TrainingSets {
	return s.api
}

// Current returns the active project, or nil.
func (s *Store) Current() *Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrent replaces the active project and forgets date bookkeeping of the
// previous one.
func (s *Store) SetCurrent(p *Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = p
	s.sets, s.dates, s.excluded = nil, nil, nil
}

// Classes returns the active project's classes (nil without a project).
func (s *Store) Classes() []Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	return s.current.Classes
}

// FetchTrainingDates reloads the training sets of the active project.
// Dates with no features are not counted as training dates.
func (s *Store) FetchTrainingDates(ctx context.Context) error {
	p := s.Current()
	if p == nil {
		return nil
	}
	sets, err := s.api.ListTrainingSets(ctx, p.ID)
	if err != nil {
		return err
	}

	var dates, excluded []string
	for _, set := range sets {
		if set.FeatureCount > 0 {
			dates = append(dates, set.BasemapDate)
		}
		if set.Excluded {
			excluded = append(excluded, set.BasemapDate)
		}
	}

	s.mu.Lock()
	s.sets, s.dates, s.excluded = sets, dates, excluded
	s.mu.Unlock()
	return nil
}

// TrainingDates returns dates that have at least one feature.
func (s *Store) TrainingDates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.dates)
}

// HasTrainingData reports whether date has stored polygons.
func (s *Store) HasTrainingData(date string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.dates, date)
}

// IsExcluded reports whether date is excluded from training.
func (s *Store) IsExcluded(date string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.excluded, date)
}

// IncludedTrainingDates returns training dates that are not excluded.
func (s *Store) IncludedTrainingDates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, d := range s.dates {
		if !slices.Contains(s.excluded, d) {
			out = append(out, d)
		}
	}
	return out
}

// ToggleExcluded flips the excluded flag of the training set for date. The
// local state is reverted when the remote update fails.
func (s *Store) ToggleExcluded(ctx context.Context, date string) (bool, error) {
	s.mu.Lock()
	idx := slices.Index(s.excluded, date)
	exclude := idx == -1
	if exclude {
		s.excluded = append(s.excluded, date)
	} else {
		s.excluded = slices.Delete(s.excluded, idx, idx+1)
	}
	setIdx := slices.IndexFunc(s.sets, func(t TrainingSet) bool { return t.BasemapDate == date })
	var setID int
	if setIdx >= 0 {
		setID = s.sets[setIdx].ID
	}
	s.mu.Unlock()

	var err error
	if setIdx < 0 {
		err = fmt.Errorf("no training set found for date %s", date)
	} else {
		err = s.api.SetTrainingSetExcluded(ctx, setID, exclude)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if exclude {
			if i := slices.Index(s.excluded, date); i >= 0 {
				s.excluded = slices.Delete(s.excluded, i, i+1)
			}
		} else if !slices.Contains(s.excluded, date) {
			s.excluded = append(s.excluded, date)
		}
		return !exclude, err
	}
	for i := range s.sets {
		if s.sets[i].ID == setID {
			s.sets[i].Excluded = exclude
		}
	}
	return exclude, nil
}

package project

import (
	"context"
	"errors"
	"testing"
)

type fakeSets struct {
	sets      []TrainingSet
	failSetEx bool
	excluded  map[int]bool
}

func (f *fakeSets) ListTrainingSets(ctx context.Context, projectID int) ([]TrainingSet, error) {
	return f.sets, nil
}

func (f *fakeSets) GetTrainingSet(ctx context.Context, projectID, setID int) (*TrainingSet, error) {
	return nil, errors.New("not used")
}

func (f *fakeSets) CreateTrainingSet(ctx context.Context, in TrainingSetInput) (*TrainingSet, error) {
	return nil, errors.New("not used")
}

func (f *fakeSets) UpdateTrainingSet(ctx context.Context, id int, in TrainingSetInput) (*TrainingSet, error) {
	return nil, errors.New("not used")
}

func (f *fakeSets) SetTrainingSetExcluded(ctx context.Context, id int, excluded bool) error {
	if f.failSetEx {
		return errors.New("boom")
	}
	if f.excluded == nil {
		f.excluded = map[int]bool{}
	}
	f.excluded[id] = excluded
	return nil
}

func TestBasemapDateOptions(t *testing.T) {
	opts := BasemapDateOptions()
	if len(opts) != 36 {
		t.Fatalf("len=%d, want 36", len(opts))
	}
	if opts[0].Value != "2022-01" || opts[0].Label != "January 2022" {
		t.Fatalf("first=%+v, want 2022-01 January 2022", opts[0])
	}
	if opts[35].Value != "2024-12" {
		t.Fatalf("last=%q, want 2024-12", opts[35].Value)
	}
}

func TestFetchTrainingDates(t *testing.T) {
	api := &fakeSets{sets: []TrainingSet{
		{ID: 1, BasemapDate: "2022-01", FeatureCount: 3},
		{ID: 2, BasemapDate: "2022-02", FeatureCount: 0},
		{ID: 3, BasemapDate: "2022-03", FeatureCount: 5, Excluded: true},
	}}
	s := NewStore(api)
	s.SetCurrent(&Project{ID: 7})
	if err := s.FetchTrainingDates(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !s.HasTrainingData("2022-01") || s.HasTrainingData("2022-02") {
		t.Fatalf("dates=%v, want 2022-01 and 2022-03", s.TrainingDates())
	}
	if !s.IsExcluded("2022-03") {
		t.Fatal("2022-03 should be excluded")
	}
	if got := s.IncludedTrainingDates(); len(got) != 1 || got[0] != "2022-01" {
		t.Fatalf("included=%v, want [2022-01]", got)
	}
}

func TestToggleExcludedRevertsOnFailure(t *testing.T) {
	api := &fakeSets{sets: []TrainingSet{{ID: 1, BasemapDate: "2022-01", FeatureCount: 3}}}
	s := NewStore(api)
	s.SetCurrent(&Project{ID: 7})
	if err := s.FetchTrainingDates(context.Background()); err != nil {
		t.Fatal(err)
	}

	excluded, err := s.ToggleExcluded(context.Background(), "2022-01")
	if err != nil || !excluded {
		t.Fatalf("toggle=%v,%v, want true,nil", excluded, err)
	}
	if !api.excluded[1] {
		t.Fatal("remote flag not set")
	}

	api.failSetEx = true
	if _, err := s.ToggleExcluded(context.Background(), "2022-01"); err == nil {
		t.Fatal("expected error")
	}
	if !s.IsExcluded("2022-01") {
		t.Fatal("failed toggle must revert to excluded")
	}

	if _, err := s.ToggleExcluded(context.Background(), "2023-05"); err == nil {
		t.Fatal("expected error for unknown date")
	}
	if s.IsExcluded("2023-05") {
		t.Fatal("unknown date must not stay excluded")
	}
}

func TestClassIndex(t *testing.T) {
	p := &Project{Classes: []Class{{Name: "Forest"}, {Name: "Water"}}}
	if p.ClassIndex("Water") != 1 || p.ClassIndex("Urban") != -1 {
		t.Fatal("ClassIndex mismatch")
	}
	var nilProject *Project
	if nilProject.ClassIndex("Forest") != -1 {
		t.Fatal("nil project must return -1")
	}
}

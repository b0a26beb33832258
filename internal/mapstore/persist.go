package mapstore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mdobak/go-xerrors"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-cover/internal/project"
)

// ErrNoProject is returned by operations that need an active project.
var ErrNoProject = errors.New("no project selected")

// Resolution is the answer to the unsaved-changes prompt.
type Resolution string

const (
	Confirmed Resolution = "confirmed"
	Declined  Resolution = "declined"
	Dismissed Resolution = "dismissed"
)

// ParseResolution validates s.
func ParseResolution(s string) (Resolution, bool) {
	switch r := Resolution(s); r {
	case Confirmed, Declined, Dismissed:
		return r, true
	}
	return "", false
}

// Confirmer asks the user whether to save unsaved edits.
type Confirmer interface {
	Confirm(ctx context.Context) Resolution
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context) Resolution

func (f ConfirmFunc) Confirm(ctx context.Context) Resolution { return f(ctx) }

// Answer is a Confirmer with a fixed answer, as passed in an API request.
type Answer Resolution

func (a Answer) Confirm(context.Context) Resolution { return Resolution(a) }

// TrainingSetName is the name given to a newly created training set.
func TrainingSetName(date string) string {
	return "Training_Set_" + date
}

// savePlan is a pending write of the polygons as the training set of a
// date. rev is the edit revision the polygons were taken at.
type savePlan struct {
	in  project.TrainingSetInput
	rev uint64
}

// planSave captures the polygons to store for date.
func (d *Digitizer) planSave(date string) (savePlan, error) {
	p := d.projects.Current()
	if p == nil {
		return savePlan{}, ErrNoProject
	}
	return savePlan{
		in: project.TrainingSetInput{
			Project:     p.ID,
			BasemapDate: date,
			Name:        TrainingSetName(date),
			Polygons:    d.ToGeoJSON(),
		},
		rev: d.rev,
	}, nil
}

// store writes plan remotely: the existing set for its date is updated,
// otherwise a new one is created. It reads no editing state and may run
// without the session lock.
func (d *Digitizer) store(ctx context.Context, plan savePlan) error {
	api := d.projects.API()
	in := plan.in

	sets, err := api.ListTrainingSets(ctx, in.Project)
	if err != nil {
		return xerrors.Newf("list training sets: %w", err)
	}

	var existing *project.TrainingSet
	for i := range sets {
		if sets[i].BasemapDate == in.BasemapDate {
			existing = &sets[i]
			break
		}
	}
	if existing != nil {
		d.logger.InfoContext(ctx, "updating training set", slog.Int("id", existing.ID), slog.String("date", in.BasemapDate))
		_, err = api.UpdateTrainingSet(ctx, existing.ID, in)
	} else {
		d.logger.InfoContext(ctx, "creating training set", slog.String("date", in.BasemapDate))
		_, err = api.CreateTrainingSet(ctx, in)
	}
	if err != nil {
		return xerrors.Newf("save training set %s: %w", in.BasemapDate, err)
	}
	return nil
}

// saved clears the dirty flag unless the polygons changed after plan was
// taken.
func (d *Digitizer) saved(plan savePlan) {
	if d.rev == plan.rev {
		d.dirty = false
	}
	d.changed("updated", "")
}

func (d *Digitizer) refreshDates(ctx context.Context) {
	if err := d.projects.FetchTrainingDates(ctx); err != nil {
		d.logger.WarnContext(ctx, "refreshing training dates failed", slog.Any("error", err))
	}
}

// Save stores the polygons as the training set of date. The dirty flag is
// cleared only when the write succeeds.
func (d *Digitizer) Save(ctx context.Context, date string) error {
	plan, err := d.planSave(date)
	if err != nil {
		return err
	}
	if err := d.store(ctx, plan); err != nil {
		return err
	}
	d.saved(plan)
	d.refreshDates(ctx)
	return nil
}

// fetch returns the stored polygons of date, or nil when the project has no
// training set for it. Like store it may run without the session lock.
func (d *Digitizer) fetch(ctx context.Context, projectID int, date string) (*geojson.FeatureCollection, error) {
	api := d.projects.API()

	sets, err := api.ListTrainingSets(ctx, projectID)
	if err != nil {
		return nil, xerrors.Newf("list training sets: %w", err)
	}
	var setID int
	found := false
	for _, s := range sets {
		if s.BasemapDate == date {
			setID, found = s.ID, true
			break
		}
	}
	if !found {
		return nil, nil
	}

	set, err := api.GetTrainingSet(ctx, projectID, setID)
	if err != nil {
		return nil, xerrors.Newf("load training set %d: %w", setID, err)
	}
	fc := geojson.NewFeatureCollection()
	if len(set.Polygons) > 0 && string(set.Polygons) != "null" {
		fc, err = geojson.UnmarshalFeatureCollection(set.Polygons)
		if err != nil {
			return nil, xerrors.Newf("decode training set %d: %w", setID, err)
		}
	}
	return fc, nil
}

// loaded replaces the polygons with fc; nil clears them.
func (d *Digitizer) loaded(fc *geojson.FeatureCollection) {
	if fc == nil {
		d.Clear(false)
		return
	}
	d.FromGeoJSON(fc)
}

// LoadForDate replaces the polygons with the stored training set of date,
// or clears them when there is none.
func (d *Digitizer) LoadForDate(ctx context.Context, date string) error {
	p := d.projects.Current()
	if p == nil {
		d.logger.InfoContext(ctx, "no project, nothing to load", slog.String("date", date))
		return nil
	}
	fc, err := d.fetch(ctx, p.ID, date)
	if err != nil {
		return err
	}
	d.loaded(fc)
	return nil
}

// PromptSave offers to save unsaved edits before they would be lost.
// Confirmed saves (a failure is returned and the flag stays set), declined
// discards, dismissed proceeds leaving the flag alone. A nil Confirmer
// counts as dismissed.
func (d *Digitizer) PromptSave(ctx context.Context, c Confirmer) error {
	if !d.dirty || c == nil {
		return nil
	}
	switch c.Confirm(ctx) {
	case Confirmed:
		return d.Save(ctx, d.date)
	case Declined:
		d.logger.InfoContext(ctx, "changes discarded")
		d.Discard()
	}
	return nil
}

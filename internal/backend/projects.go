package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/joeblew999/plat-cover/internal/project"
)

// ListProjects returns every project visible to the user.
func (c *Client) ListProjects(ctx context.Context) ([]project.Project, error) {
	var out []project.Project
	if err := c.do(ctx, http.MethodGet, "/projects/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id int) (*project.Project, error) {
	var out project.Project
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d/", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, p project.Project) (*project.Project, error) {
	var out project.Project
	if err := c.do(ctx, http.MethodPost, "/projects/", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProject replaces a project.
func (c *Client) UpdateProject(ctx context.Context, id int, p project.Project) (*project.Project, error) {
	var out project.Project
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/projects/%d/", id), nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetProjectAOI stores the area of interest with its lat/lon extent and the
// basemap dates it is available for.
func (c *Client) SetProjectAOI(ctx context.Context, id int, update project.AOIUpdate) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/projects/%d/", id), nil, update, nil)
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/projects/%d/", id), nil, nil, nil)
}

// ListTrainingSets returns the training sets of a project.
func (c *Client) ListTrainingSets(ctx context.Context, projectID int) ([]project.TrainingSet, error) {
	var out []project.TrainingSet
	if err := c.do(ctx, http.MethodGet, "/training-sets/", projectQuery(projectID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrainingSet fetches one training set with its polygons. The API answers
// with a list filtered by id.
func (c *Client) GetTrainingSet(ctx context.Context, projectID, setID int) (*project.TrainingSet, error) {
	q := projectQuery(projectID)
	q.Set("id", fmt.Sprint(setID))
	var out []project.TrainingSet
	if err := c.do(ctx, http.MethodGet, "/training-sets/", q, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ID == setID {
			return &out[i], nil
		}
	}
	if len(out) > 0 {
		return &out[0], nil
	}
	return nil, ErrNotFound
}

// CreateTrainingSet stores a new training set.
func (c *Client) CreateTrainingSet(ctx context.Context, in project.TrainingSetInput) (*project.TrainingSet, error) {
	var out project.TrainingSet
	if err := c.do(ctx, http.MethodPost, "/training-sets/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTrainingSet replaces the polygons of a training set.
func (c *Client) UpdateTrainingSet(ctx context.Context, id int, in project.TrainingSetInput) (*project.TrainingSet, error) {
	var out project.TrainingSet
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/training-sets/%d/", id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetTrainingSetExcluded marks a training set as excluded from training.
func (c *Client) SetTrainingSetExcluded(ctx context.Context, id int, excluded bool) error {
	body := map[string]bool{"excluded": excluded}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/training-sets/%d/excluded/", id), nil, body, nil)
}

// TrainingSummary returns the per-class training data summary of a project.
func (c *Client) TrainingSummary(ctx context.Context, projectID int) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, "/training-sets/summary/", projectQuery(projectID), nil)
}

func (c *Client) raw(ctx context.Context, method, path string, q url.Values, body any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, method, path, q, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ project.TrainingSets = (*Client)(nil)

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Model and prediction payloads are passed through untouched; the map engine
// only needs the raster paths inside predictions, which callers extract.

// ListModels returns the trained models of a project.
func (c *Client) ListModels(ctx context.Context, projectID int) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, "/trained-models/", projectQuery(projectID), nil)
}

// TrainModel starts a training task.
func (c *Client) TrainModel(ctx context.Context, body any) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodPost, "/trained-models/train/", nil, body)
}

// DeleteModel removes a trained model.
func (c *Client) DeleteModel(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/trained-models/%d/", id), nil, nil, nil)
}

// TrainingProgress reports the state of a training task.
func (c *Client) TrainingProgress(ctx context.Context, taskID string) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, "/trained-models/training_progress/"+url.PathEscape(taskID)+"/", nil, nil)
}

// CancelTraining stops a training task.
func (c *Client) CancelTraining(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/trained-models/training_progress/"+url.PathEscape(taskID)+"/cancel/", nil, nil, nil)
}

// ModelMetrics returns evaluation metrics of a project's model.
func (c *Client) ModelMetrics(ctx context.Context, projectID int) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, fmt.Sprintf("/trained_models/%d/metrics/", projectID), nil, nil)
}

// ListPredictions returns the predictions of a project.
func (c *Client) ListPredictions(ctx context.Context, projectID int) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, "/predictions/", projectQuery(projectID), nil)
}

// GeneratePrediction starts a prediction run.
func (c *Client) GeneratePrediction(ctx context.Context, body any) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodPost, "/predictions/generate/", nil, body)
}

// DeletePrediction removes a prediction.
func (c *Client) DeletePrediction(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/predictions/%d/", id), nil, nil, nil)
}

// PredictionSummary returns class statistics of a prediction.
func (c *Client) PredictionSummary(ctx context.Context, id int) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, fmt.Sprintf("/predictions/%d/summary/", id), nil, nil)
}

// AnalyzeChange runs a change analysis between two predictions.
func (c *Client) AnalyzeChange(ctx context.Context, body any) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodPost, "/analysis/change/", nil, body)
}

// DeforestationHotspots lists hotspots of at least minAreaHa hectares.
func (c *Client) DeforestationHotspots(ctx context.Context, predictionID int, minAreaHa float64, source string) (json.RawMessage, error) {
	q := url.Values{"min_area_ha": {fmt.Sprint(minAreaHa)}}
	if source != "" {
		q.Set("source", source)
	}
	return c.raw(ctx, http.MethodGet, fmt.Sprintf("/analysis/deforestation_hotspots/%d/", predictionID), q, nil)
}

// VerifyHotspot records the verification status of a hotspot.
func (c *Client) VerifyHotspot(ctx context.Context, id int, status string) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/hotspots/%d/verify/", id), nil, map[string]string{"status": status}, nil)
}

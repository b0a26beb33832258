// Package project contains the project, class and training-set records
// exchanged with the remote API, plus the bookkeeping of which basemap dates
// already carry training data.
package project

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"
)

// Class is one land-cover class of a project.
type Class struct {
	Name  string `json:"name" doc:"Class name" example:"Forest"`
	Color string `json:"color" doc:"Base color (#rrggbb)" example:"#00aa00"`
}

// Project is the remote project record. AOI is a geometry in EPSG:3857.
type Project struct {
	ID          int               `json:"id" doc:"Project ID"`
	Name        string            `json:"name" doc:"Project name"`
	Description string            `json:"description,omitempty" doc:"Project description"`
	Classes     []Class           `json:"classes" doc:"Ordered land-cover classes"`
	AOI         *geojson.Geometry `json:"aoi,omitempty" doc:"Area of interest (EPSG:3857)"`
	AOIAreaHa   float64           `json:"aoi_area_ha,omitempty" doc:"AOI area in hectares"`
	IsTemplate  bool              `json:"is_template,omitempty"`
}

// ClassIndex returns the position of the named class, or -1.
func (p *Project) ClassIndex(name string) int {
	if p == nil {
		return -1
	}
	for i, c := range p.Classes {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// TrainingSet is a stored set of training polygons for one basemap date.
type TrainingSet struct {
	ID           int             `json:"id"`
	Project      int             `json:"project,omitempty"`
	Name         string          `json:"name,omitempty"`
	BasemapDate  string          `json:"basemap_date"`
	FeatureCount int             `json:"feature_count"`
	Excluded     bool            `json:"excluded"`
	Polygons     json.RawMessage `json:"polygons,omitempty"`
}

// TrainingSetInput is the body of create and update calls.
type TrainingSetInput struct {
	Project     int                        `json:"project"`
	BasemapDate string                     `json:"basemap_date"`
	Name        string                     `json:"name"`
	Polygons    *geojson.FeatureCollection `json:"polygons"`
}

// AOIUpdate is the body sent when a project's area of interest is set.
type AOIUpdate struct {
	AOI             *geojson.Geometry `json:"aoi"`
	AOIExtentLatLon [4]float64        `json:"aoi_extent_lat_lon"`
	BasemapDates    []string          `json:"basemap_dates"`
}

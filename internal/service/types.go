// Package service hosts the editing sessions of the cover server: the event
// bus fanning out their changes, the session registry and the draft store.
package service

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// SessionInfo describes an editing session. It is what survives a restart;
// the map state itself is rebuilt from the project and its training sets.
type SessionInfo struct {
	ID          string    `json:"id" doc:"Session ID" format:"uuid"`
	ProjectID   int       `json:"projectId,omitempty" doc:"Active project ID" example:"12"`
	BasemapDate string    `json:"basemapDate,omitempty" doc:"Displayed basemap month" example:"2023-05"`
	CreatedAt   time.Time `json:"createdAt" doc:"Creation time"`
}

// Draft is the unsaved training polygons of one project and basemap month.
type Draft struct {
	ProjectID   int                        `json:"projectId" doc:"Project ID"`
	BasemapDate string                     `json:"basemapDate" doc:"Basemap month"`
	Polygons    *geojson.FeatureCollection `json:"polygons" doc:"Training polygons (EPSG:3857)"`
	UpdatedAt   time.Time                  `json:"updatedAt" doc:"Last change"`
}

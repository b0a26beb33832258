package project

import (
	"fmt"
	"time"
)

// Range of monthly basemap mosaics offered to the user.
const (
	FirstBasemapYear = 2022
	LastBasemapYear  = 2024
)

// DateOption is a selectable basemap month.
type DateOption struct {
	Label string `json:"label" doc:"Display label" example:"January 2022"`
	Value string `json:"value" doc:"Basemap date key" example:"2022-01"`
}

// BasemapDateOptions lists every month from FirstBasemapYear to
// LastBasemapYear as YYYY-MM keys.
func BasemapDateOptions() []DateOption {
	var opts []DateOption
	for year := FirstBasemapYear; year <= LastBasemapYear; year++ {
		for month := time.January; month <= time.December; month++ {
			d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
			opts = append(opts, DateOption{
				Label: d.Format("January 2006"),
				Value: fmt.Sprintf("%d-%02d", year, int(month)),
			})
		}
	}
	return opts
}

// BasemapDates returns just the keys of BasemapDateOptions.
func BasemapDates() []string {
	opts := BasemapDateOptions()
	dates := make([]string, len(opts))
	for i, o := range opts {
		dates[i] = o.Value
	}
	return dates
}

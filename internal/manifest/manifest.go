// Package manifest holds the GTFS file manifest and publish policy.
package manifest

import (
	"sort"

	"github.com/jakesower/gtfs-import/contracts"
)

// RequiredFiles must all be present for a feed to be imported.
var RequiredFiles = []string{
	"agency.txt",
	"stops.txt",
	"routes.txt",
	"trips.txt",
	"stop_times.txt",
	"calendar.txt",
}

// OptionalFiles are imported when present.
var OptionalFiles = []string{
	"calendar_dates.txt",
	"fare_attributes.txt",
	"fare_rules.txt",
	"shapes.txt",
	"frequencies.txt",
	"transfers.txt",
	"feed_info.txt",
}

// PublishPolicy lists the files published as feature services, with the
// static parameters merged over the analyzed ones.
func PublishPolicy() map[string]contracts.PublishParameters {
	return map[string]contracts.PublishParameters{
		"stops.txt": {
			"name":               "Stops",
			"locationType":       "coordinates",
			"latitudeFieldName":  "stop_lat",
			"longitudeFieldName": "stop_lon",
		},
	}
}

// GTFS builds the manifest of a GTFS feed.
func GTFS() contracts.Manifest {
	m := make(contracts.Manifest, len(RequiredFiles)+len(OptionalFiles))
	for _, name := range RequiredFiles {
		m[name] = contracts.FileSpec{Required: true}
	}
	for _, name := range OptionalFiles {
		m[name] = contracts.FileSpec{}
	}
	for name, params := range PublishPolicy() {
		spec := m[name]
		spec.Publish = params
		m[name] = spec
	}
	return m
}

// Missing returns the required files of m absent from items, sorted.
func Missing(m contracts.Manifest, items []contracts.ImportItem) []string {
	present := make(map[string]bool, len(items))
	for _, item := range items {
		present[item.FileName] = true
	}
	var missing []string
	for name, spec := range m {
		if spec.Required && !present[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Check fails with a *contracts.PreconditionError if a required file is missing.
func Check(m contracts.Manifest, items []contracts.ImportItem) error {
	if missing := Missing(m, items); len(missing) > 0 {
		return &contracts.PreconditionError{Missing: missing}
	}
	return nil
}

// Filter keeps the items named in m, in their original order, and returns
// the unrecognized ones separately.
func Filter(m contracts.Manifest, items []contracts.ImportItem) (kept, dropped []contracts.ImportItem) {
	for _, item := range items {
		if _, ok := m[item.FileName]; ok {
			kept = append(kept, item)
		} else {
			dropped = append(dropped, item)
		}
	}
	return kept, dropped
}

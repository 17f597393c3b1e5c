package manifest

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jakesower/gtfs-import/contracts"
)

func items(names ...string) []contracts.ImportItem {
	out := make([]contracts.ImportItem, len(names))
	for i, n := range names {
		out[i] = contracts.ImportItem{Name: n, FileName: n, Path: "/tmp/" + n}
	}
	return out
}

func TestGTFS(t *testing.T) {
	m := GTFS()

	if len(m) != len(RequiredFiles)+len(OptionalFiles) {
		t.Fatalf("manifest has %d files, want %d", len(m), len(RequiredFiles)+len(OptionalFiles))
	}
	for _, name := range RequiredFiles {
		if !m[name].Required {
			t.Errorf("%s should be required", name)
		}
	}
	for _, name := range OptionalFiles {
		if m[name].Required {
			t.Errorf("%s should be optional", name)
		}
	}

	stops := m["stops.txt"].Publish
	if stops["locationType"] != "coordinates" || stops["latitudeFieldName"] != "stop_lat" || stops["longitudeFieldName"] != "stop_lon" {
		t.Fatalf("unexpected stops.txt policy %v", stops)
	}
	for name, spec := range m {
		if name != "stops.txt" && spec.Publish != nil {
			t.Errorf("%s should not be published", name)
		}
	}
}

func TestCheck(t *testing.T) {
	all := append(append([]string{}, RequiredFiles...), "shapes.txt")

	tests := []struct {
		name        string
		files       []string
		wantMissing []string
	}{
		{name: "complete feed", files: all},
		{name: "required files only", files: RequiredFiles},
		{
			name:        "stops.txt missing",
			files:       []string{"agency.txt", "routes.txt", "trips.txt", "stop_times.txt", "calendar.txt"},
			wantMissing: []string{"stops.txt"},
		},
		{
			name:        "empty archive",
			files:       nil,
			wantMissing: []string{"agency.txt", "calendar.txt", "routes.txt", "stop_times.txt", "stops.txt", "trips.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(GTFS(), items(tt.files...))
			if tt.wantMissing == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, contracts.ErrPrecondition) {
				t.Fatalf("expected ErrPrecondition, got %v", err)
			}
			var pe *contracts.PreconditionError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PreconditionError, got %T", err)
			}
			if !reflect.DeepEqual(pe.Missing, tt.wantMissing) {
				t.Fatalf("Missing = %v, want %v", pe.Missing, tt.wantMissing)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	kept, dropped := Filter(GTFS(), items("notes.txt", "stops.txt", "agency.txt", "README"))

	var keptNames, droppedNames []string
	for _, it := range kept {
		keptNames = append(keptNames, it.FileName)
	}
	for _, it := range dropped {
		droppedNames = append(droppedNames, it.FileName)
	}
	if !reflect.DeepEqual(keptNames, []string{"stops.txt", "agency.txt"}) {
		t.Errorf("kept = %v", keptNames)
	}
	if !reflect.DeepEqual(droppedNames, []string{"notes.txt", "README"}) {
		t.Errorf("dropped = %v", droppedNames)
	}
}

package archive

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jakesower/gtfs-import/contracts"
)

// writeZip creates a zip archive with the given entries. A name ending in "/"
// becomes a directory entry.
func writeZip(t *testing.T, entries map[string]string, order ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for _, name := range order {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(entries[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestZipExtractor_Extract(t *testing.T) {
	entries := map[string]string{
		"feed/":                "",
		"feed/agency.txt":      "agency_id,agency_name\n1,Metro\n",
		"feed/stop_times.txt":  "trip_id,stop_id\n",
		"__MACOSX/._stops.txt": "junk",
		"notes.txt":            "hello",
	}
	archive := writeZip(t, entries, "feed/", "feed/agency.txt", "feed/stop_times.txt", "__MACOSX/._stops.txt", "notes.txt")
	dir := t.TempDir()

	got, err := NewZipExtractor().Extract(archive, dir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := []contracts.ImportItem{
		{Name: "Agency", FileName: "agency.txt", Path: filepath.Join(dir, "agency.txt")},
		{Name: "Stop Times", FileName: "stop_times.txt", Path: filepath.Join(dir, "stop_times.txt")},
		{Name: "Notes", FileName: "notes.txt", Path: filepath.Join(dir, "notes.txt")},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d items (%+v), want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "agency.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != entries["feed/agency.txt"] {
		t.Fatalf("agency.txt = %q", data)
	}
}

func TestZipExtractor_Errors(t *testing.T) {
	notZip := filepath.Join(t.TempDir(), "feed.zip")
	if err := os.WriteFile(notZip, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	dup := writeZip(t, map[string]string{"a/stops.txt": "x", "b/stops.txt": "y"}, "a/stops.txt", "b/stops.txt")

	tests := []struct {
		name    string
		archive string
	}{
		{"missing archive", filepath.Join(t.TempDir(), "absent.zip")},
		{"not a zip", notZip},
		{"duplicate base names", dup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewZipExtractor().Extract(tt.archive, t.TempDir())
			if !errors.Is(err, contracts.ErrExtraction) {
				t.Fatalf("expected ErrExtraction, got %v", err)
			}
			var ee *contracts.ExtractionError
			if !errors.As(err, &ee) || ee.Archive != tt.archive {
				t.Fatalf("expected ExtractionError for %s, got %v", tt.archive, err)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"stops.txt", "Stops"},
		{"stop_times.txt", "Stop Times"},
		{"fare_attributes.txt", "Fare Attributes"},
		{"feed_info.txt", "Feed Info"},
		{"calendar_dates.txt", "Calendar Dates"},
		{"README", "Readme"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.in); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestZipExtractor_LargeEntry(t *testing.T) {
	row := "1001,Main St & 1st Ave,45.5231,-122.6765\n"
	content := "stop_id,stop_name,stop_lat,stop_lon\n" + strings.Repeat(row, 50000)
	archive := writeZip(t, map[string]string{"stops.txt": content}, "stops.txt")
	dir := t.TempDir()

	items, err := NewZipExtractor().Extract(archive, dir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	data, err := os.ReadFile(items[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Fatalf("extracted %d bytes, want %d", len(data), len(content))
	}
}

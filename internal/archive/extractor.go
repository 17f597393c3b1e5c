// Package archive unpacks GTFS zip archives into a working directory.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jakesower/gtfs-import/contracts"
)

// ZipExtractor implements contracts.Extractor for zip archives.
type ZipExtractor struct{}

// NewZipExtractor creates a ZipExtractor.
func NewZipExtractor() *ZipExtractor {
	return &ZipExtractor{}
}

// Extract writes every file entry of the archive under dir and describes it.
// Directory entries are skipped; entries are flattened to their base name,
// which is how feeds zipped from a folder still match the manifest.
func (z *ZipExtractor) Extract(archive, dir string) ([]contracts.ImportItem, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, &contracts.ExtractionError{Archive: archive, Err: err}
	}
	defer r.Close()

	var items []contracts.ImportItem
	seen := make(map[string]bool)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Base(strings.ReplaceAll(f.Name, `\`, "/"))
		if name == "." || name == "/" || name == ".." || strings.HasPrefix(name, "._") {
			continue
		}
		if seen[name] {
			return nil, &contracts.ExtractionError{Archive: archive, Err: fmt.Errorf("duplicate entry %s", name)}
		}
		seen[name] = true

		dst := filepath.Join(dir, name)
		if err := writeEntry(f, dst); err != nil {
			return nil, &contracts.ExtractionError{Archive: archive, Err: err}
		}
		items = append(items, contracts.ImportItem{
			Name:     DisplayName(name),
			FileName: name,
			Path:     dst,
		})
	}
	return items, nil
}

func writeEntry(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}

// DisplayName derives a title from a file name: "stop_times.txt" -> "Stop Times".
func DisplayName(fileName string) string {
	base := strings.TrimSuffix(fileName, ".txt")
	words := strings.Split(base, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

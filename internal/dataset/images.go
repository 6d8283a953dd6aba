package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"nutriscan/internal/domain"
)

// ImageFileName is the overhead RGB capture stored for every dish.
const ImageFileName = "rgb.png"

// ImageStore resolves dish images laid out as {base}/{dishId}/rgb.png.
type ImageStore struct {
	base      string
	available map[domain.DishID]struct{}
}

// OpenImageStore scans base once and remembers which dishes have an image.
// Later changes on disk are not picked up.
func OpenImageStore(base string) (*ImageStore, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("dataset: list images: %w", err)
	}
	s := &ImageStore{base: base, available: make(map[domain.DishID]struct{}, len(entries))}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := os.Stat(s.Path(entry.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		s.available[entry.Name()] = struct{}{}
	}
	return s, nil
}

// Has reports whether the dish had an image when the store was opened.
func (s *ImageStore) Has(id domain.DishID) bool {
	_, ok := s.available[id]
	return ok
}

// Path returns where the image for id is expected.
func (s *ImageStore) Path(id domain.DishID) string {
	return filepath.Join(s.base, id, ImageFileName)
}

// Len returns the number of dishes with an image.
func (s *ImageStore) Len() int {
	return len(s.available)
}

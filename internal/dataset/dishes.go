// Package dataset reads the dish id splits and locates dish images on disk.
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"nutriscan/internal/domain"
)

// ReadDishIDs returns the ids listed one per line in path, in file order.
// Blank lines are skipped.
func ReadDishIDs(path string) ([]domain.DishID, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open dish ids: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var ids []domain.DishID
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read dish ids: %w", err)
	}
	return ids, nil
}

package store

import (
	"context"
	"errors"
	"path"
	"strings"
)

var ErrNotFound = errors.New("object not found")

// Store is a flat key-value file store. Keys are slash-separated paths such as
// "curated/eea/UNFCCC_v28_3.csv".
type Store interface {
	// List returns the names of the CSV objects directly under dir, sorted lexicographically.
	List(ctx context.Context, dir string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the object at key. Readers never observe a partially written object.
	Put(ctx context.Context, key string, data []byte) error
}

// Layout names the directory of each pipeline stage.
type Layout struct {
	Raw          string
	Curated      string
	Standardized string
	Fact         string
	Dim          string
}

func DefaultLayout() Layout {
	return Layout{
		Raw:          "raw",
		Curated:      "curated",
		Standardized: "standardized",
		Fact:         "fact",
		Dim:          "dim",
	}
}

func (l Layout) RawDir(family string) string {
	return path.Join(l.Raw, family)
}

func (l Layout) CuratedDir(family string) string {
	return path.Join(l.Curated, family)
}

// SourceID returns the dataset id of a CSV file name: the name without its extension.
func SourceID(name string) string {
	return strings.TrimSuffix(path.Base(name), path.Ext(name))
}

func isCSV(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}

package store

import (
	"time"

	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

// Kind partitions the store's key space.
type Kind string

const (
	KindComposite Kind = "composite"
	KindMap       Kind = "map"
)

// EntryKind says what produced a CompositeEntry.
type EntryKind string

const (
	EntryComposite      EntryKind = "composite"
	EntryClassification EntryKind = "classification"
	EntryModel          EntryKind = "model"
	EntryAnalysis       EntryKind = "analysis"
)

// CompositeEntry is a derived image product referenced by key. Only the metadata
// is serialized; Handle lives in the process that built it and is nil for
// entries recovered from the durable store.
type CompositeEntry struct {
	Key        string         `json:"key"`
	Kind       EntryKind      `json:"kind"`
	DatasetID  string         `json:"datasetId,omitempty"`
	Region     string         `json:"region,omitempty"`
	StartDate  string         `json:"startDate,omitempty"`
	EndDate    string         `json:"endDate,omitempty"`
	Bands      []string       `json:"bands,omitempty"`
	VisParams  *vis.Params    `json:"visParams,omitempty"`
	Family     vis.Family     `json:"family,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	Fallback   bool           `json:"fallback,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`

	Handle earthengine.Image `json:"-"`
}

// HasHandle reports whether the live expression graph is available.
func (e *CompositeEntry) HasHandle() bool {
	return e != nil && e.Handle.Invocation != nil
}

// Layer is one visualized tile layer of a map.
type Layer struct {
	Name      string            `json:"name"`
	TileURL   string            `json:"tileUrl"`
	VisParams vis.Params        `json:"visParams"`
	Legend    []vis.LegendEntry `json:"legend,omitempty"`
}

// MapMetadata is the initial viewport of a map.
type MapMetadata struct {
	Center  [2]float64 `json:"center"`
	Zoom    int        `json:"zoom"`
	Basemap string     `json:"basemap"`
}

// MapSession is a saved set of layers for interactive display.
type MapSession struct {
	ID        string      `json:"id"`
	Input     string      `json:"input"`
	Region    string      `json:"region"`
	Layers    []Layer     `json:"layers"`
	CreatedAt time.Time   `json:"createdAt"`
	Metadata  MapMetadata `json:"metadata"`
}

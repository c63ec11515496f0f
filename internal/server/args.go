package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Dhenenjay/Axion-MCP/internal/catalog"
	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/store"
)

const dateLayout = "2006-01-02"

// defaultCloudCover applies when a tool builds a composite and the caller gave
// no cloudCoverMax.
const defaultCloudCover = 20.0

func oneOf(name, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	if value == "" {
		return invalidf("%s is required (one of %s)", name, strings.Join(allowed, ", "))
	}
	return invalidf("%s %q is not one of %s", name, value, strings.Join(allowed, ", "))
}

func parseDate(name, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, invalidf("%s %q must be YYYY-MM-DD", name, value)
	}
	return t, nil
}

// checkDates validates a date range. Both dates are required when required is
// set; otherwise either both or neither must be given.
func checkDates(start, end string, required bool) error {
	if start == "" && end == "" {
		if required {
			return invalidf("startDate and endDate are required")
		}
		return nil
	}
	if start == "" || end == "" {
		return invalidf("startDate and endDate must be given together")
	}
	s, err := parseDate("startDate", start)
	if err != nil {
		return err
	}
	e, err := parseDate("endDate", end)
	if err != nil {
		return err
	}
	if e.Before(s) {
		return invalidf("endDate %s is before startDate %s", end, start)
	}
	return nil
}

// checkScale rejects a scale that is present but not positive. An absent
// scale means the dataset's native scale.
func checkScale(scale *float64) error {
	if scale != nil && *scale <= 0 {
		return invalidf("scale must be positive, got %g", *scale)
	}
	return nil
}

// cloudCover validates cloudCoverMax and returns it, or def when absent.
func cloudCover(v *float64, def float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 || *v > 100 {
		return 0, invalidf("cloudCoverMax must be between 0 and 100, got %g", *v)
	}
	return *v, nil
}

// parseRegion decodes an optional region argument. The result is nil when the
// argument is absent.
func parseRegion(raw json.RawMessage, required bool) (*earthengine.Region, error) {
	r, err := earthengine.ParseRegion(raw)
	if errors.Is(err, earthengine.ErrEmptyRegion) {
		if required {
			return nil, invalidf("region is required")
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return &r, nil
}

// regionSpec encodes a region so that ParseRegionString restores it.
func regionSpec(r *earthengine.Region) string {
	if r == nil {
		return ""
	}
	switch r.Kind {
	case earthengine.RegionBBox:
		parts := make([]string, len(r.BBox))
		for i, v := range r.BBox {
			parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		return strings.Join(parts, ",")
	case earthengine.RegionGeoJSON:
		b, _ := json.Marshal(r.GeoJSON)
		return string(b)
	default:
		return r.Place
	}
}

// entryRegion recovers the region a composite was built over.
func entryRegion(e *store.CompositeEntry) *earthengine.Region {
	if e == nil || e.Region == "" {
		return nil
	}
	r, err := earthengine.ParseRegionString(e.Region)
	if err != nil {
		return nil
	}
	return &r
}

func geometryOf(r *earthengine.Region) *earthengine.Geometry {
	if r == nil {
		return nil
	}
	g := r.Geometry()
	return &g
}

// dataset looks id up in the catalog, passing unknown ids through as image
// collections.
func (s *Server) dataset(id string) catalog.Dataset {
	if ds, ok := s.catalog.Lookup(id); ok {
		return ds
	}
	return catalog.Unknown(strings.TrimSpace(id), catalog.TypeImageCollection)
}

// newKey generates a composite key with a readable prefix.
func newKey(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

// compositeMissing is the result for a key that resolves to nothing.
func (s *Server) compositeMissing(key string) map[string]interface{} {
	return failure("composite not found: "+key, map[string]interface{}{
		"availableKeys": s.facade.Keys(),
	})
}

// handleLost is the result for a key whose metadata survived a restart but whose
// expression handle did not.
func handleLost(e *store.CompositeEntry) map[string]interface{} {
	return failure("handle lost, recreate the composite: "+e.Key, map[string]interface{}{
		"composite": e,
	})
}

// resolved is a composite ready for use, possibly a stand-in.
type resolved struct {
	entry   *store.CompositeEntry
	warning string
}

// annotate adds the fallback markers to a result.
func (r *resolved) annotate(result map[string]interface{}) map[string]interface{} {
	if r.entry.Fallback {
		result["fallback"] = true
		result["warning"] = r.warning
	}
	return result
}

// resolveComposite looks key up through the facade. When it is missing and
// allowFallback is set, a stand-in Sentinel-2 composite over the fallback period
// is built instead; otherwise the returned result describes the failure.
func (s *Server) resolveComposite(key string, allowFallback bool, region *earthengine.Region) (*resolved, map[string]interface{}) {
	if e, ok := s.facade.Get(key); ok {
		if !e.HasHandle() {
			return nil, handleLost(e)
		}
		return &resolved{entry: e}, nil
	}
	if !allowFallback {
		return nil, s.compositeMissing(key)
	}

	ds := s.dataset(catalog.FallbackDataset)
	img := ds.Load(catalog.FallbackStart, catalog.FallbackEnd, geometryOf(region), defaultCloudCover)
	if region != nil {
		img = img.Clip(region.Geometry())
	}
	s.logger.Warn().Str("key", key).Str("dataset", ds.ID).Msg("composite missing, using fallback")
	return &resolved{
		entry: &store.CompositeEntry{
			Key:       key,
			Kind:      store.EntryComposite,
			DatasetID: ds.ID,
			Region:    regionSpec(region),
			StartDate: catalog.FallbackStart,
			EndDate:   catalog.FallbackEnd,
			Bands:     ds.Default,
			Family:    ds.Family,
			CreatedAt: time.Now().UTC(),
			Fallback:  true,
			Handle:    img,
		},
		warning: fmt.Sprintf("composite %q not found; substituted a %s median composite for %s..%s", key, ds.ID, catalog.FallbackStart, catalog.FallbackEnd),
	}, nil
}

// imageSource resolves the image a visualization or export tool operates on:
// a stored composite when inputKey is set, otherwise the dataset itself.
type imageSource struct {
	InputKey      string
	DatasetID     string
	StartDate     string
	EndDate       string
	CloudCoverMax *float64
	AllowFallback bool
}

func (s *Server) resolveSource(src imageSource, region *earthengine.Region) (*resolved, map[string]interface{}, error) {
	if src.InputKey != "" {
		r, fail := s.resolveComposite(src.InputKey, src.AllowFallback, region)
		return r, fail, nil
	}
	if src.DatasetID == "" {
		return nil, nil, invalidf("inputKey or datasetId is required")
	}
	if err := checkDates(src.StartDate, src.EndDate, false); err != nil {
		return nil, nil, err
	}
	cloud, err := cloudCover(src.CloudCoverMax, defaultCloudCover)
	if err != nil {
		return nil, nil, err
	}
	ds := s.dataset(src.DatasetID)
	if ds.Type == catalog.TypeTable {
		return nil, nil, invalidf("%s is a table, not imagery", ds.ID)
	}
	if ds.IsCollection() && src.StartDate == "" {
		return nil, nil, invalidf("startDate and endDate are required for image collection %s", ds.ID)
	}
	img := ds.Load(src.StartDate, src.EndDate, geometryOf(region), cloud)
	return &resolved{entry: &store.CompositeEntry{
		Key:       ds.ID,
		Kind:      store.EntryComposite,
		DatasetID: ds.ID,
		Region:    regionSpec(region),
		StartDate: src.StartDate,
		EndDate:   src.EndDate,
		Bands:     ds.Default,
		Family:    ds.Family,
		Handle:    img,
	}}, nil, nil
}

// decodeNumber reads a computed number; null becomes nil.
func decodeNumber(raw json.RawMessage) (*float64, error) {
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("unexpected value %s: %w", truncate(string(raw), 80), err)
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

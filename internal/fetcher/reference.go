package fetcher

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/woozymasta/geoguard/internal/geo"
	"github.com/woozymasta/geoguard/internal/topojson"
)

// Reference names the geography to load. It is one of URL, InlineTopology,
// InlineCollection or Raw.
type Reference interface {
	reference()
}

// URL is a remote geography. It is screened by the security policy and
// loaded through the shared cache.
type URL string

// InlineTopology is an already decoded TopoJSON document.
type InlineTopology struct {
	Topology *topojson.Topology
}

// InlineCollection is an already decoded GeoJSON FeatureCollection.
type InlineCollection struct {
	Collection geo.GeoJSONFeatureCollection
}

// Raw is an undecoded payload already in memory, such as a local file.
// It is cached by content hash.
type Raw struct {
	Name string
	Data []byte
}

func (URL) reference()              {}
func (InlineTopology) reference()   {}
func (InlineCollection) reference() {}
func (Raw) reference()              {}

// contentKey hashes raw payloads for the cache.
func contentKey(data []byte) string {
	return "raw:" + strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Describe returns the reference string carried by errors and logs.
func Describe(ref Reference) string {
	switch r := ref.(type) {
	case URL:
		return string(r)
	case Raw:
		if r.Name != "" {
			return r.Name
		}
		return contentKey(r.Data)
	case InlineTopology:
		return "inline:topology"
	case InlineCollection:
		return "inline:collection"
	default:
		return "unknown"
	}
}

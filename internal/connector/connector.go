package connector

import "net/url"

// DefaultEndpoint is the public Wistia API.
const DefaultEndpoint = "https://api.wistia.com"

// Kind says how an entity is ingested.
type Kind int

const (
	// Snapshot entities are re-fetched wholesale every run.
	Snapshot Kind = iota
	// Incremental entities are paginated and filtered against a watermark.
	Incremental
)

func (k Kind) String() string {
	switch k {
	case Snapshot:
		return "snapshot"
	case Incremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// Entity describes one named category of ingested data.
type Entity struct {
	Name string
	Kind Kind
	Path string // API path; for snapshot entities a prefix completed by an id
}

// ItemPath returns the API path for one identifier of a snapshot entity.
func (e Entity) ItemPath(id string) string {
	return e.Path + url.PathEscape(id) + ".json"
}

// Built-in entities of the stats API.
var (
	Media    = Entity{Name: "media", Kind: Snapshot, Path: "/v1/stats/medias/"}
	Events   = Entity{Name: "events", Kind: Incremental, Path: "/v1/stats/events.json"}
	Visitors = Entity{Name: "visitors", Kind: Incremental, Path: "/v1/stats/visitors.json"}
)

func init() {
	Register(Media)
	Register(Events)
	Register(Visitors)
}

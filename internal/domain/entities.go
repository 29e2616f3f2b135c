package domain

// EntityType names a content category. It doubles as the cache key suffix
// and the response envelope field.
type EntityType string

const (
	EntityShows    EntityType = "shows"
	EntityEpisodes EntityType = "episodes"
	EntityStreams  EntityType = "streams"
	EntityPeople   EntityType = "people"
)

// Show is a programme in the catalog.
type Show struct {
	ID          int           `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	ImageURL    string        `json:"image_url,omitempty"`
	Embedded    *ShowEmbedded `json:"_embedded,omitempty"`
}

// ShowEmbedded carries expansions requested with ?embed=.
type ShowEmbedded struct {
	Hosts []Person `json:"hosts,omitempty"`
}

// Episode is a single playable entry belonging to a show.
type Episode struct {
	ID          int              `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	ShowID      int              `json:"show_id,omitempty"`
	MediaURL    string           `json:"media_url,omitempty"`
	Duration    int              `json:"duration,omitempty"` // seconds
	PublishedAt string           `json:"published_at,omitempty"`
	Embedded    *EpisodeEmbedded `json:"_embedded,omitempty"`
}

// EpisodeEmbedded carries expansions requested with ?embed=.
type EpisodeEmbedded struct {
	People []Person `json:"people,omitempty"`
}

// HasPeople reports whether host/guest data is embedded.
func (e *Episode) HasPeople() bool {
	return e.Embedded != nil && len(e.Embedded.People) > 0
}

// MergePeople appends people not already embedded, matched by ID.
func (e *Episode) MergePeople(people []Person) {
	if len(people) == 0 {
		return
	}
	if e.Embedded == nil {
		e.Embedded = &EpisodeEmbedded{}
	}
	seen := make(map[int]bool, len(e.Embedded.People))
	for _, p := range e.Embedded.People {
		seen[p.ID] = true
	}
	for _, p := range people {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		e.Embedded.People = append(e.Embedded.People, p)
	}
}

// Stream is a live audio/video channel.
type Stream struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	StreamURL string `json:"stream_url,omitempty"`
	Kind      string `json:"kind,omitempty"` // "audio" or "video"
	IsLive    bool   `json:"is_live,omitempty"`
}

// Person is a host, guest or contributor.
type Person struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Bio      string `json:"bio,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Singular names one item of the type, used for detail-level cache keys.
func (t EntityType) Singular() string {
	switch t {
	case EntityShows:
		return "show"
	case EntityEpisodes:
		return "episode"
	case EntityStreams:
		return "stream"
	case EntityPeople:
		return "person"
	default:
		return string(t)
	}
}

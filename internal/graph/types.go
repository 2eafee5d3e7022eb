package graph

// Publication is a publication node with the properties pubrag reads.
type Publication struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract,omitempty"`
	Year     int      `json:"year,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Topics   []string `json:"topics,omitempty"`
}

// HasAbstract reports whether the abstract is non-blank.
func (p Publication) HasAbstract() bool {
	for _, r := range p.Abstract {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}

// Relationship types in the publication graph.
const (
	RelAuthored = "AUTHORED"
	RelCites    = "CITES"
	RelPartOf   = "PART_OF"
	RelHasTopic = "HAS_TOPIC"
)

// RelationshipTypes lists the relationship types the validation suite counts.
var RelationshipTypes = []string{RelAuthored, RelCites, RelPartOf, RelHasTopic}

// Node labels.
const (
	LabelPublication = "publication"
	LabelAuthor      = "Author"
	LabelTopic       = "Topic"
	LabelVenue       = "Venue"
)

package entities

// IndexedEntity is a catalog record as stored in the similarity index.
type IndexedEntity struct {
	ID         string
	EntityType EntityType
	Label      string
	Summary    string
	Embedding  []float32
}

// SimilarEntity is a search hit from the similarity index.
type SimilarEntity struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entity_type"`
	Label      string     `json:"label"`
	Summary    string     `json:"summary"`
	Score      float32    `json:"score"`
}

package store

// CatalogEmbedding archives one catalog entry's vector in the database.
// The serving path reads vectors from the index artifacts; this table is
// the rebuild source and the postgres-side vector store.
type CatalogEmbedding struct {
	ID        int64
	EntryID   string
	Domain    string
	Model     string
	Embedding []float32
	CreatedTs int64
	UpdatedTs int64
}

// FindCatalogEmbedding filters catalog embedding queries.
type FindCatalogEmbedding struct {
	EntryID *string
	Domain  *string
	Model   *string
}

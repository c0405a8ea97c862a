package domain

import "time"

// FeedSource is a configured feed endpoint.
type FeedSource struct {
	URL     string
	Label   string
	Scanner string
	// Ordered marks feeds known to list entries newest first.
	Ordered bool
}

// CandidateArticle is a feed entry published after the run cutoff, together
// with the paragraph text fetched from its link.
type CandidateArticle struct {
	Title       string
	Link        string
	PublishedAt time.Time
	ImageURL    string
	SourceLabel string
	Text        string
}

// ExtractedIncident captures the structured fields returned by the extraction model.
type ExtractedIncident struct {
	VendorRaw               string
	Product                 string
	ExploitDescription      string
	Summary                 string
	IncidentType            string
	AffectedService         string
	PotentiallyImpactedData string
	Status                  string
}

// Incident is the persisted, deduplicated record.
type Incident struct {
	ID                      string
	Title                   string
	VendorKey               string
	Product                 string
	PublishedAt             time.Time
	ExploitDescription      string
	Summary                 string
	SourceURL               string
	ImageURL                string
	IncidentType            string
	AffectedService         string
	PotentiallyImpactedData string
	Status                  string
	SourceLabel             string
}

// NewIncident merges a candidate with its extraction result.
func NewIncident(article CandidateArticle, extracted ExtractedIncident) Incident {
	return Incident{
		Title:                   article.Title,
		VendorKey:               NormalizeVendor(extracted.VendorRaw),
		Product:                 extracted.Product,
		PublishedAt:             article.PublishedAt.UTC(),
		ExploitDescription:      extracted.ExploitDescription,
		Summary:                 extracted.Summary,
		SourceURL:               article.Link,
		ImageURL:                article.ImageURL,
		IncidentType:            extracted.IncidentType,
		AffectedService:         extracted.AffectedService,
		PotentiallyImpactedData: extracted.PotentiallyImpactedData,
		Status:                  extracted.Status,
		SourceLabel:             article.SourceLabel,
	}
}

// PriorIncident is the slice of a stored incident shown to the duplicate check.
type PriorIncident struct {
	Title   string
	Summary string
}

// InsertResult reports the outcome of a store insert.
type InsertResult string

const (
	InsertResultInserted            InsertResult = "inserted"
	InsertResultSkippedDuplicateURL InsertResult = "skipped_duplicate_url"
)

// IncidentFilter narrows downstream incident listings.
type IncidentFilter struct {
	VendorKey string
	Since     time.Time
	Limit     int
}

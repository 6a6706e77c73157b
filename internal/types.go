package internal

import "time"

type NameSource string

const (
	NameFromMetadata NameSource = "metadata"
	NameFromMarket   NameSource = "market"
)

type CaseRecord struct {
	Name             string     `json:"name"`
	NameSource       NameSource `json:"nameSource"`
	NormalizedKey    string     `json:"normalizedKey"`
	Price            *float64   `json:"price"`
	ROI              *float64   `json:"roi"`
	KeyCost          *float64   `json:"keyCost"`
	MetadataImageURL *string    `json:"metadataImageUrl"`
	MarketImageURL   *string    `json:"marketImageUrl"`
	PriceSeenAt      *time.Time `json:"priceSeenAt,omitempty"`
}

// Complete reports whether the record can be offered for planning: it needs a
// market price and at least one image.
func (r CaseRecord) Complete() bool {
	return r.Price != nil && (r.MetadataImageURL != nil || r.MarketImageURL != nil)
}

// ImageURL prefers the metadata image and falls back to the market one.
func (r CaseRecord) ImageURL() string {
	if r.MetadataImageURL != nil {
		return *r.MetadataImageURL
	}
	if r.MarketImageURL != nil {
		return *r.MarketImageURL
	}
	return ""
}

type MetadataEntry struct {
	OriginalName string   `json:"originalName"`
	ROI          float64  `json:"roi"`
	KeyCost      *float64 `json:"keyCost"`
	ImageURL     string   `json:"imageUrl"`
}

type Listing struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"imageUrl"`
}

type PlannerLine struct {
	NormalizedKey string `json:"normalizedKey"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
}

type RefreshRun struct {
	ID        int
	TraceID   string
	Status    string
	Timings   map[string]float64
	Counts    map[string]int
	CreatedAt string
}

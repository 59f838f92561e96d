// Package models contains the data types shared across the collection pipeline.
package models

// Attribute is a structured product attribute (id, display name, value)
type Attribute struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ValueName string `json:"value_name"`
}

// Text renders the attribute as a single display line
func (a Attribute) Text() string {
	return a.Name + ": " + a.ValueName
}

// MainFeature is a free-text product highlight
type MainFeature struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// ItemSummary is the minimal record a discovery (search) page yields for one
// item. The detail fetch expands it into a CollectedItem.
type ItemSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DomainID    string `json:"domain_id"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
}

// CollectedItem is a fully validated catalog item combining discovery and
// detail data. Immutable once created; ownership transfers to the accumulator
// on insertion.
type CollectedItem struct {
	// Product identification
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	DomainID   string `json:"domain_id"`
	FamilyName string `json:"family_name"`
	Permalink  string `json:"permalink,omitempty"`

	// Textual content
	Description      string `json:"description,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`
	Keywords         string `json:"keywords,omitempty"`

	// Structured data
	Attributes   []Attribute   `json:"attributes,omitempty"`
	MainFeatures []MainFeature `json:"main_features,omitempty"`

	// Provenance: the (category, term) pair that discovered this item
	SourceCategory string `json:"source_category"`
	SourceTerm     string `json:"source_term"`
}

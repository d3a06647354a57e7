package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// NewSearchBundle creates a searchset Bundle from a page of resources.
// total is the size of the whole result set, not of the page. Entries whose
// resource cannot be encoded are reported as an error rather than dropped.
func NewSearchBundle(resources []interface{}, total int, baseURL string, links []BundleLink) (*Bundle, error) {
	now := time.Now().UTC()
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode bundle entry %d: %w", i, err)
		}
		entries[i] = BundleEntry{
			FullURL:  extractFullURL(raw, baseURL),
			Resource: raw,
			Search: &BundleSearch{
				Mode: "match",
			},
		}
	}

	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         links,
		Entry:        entries,
	}, nil
}

// extractFullURL builds a fullUrl from an encoded resource's resourceType and id.
func extractFullURL(raw json.RawMessage, baseURL string) string {
	var head Resource
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	if head.ResourceType == "" || head.ID == "" {
		return ""
	}
	ref := FormatReference(head.ResourceType, head.ID)
	if baseURL == "" {
		return ref
	}
	return baseURL + "/" + ref
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

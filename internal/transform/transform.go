// Package transform maps upstream place details onto the canonical listing
// record. Everything here is pure apart from the random slug suffix.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ekaty/ekaty-agent/internal/listing"
	"github.com/ekaty/ekaty-agent/internal/places"
)

// ErrMissingPlaceID is returned for a detail without an upstream id.
var ErrMissingPlaceID = errors.New("place detail has no place_id")

// Limits on how much of the upstream record is kept.
const (
	MaxPhotos  = 10
	MaxReviews = 5
)

const statusOperational = "OPERATIONAL"

// Transformer converts PlaceDetail values into listing records.
type Transformer struct {
	suffix func() string
	logger *slog.Logger
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithSuffix replaces the random slug suffix source.
func WithSuffix(fn func() string) Option {
	return func(t *Transformer) { t.suffix = fn }
}

// New creates a Transformer.
func New(logger *slog.Logger, opts ...Option) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transformer{suffix: randomSuffix, logger: logger.With("component", "transform")}
	for _, o := range opts {
		o(t)
	}
	return t
}

// metadata is the bounded snapshot stored alongside a record.
type metadata struct {
	GoogleURL         string          `json:"google_url,omitempty"`
	PlaceID           string          `json:"place_id"`
	Types             []string        `json:"types"`
	BusinessStatus    string          `json:"business_status,omitempty"`
	UTCOffset         *int            `json:"utc_offset,omitempty"`
	Vicinity          string          `json:"vicinity,omitempty"`
	PermanentlyClosed bool            `json:"permanently_closed"`
	Reviews           []places.Review `json:"reviews"`
}

// Transform maps one detail onto a new record. ID and timestamps are left for
// the store to assign.
func (t *Transformer) Transform(d *places.PlaceDetail) (*listing.Record, error) {
	if d == nil || d.PlaceID == "" {
		return nil, ErrMissingPlaceID
	}

	hours, err := BuildHours(d.OpeningHours)
	if err != nil {
		return nil, fmt.Errorf("place %s: %w", d.PlaceID, err)
	}

	meta, err := json.Marshal(buildMetadata(d))
	if err != nil {
		return nil, fmt.Errorf("place %s: encode metadata: %w", d.PlaceID, err)
	}

	name := d.Name
	if name == "" {
		name = "Unknown"
	}
	addr := ParseAddress(d.AddressComponents)
	cuisines := Cuisines(d.Types)

	rec := &listing.Record{
		Name:         name,
		Slug:         t.slug(name),
		Description:  Describe(name, cuisines),
		Address:      d.FormattedAddress,
		City:         addr.City,
		State:        addr.State,
		Zip:          addr.Zip,
		Latitude:     d.Geometry.Location.Lat,
		Longitude:    d.Geometry.Location.Lng,
		Phone:        d.FormattedPhoneNumber,
		Website:      d.Website,
		Categories:   Categories(d.Types),
		CuisineTypes: cuisines,
		Hours:        hours,
		PriceLevel:   PriceTier(d.PriceLevel),
		Photos:       photoRefs(d.Photos),
		Rating:       d.Rating,
		ReviewCount:  d.UserRatingsTotal,
		Source:       listing.Source,
		SourceID:     d.PlaceID,
		Metadata:     meta,
		Active:       IsActive(d.BusinessStatus),
	}

	t.logger.Debug("Transformed place", "name", rec.Name, "source_id", rec.SourceID)
	return rec, nil
}

// TransformAll transforms every detail, dropping and counting failures.
func (t *Transformer) TransformAll(details []*places.PlaceDetail) ([]*listing.Record, int) {
	out := make([]*listing.Record, 0, len(details))
	errCount := 0
	for _, d := range details {
		rec, err := t.Transform(d)
		if err != nil {
			errCount++
			placeID := "unknown"
			if d != nil && d.PlaceID != "" {
				placeID = d.PlaceID
			}
			t.logger.Warn("Skipped place due to transform error", "place_id", placeID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	t.logger.Info("Batch transform complete", "total", len(details), "success", len(out), "errors", errCount)
	return out, errCount
}

func (t *Transformer) slug(name string) string {
	base := Slugify(name)
	if base == "" {
		base = "restaurant"
	}
	return base + "-" + t.suffix()
}

// PriceTier maps upstream price levels 1..4; anything else is MODERATE.
func PriceTier(level *int) listing.PriceLevel {
	if level == nil {
		return listing.PriceModerate
	}
	switch *level {
	case 1:
		return listing.PriceBudget
	case 2:
		return listing.PriceModerate
	case 3:
		return listing.PriceExpensive
	case 4:
		return listing.PriceLuxury
	default:
		return listing.PriceModerate
	}
}

// IsActive treats an absent status as operational.
func IsActive(status string) bool {
	return status == "" || status == statusOperational
}

// Describe writes the one-line listing blurb.
func Describe(name string, cuisines []string) string {
	if len(cuisines) == 0 {
		return name + " is a restaurant located in Katy, Texas."
	}
	if len(cuisines) > 2 {
		cuisines = cuisines[:2]
	}
	return fmt.Sprintf("%s offers %s cuisine in Katy, Texas.", name, strings.Join(cuisines, ", "))
}

func photoRefs(photos []places.Photo) []string {
	if len(photos) > MaxPhotos {
		photos = photos[:MaxPhotos]
	}
	refs := make([]string, 0, len(photos))
	for _, p := range photos {
		if p.PhotoReference != "" {
			refs = append(refs, p.PhotoReference)
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

func buildMetadata(d *places.PlaceDetail) metadata {
	reviews := d.Reviews
	if len(reviews) > MaxReviews {
		reviews = reviews[:MaxReviews]
	}
	if reviews == nil {
		reviews = []places.Review{}
	}
	types := d.Types
	if types == nil {
		types = []string{}
	}
	return metadata{
		GoogleURL:         d.URL,
		PlaceID:           d.PlaceID,
		Types:             types,
		BusinessStatus:    d.BusinessStatus,
		UTCOffset:         d.UTCOffset,
		Vicinity:          d.Vicinity,
		PermanentlyClosed: d.PermanentlyClosed,
		Reviews:           reviews,
	}
}

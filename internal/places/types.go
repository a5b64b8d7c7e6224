package places

// PlaceStub is the lightweight record returned by nearby search. It only
// lives for the duration of one sync run.
type PlaceStub struct {
	ExternalID string
	Latitude   float64
	Longitude  float64
	Name       string
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Geometry struct {
	Location LatLng `json:"location"`
}

type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// TimeOfWeek is one end of an opening period. Day is 0 (Sunday) to 6, Time
// is "HHMM".
type TimeOfWeek struct {
	Day  *int   `json:"day"`
	Time string `json:"time"`
}

type Period struct {
	Open  *TimeOfWeek `json:"open"`
	Close *TimeOfWeek `json:"close"`
}

type OpeningHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	Periods     []Period `json:"periods"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

type Photo struct {
	PhotoReference string `json:"photo_reference"`
	Height         int    `json:"height"`
	Width          int    `json:"width"`
}

type Review struct {
	AuthorName string  `json:"author_name"`
	Rating     float64 `json:"rating"`
	Text       string  `json:"text"`
	Time       int64   `json:"time"`
}

// PlaceDetail is the full upstream record for one place.
type PlaceDetail struct {
	PlaceID                  string             `json:"place_id"`
	Name                     string             `json:"name"`
	FormattedAddress         string             `json:"formatted_address"`
	AddressComponents        []AddressComponent `json:"address_components"`
	Geometry                 Geometry           `json:"geometry"`
	FormattedPhoneNumber     string             `json:"formatted_phone_number"`
	InternationalPhoneNumber string             `json:"international_phone_number"`
	Website                  string             `json:"website"`
	BusinessStatus           string             `json:"business_status"`
	OpeningHours             *OpeningHours      `json:"opening_hours"`
	PriceLevel               *int               `json:"price_level"`
	Rating                   *float64           `json:"rating"`
	UserRatingsTotal         int                `json:"user_ratings_total"`
	Types                    []string           `json:"types"`
	Photos                   []Photo            `json:"photos"`
	Reviews                  []Review           `json:"reviews"`
	URL                      string             `json:"url"`
	Vicinity                 string             `json:"vicinity"`
	UTCOffset                *int               `json:"utc_offset"`
	PermanentlyClosed        bool               `json:"permanently_closed"`
}

// searchResult is one entry of a nearby search response.
type searchResult struct {
	PlaceID  string   `json:"place_id"`
	Name     string   `json:"name"`
	Geometry Geometry `json:"geometry"`
}

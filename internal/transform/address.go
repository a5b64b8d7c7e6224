package transform

import (
	"slices"

	"github.com/ekaty/ekaty-agent/internal/places"
)

// Defaults applied when the address components omit a field.
const (
	DefaultCity  = "Katy"
	DefaultState = "TX"
)

// Address is the subset of a postal address the listing keeps.
type Address struct {
	StreetNumber string
	Route        string
	City         string
	State        string
	Zip          string
}

// ParseAddress scans tagged address components once. City comes from
// "locality", state from the short form of "administrative_area_level_1",
// zip from "postal_code". Missing city and state fall back to Katy, TX.
func ParseAddress(components []places.AddressComponent) Address {
	var a Address
	for _, c := range components {
		if slices.Contains(c.Types, "street_number") {
			a.StreetNumber = c.LongName
		}
		if slices.Contains(c.Types, "route") {
			a.Route = c.LongName
		}
		if slices.Contains(c.Types, "locality") {
			a.City = c.LongName
		}
		if slices.Contains(c.Types, "administrative_area_level_1") {
			a.State = c.ShortName
		}
		if slices.Contains(c.Types, "postal_code") {
			a.Zip = c.LongName
		}
	}
	if a.City == "" {
		a.City = DefaultCity
	}
	if a.State == "" {
		a.State = DefaultState
	}
	return a
}

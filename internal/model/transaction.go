// Package model defines the value types shared by the valuation engine and its callers.
package model

import (
	"strings"
	"time"
)

// RawRecord is an unvalidated transaction row as handed over by a data source.
// Keys are matched case-insensitively by the normalizer; values may be numbers,
// numeric strings, or missing.
type RawRecord map[string]any

// Property categories. Each one selects a tuning profile.
const (
	CategoryResidential = "residential"
	CategoryOffice      = "office"
	CategoryRental      = "rental"
	CategoryRetail      = "retail"
)

// Transaction is a normalized comparable sale or rental record.
type Transaction struct {
	ID               string    `json:"id"`
	Street           string    `json:"street"`
	HouseNumber      string    `json:"house_number"`
	City             string    `json:"city"`
	Neighborhood     string    `json:"neighborhood,omitempty"`
	Date             time.Time `json:"date"`
	Price            float64   `json:"price"` // total price or monthly rent
	Area             float64   `json:"area"`  // square meters, always > 0
	Rooms            *float64  `json:"rooms,omitempty"`
	Floor            *int      `json:"floor,omitempty"`
	PricePerUnitArea float64   `json:"price_per_unit_area"`
	Lat              *float64  `json:"lat,omitempty"`
	Lon              *float64  `json:"lon,omitempty"`
	YearBuilt        *int      `json:"year_built,omitempty"`
	Condition        string    `json:"condition,omitempty"`
	BuildingClass    string    `json:"building_class,omitempty"`
	Amenities        []string  `json:"amenities,omitempty"`
	Source           string    `json:"source,omitempty"`
	Reliability      *float64  `json:"reliability,omitempty"` // 0-1 source quality
}

// Address returns a single-line street address ("Herzl 12, Haifa").
func (t Transaction) Address() string {
	return formatAddress(t.Street, t.HouseNumber, t.City)
}

// AddressKey returns a lowercase key identifying the physical unit, used to
// group repeat sales of the same address.
func (t Transaction) AddressKey() string {
	return strings.ToLower(t.Street + "|" + t.HouseNumber + "|" + t.City)
}

// HasCoordinates reports whether both latitude and longitude are known.
func (t Transaction) HasCoordinates() bool {
	return t.Lat != nil && t.Lon != nil
}

// SubjectProperty is the property being valued.
type SubjectProperty struct {
	Street        string    `json:"street" yaml:"street"`
	HouseNumber   string    `json:"house_number" yaml:"house_number"`
	City          string    `json:"city" yaml:"city"`
	Neighborhood  string    `json:"neighborhood,omitempty" yaml:"neighborhood"`
	Area          float64   `json:"area" yaml:"area"`
	Rooms         *float64  `json:"rooms,omitempty" yaml:"rooms"`
	Floor         *int      `json:"floor,omitempty" yaml:"floor"`
	Lat           *float64  `json:"lat,omitempty" yaml:"lat"`
	Lon           *float64  `json:"lon,omitempty" yaml:"lon"`
	YearBuilt     *int      `json:"year_built,omitempty" yaml:"year_built"`
	Condition     string    `json:"condition,omitempty" yaml:"condition"`
	BuildingClass string    `json:"building_class,omitempty" yaml:"building_class"`
	Amenities     []string  `json:"amenities,omitempty" yaml:"amenities"`
	Category      string    `json:"category,omitempty" yaml:"category"`
	ValuationDate time.Time `json:"valuation_date,omitempty" yaml:"valuation_date"`
}

// Address returns a single-line street address.
func (s SubjectProperty) Address() string {
	return formatAddress(s.Street, s.HouseNumber, s.City)
}

// HasCoordinates reports whether both latitude and longitude are known.
func (s SubjectProperty) HasCoordinates() bool {
	return s.Lat != nil && s.Lon != nil
}

func formatAddress(street, number, city string) string {
	line := strings.TrimSpace(street + " " + number)
	switch {
	case line == "":
		return city
	case city == "":
		return line
	default:
		return line + ", " + city
	}
}

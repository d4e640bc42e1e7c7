// Package normalize turns heterogeneous raw transaction rows into canonical
// model.Transaction values, dropping rows that fail validation.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/comps-cli/internal/model"
)

// Drop reasons reported in Result.DropReasons.
const (
	ReasonInvalidPrice    = "invalid_price"
	ReasonInvalidArea     = "invalid_area"
	ReasonInvalidDate     = "invalid_date"
	ReasonInvalidOptional = "invalid_optional"
)

// Result is the outcome of a normalization pass.
type Result struct {
	Transactions []model.Transaction `json:"transactions"`
	Dropped      int                 `json:"dropped"`
	DropReasons  map[string]int      `json:"drop_reasons,omitempty"`
}

// fieldAliases lists accepted raw keys per canonical field, in priority order.
var fieldAliases = map[string][]string{
	"id":             {"id", "transaction_id", "deal_id"},
	"price":          {"price", "rent", "amount", "deal_amount", "monthly_rent"},
	"area":           {"area", "size", "sqm", "built_area", "area_sqm"},
	"street":         {"street", "street_name"},
	"house_number":   {"house_number", "number", "house_no"},
	"city":           {"city", "town"},
	"neighborhood":   {"neighborhood", "neighbourhood", "district"},
	"date":           {"date", "transaction_date", "deal_date", "sale_date"},
	"rooms":          {"rooms", "room_count"},
	"floor":          {"floor", "floor_number"},
	"lat":            {"lat", "latitude"},
	"lon":            {"lon", "lng", "longitude"},
	"year_built":     {"year_built", "build_year", "construction_year"},
	"condition":      {"condition"},
	"building_class": {"building_class", "class", "grade"},
	"amenities":      {"amenities", "features"},
	"source":         {"source"},
	"reliability":    {"reliability", "source_quality"},
}

// idNamespace seeds deterministic IDs for rows that carry none.
var idNamespace = uuid.MustParse("6f1c3a52-7d1e-4f3b-9a0c-2b7f4c1e8d90")

var multiSpace = regexp.MustCompile(`\s+`)

var unitSuffix = regexp.MustCompile(`(?i)\s*(m2|m²|sqm|sq\.?\s?m|sqft|sq\.?\s?ft)\s*$`)

// currencyJunk matches the currency symbols and spacing ParseNumber ignores.
var currencyJunk = regexp.MustCompile(`[\s$€£₪¥]`)

// groupedNumber is a number with comma thousands separators, e.g. 1,250,000.50.
var groupedNumber = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

var plainNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// Normalize validates and canonicalizes raw records. Invalid rows are dropped
// and counted, never returned as errors. The same input always produces the
// same output.
func Normalize(raw []model.RawRecord) Result {
	res := Result{
		Transactions: make([]model.Transaction, 0, len(raw)),
		DropReasons:  map[string]int{},
	}

	for _, rec := range raw {
		tx, reason := normalizeOne(lowerKeys(rec))
		if reason != "" {
			res.Dropped++
			res.DropReasons[reason]++
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}

	if len(res.DropReasons) == 0 {
		res.DropReasons = nil
	}

	zap.L().Info("normalize: records processed",
		zap.Int("input", len(raw)),
		zap.Int("kept", len(res.Transactions)),
		zap.Int("dropped", res.Dropped),
		zap.Any("drop_reasons", res.DropReasons),
	)

	return res
}

func normalizeOne(rec map[string]any) (model.Transaction, string) {
	var tx model.Transaction

	price, ok, err := number(rec, "price")
	if !ok || err != nil || price <= 0 {
		return tx, ReasonInvalidPrice
	}
	area, ok, err := number(rec, "area")
	if !ok || err != nil || area <= 0 {
		return tx, ReasonInvalidArea
	}
	date, err := parseDate(text(rec, "date"))
	if err != nil {
		return tx, ReasonInvalidDate
	}

	tx.Price = price
	tx.Area = area
	tx.PricePerUnitArea = price / area
	tx.Date = date
	tx.Street = Text(text(rec, "street"))
	tx.HouseNumber = Text(text(rec, "house_number"))
	tx.City = Text(text(rec, "city"))
	tx.Neighborhood = Text(text(rec, "neighborhood"))
	tx.Condition = strings.ToLower(Text(text(rec, "condition")))
	tx.BuildingClass = strings.ToUpper(Text(text(rec, "building_class")))
	tx.Source = Text(text(rec, "source"))
	tx.Amenities = amenities(lookup(rec, "amenities"))

	if tx.Rooms, err = optionalNumber(rec, "rooms"); err != nil || (tx.Rooms != nil && *tx.Rooms < 0) {
		return tx, ReasonInvalidOptional
	}
	if tx.Floor, err = optionalInt(rec, "floor"); err != nil {
		return tx, ReasonInvalidOptional
	}
	if tx.YearBuilt, err = optionalInt(rec, "year_built"); err != nil {
		return tx, ReasonInvalidOptional
	}
	if tx.Lat, err = optionalNumber(rec, "lat"); err != nil {
		return tx, ReasonInvalidOptional
	}
	if tx.Lon, err = optionalNumber(rec, "lon"); err != nil {
		return tx, ReasonInvalidOptional
	}
	if tx.Reliability, err = optionalNumber(rec, "reliability"); err != nil {
		return tx, ReasonInvalidOptional
	}
	if tx.Reliability != nil && (*tx.Reliability < 0 || *tx.Reliability > 1) {
		return tx, ReasonInvalidOptional
	}

	tx.ID = Text(text(rec, "id"))
	if tx.ID == "" {
		tx.ID = contentID(tx)
	}
	return tx, ""
}

// Text NFC-normalizes s, trims it and collapses internal whitespace so that
// values differing only by spacing compare equal.
func Text(s string) string {
	s = norm.NFC.String(s)
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

// contentID derives a stable UUIDv5 from the canonical content fields.
func contentID(tx model.Transaction) string {
	key := strings.Join([]string{
		strings.ToLower(tx.Street),
		strings.ToLower(tx.HouseNumber),
		strings.ToLower(tx.City),
		tx.Date.Format("2006-01-02"),
		strconv.FormatFloat(tx.Price, 'f', -1, 64),
		strconv.FormatFloat(tx.Area, 'f', -1, 64),
	}, "|")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

func lowerKeys(rec model.RawRecord) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// lookup returns the first non-empty value among the aliases of field.
func lookup(rec map[string]any, field string) any {
	for _, key := range fieldAliases[field] {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func text(rec map[string]any, field string) string {
	switch v := lookup(rec, field).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// number parses a required numeric field. ok is false when the field is absent.
func number(rec map[string]any, field string) (float64, bool, error) {
	v := lookup(rec, field)
	if v == nil {
		return 0, false, nil
	}
	f, err := toFloat(v)
	return f, true, err
}

func optionalNumber(rec map[string]any, field string) (*float64, error) {
	f, ok, err := number(rec, field)
	if !ok || err != nil {
		return nil, err
	}
	return &f, nil
}

func optionalInt(rec map[string]any, field string) (*int, error) {
	f, ok, err := number(rec, field)
	if !ok || err != nil {
		return nil, err
	}
	if f != math.Trunc(f) {
		return nil, eris.Errorf("normalize: %s is not an integer: %v", field, f)
	}
	i := int(f)
	return &i, nil
}

// ParseNumber parses a numeric value leniently: comma thousands separators,
// currency symbols and area unit suffixes are ignored. Anything else left
// over (letters, magnitude suffixes like "1.5M", decimal commas) is rejected,
// as are NaN and Inf.
func ParseNumber(s string) (float64, error) {
	cleaned := unitSuffix.ReplaceAllString(strings.TrimSpace(s), "")
	cleaned = currencyJunk.ReplaceAllString(cleaned, "")
	if strings.Contains(cleaned, ",") {
		if !groupedNumber.MatchString(cleaned) {
			return 0, eris.Errorf("normalize: not a number: %q", s)
		}
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	if !plainNumber.MatchString(cleaned) {
		return 0, eris.Errorf("normalize: not a number: %q", s)
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, eris.Errorf("normalize: not a number: %q", s)
	}
	return finite(f)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case interface{ Float64() (float64, error) }: // json.Number
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return finite(f)
	case string:
		return ParseNumber(n)
	default:
		return 0, eris.Errorf("normalize: unsupported numeric type %T", v)
	}
}

func finite(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, eris.Errorf("normalize: non-finite number %v", f)
	}
	return f, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("normalize: unparseable date %q", s)
}

// amenities accepts a list or a comma/semicolon separated string and returns
// a sorted, lowercase, de-duplicated list.
func amenities(v any) []string {
	var parts []string
	switch a := v.(type) {
	case nil:
		return nil
	case string:
		parts = strings.FieldsFunc(a, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	case []string:
		parts = a
	case []any:
		for _, item := range a {
			parts = append(parts, fmt.Sprint(item))
		}
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(parts))
	var out []string
	for _, p := range parts {
		p = strings.ToLower(Text(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

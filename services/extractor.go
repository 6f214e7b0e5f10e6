package services

import (
	"regexp"
	"strings"
	"unicode"

	"car-listing-scraper/models"
	"car-listing-scraper/utils"
)

// Each field is an independent scan over the same normalised text; the first
// left-to-right match wins. Scans can overlap (a price digit run may look like
// a year), which is accepted.
var (
	yearRegexp         = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	kilometersRegexp   = regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d+)?\s?(?:k|l|lakh)?\s?kms?\b`)
	fuelTypeRegexp     = regexp.MustCompile(`(?i)\b(?:petrol|diesel|cng|electric|hybrid)\b`)
	transmissionRegexp = regexp.MustCompile(`(?i)\b(?:automatic|manual|auto)\b`)
	priceRegexp        = regexp.MustCompile(`(?i)(?:₹|\brs\.?|\binr)\s?\d[\d,]*(?:\.\d+)?\s?(?:lakhs?|crores?|cr|million)\b`)
)

// nameTrim strips separators cards put between the title and attributes.
const nameTrim = " |•·-,:"

// Extract parses one listing's visible text into a record. It never fails:
// fields without a match are left empty, and CarName falls back to the whole
// text when no title boundary is found.
func Extract(raw string) models.ListingRecord {
	text := normaliseText(raw)

	rec := models.ListingRecord{
		Year:             yearRegexp.FindString(text),
		KilometersDriven: kilometersRegexp.FindString(text),
		FuelType:         fuelTypeRegexp.FindString(text),
		Transmission:     transmissionRegexp.FindString(text),
		Price:            priceRegexp.FindString(text),
	}
	rec.CarName = carName(text)
	return rec
}

// carName takes the span before the first attribute token, minus a leading
// model year.
func carName(text string) string {
	end := -1
	for _, re := range []*regexp.Regexp{kilometersRegexp, fuelTypeRegexp, transmissionRegexp, priceRegexp} {
		if loc := re.FindStringIndex(text); loc != nil && (end < 0 || loc[0] < end) {
			end = loc[0]
		}
	}
	if end < 0 {
		return text
	}

	span := text[:end]
	if loc := yearRegexp.FindStringIndex(span); loc != nil && loc[0] == 0 {
		span = span[loc[1]:]
	}
	span = strings.Trim(span, nameTrim)
	if span == "" {
		return text
	}
	return span
}

// Extractor turns captured listings into records, one per listing.
type Extractor struct {
	logger *utils.Logger
}

// NewExtractor creates an Extractor with the given logger.
func NewExtractor(logger *utils.Logger) *Extractor {
	return &Extractor{logger: logger.With("extractor")}
}

// ExtractAll preserves order and never drops a listing, even one where
// nothing but the name could be recovered.
func (e *Extractor) ExtractAll(raw []*models.RawListing) []models.ListingRecord {
	out := make([]models.ListingRecord, 0, len(raw))
	bare := 0
	for _, r := range raw {
		rec := Extract(r.Text)
		if rec.Year == "" && rec.KilometersDriven == "" && rec.FuelType == "" &&
			rec.Transmission == "" && rec.Price == "" {
			bare++
			e.logger.Debug("listing %d has no attributes: %q", r.Index, rec.CarName)
		}
		out = append(out, rec)
	}

	e.logger.Info("Extracted %d records (%d with name only)", len(out), bare)
	return out
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

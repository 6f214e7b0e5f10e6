package storage

import "car-listing-scraper/models"

// RecordWriter is the interface any export backend must satisfy. Records are
// written in the order given.
type RecordWriter interface {
	Write(records []models.ListingRecord) error
	Close() error
}

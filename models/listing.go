package models

import "time"

// RawListing holds the visible text of one listing element as captured from
// the browser. It is extracted into a ListingRecord after loading converges.
type RawListing struct {
	Index      int
	Text       string
	CapturedAt time.Time
}

// RecordHeader is the column order every exporter must use.
var RecordHeader = []string{
	"car_name", "year", "kilometers_driven", "fuel_type", "transmission", "price",
}

// ListingRecord is one structured extraction result. An empty string marks an
// absent field; CarName is always derived from the raw text.
type ListingRecord struct {
	CarName          string
	Year             string
	KilometersDriven string
	FuelType         string
	Transmission     string
	Price            string
}

// Row returns the record's fields in RecordHeader order.
func (r ListingRecord) Row() []string {
	return []string{r.CarName, r.Year, r.KilometersDriven, r.FuelType, r.Transmission, r.Price}
}

// RunReport summarises one scrape run for the operator.
type RunReport struct {
	TotalRecords  int
	Revealed      int
	Iterations    int
	Partial       bool
	FailureReason string

	ByFuelType     map[string]int
	ByTransmission map[string]int

	MissingYear       int
	MissingKilometers int
	MissingFuelType   int
	MissingPrice      int

	YearMin string
	YearMax string
}

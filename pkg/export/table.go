package export

import "time"

// Table is a rendered-agnostic tabular report.
type Table struct {
	Title       string
	Subtitle    string
	Headers     []string
	Rows        [][]string
	GeneratedAt time.Time
}

// Exporter renders a table into a downloadable document.
type Exporter interface {
	Render(Table) ([]byte, error)
	ContentType() string
	Extension() string
}

package dto

// ReportFormat selects the export encoding.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportFile is a rendered class report.
type ReportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

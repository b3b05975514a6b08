package excel

// ExcelData is the raw string grid of a spreadsheet or CSV file
type ExcelData struct {
	Headers []string   // Column headers
	Rows    [][]string // Data rows, one cell per header
}

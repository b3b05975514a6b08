package excel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gocfa/domain/core"
	"gocfa/domain/dataset"
	"gocfa/internal"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	config   ExcelConfig
	fileType string // "xlsx" or "csv"
	missing  map[string]bool
	log      *internal.Logger
}

// NewDataReader creates a reader with default settings
func NewDataReader(filePath string) *DataReader {
	return NewDataReaderWithConfig(DefaultExcelConfig(filePath))
}

// NewDataReaderWithConfig creates a reader that handles both Excel and CSV files
func NewDataReaderWithConfig(config ExcelConfig) *DataReader {
	ext := strings.ToLower(filepath.Ext(config.FilePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	tokens := config.MissingTokens
	if tokens == nil {
		tokens = DefaultMissingTokens
	}
	missing := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		missing[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return &DataReader{config: config, fileType: fileType, missing: missing, log: internal.DefaultLogger}
}

// WithLogger replaces the reader's logger.
func (r *DataReader) WithLogger(l *internal.Logger) *DataReader {
	r.log = l
	return r
}

// ReadTable loads the file into a ResponseTable. Every failure is a
// DataLoadError.
func (r *DataReader) ReadTable() (*dataset.ResponseTable, error) {
	data, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	table, err := r.toTable(data)
	if err != nil {
		return nil, core.NewDataLoadError(r.config.FilePath, err)
	}
	return table, nil
}

// ReadData reads data from Excel or CSV files into a raw string grid
func (r *DataReader) ReadData() (*ExcelData, error) {
	r.log.Debug("[DataReader] Starting to read %s file: %s", r.fileType, r.config.FilePath)

	if _, err := os.Stat(r.config.FilePath); err != nil {
		return nil, core.NewDataLoadError(r.config.FilePath, err)
	}

	var (
		data *ExcelData
		err  error
	)
	switch r.fileType {
	case "csv":
		data, err = r.readCSVData()
	case "xlsx":
		data, err = r.readExcelData()
	default:
		err = fmt.Errorf("unsupported file type: %s", r.fileType)
	}
	if err != nil {
		return nil, core.NewDataLoadError(r.config.FilePath, err)
	}
	return data, nil
}

// readExcelData reads the configured sheet, falling back to the first one
func (r *DataReader) readExcelData() (*ExcelData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]
	if slices.Contains(sheets, r.config.Sheet) {
		sheet = r.config.Sheet
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheet, err)
	}
	r.log.Debug("[DataReader] %s read in %.2fms (%d rows)", sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, errors.New("file must have a header row and at least one data row")
	}
	// GetRows drops trailing empty cells, so short rows are padded; long
	// rows are ragged.
	width := len(rows[0])
	for i := 1; i < len(rows); i++ {
		switch {
		case len(rows[i]) > width:
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", core.ErrRaggedRow, i+1, len(rows[i]), width)
		case len(rows[i]) < width:
			rows[i] = append(rows[i], make([]string, width-len(rows[i]))...)
		}
	}
	return r.processRows(rows)
}

// readCSVData reads CSV data; every record must match the header width
func (r *DataReader) readCSVData() (*ExcelData, error) {
	file, err := os.Open(r.config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 0
	reader.TrimLeadingSpace = true
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		if errors.Is(err, csv.ErrFieldCount) {
			return nil, fmt.Errorf("%w: %v", core.ErrRaggedRow, err)
		}
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	r.log.Debug("[DataReader] CSV file read in %.2fms (%d rows)", float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, errors.New("file must have a header row and at least one data row")
	}
	return r.processRows(rows)
}

// processRows trims headers and cells
func (r *DataReader) processRows(rows [][]string) (*ExcelData, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
		if headers[i] == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
	}

	dataRows := make([][]string, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := make([]string, len(headers))
		for j := range headers {
			row[j] = strings.TrimSpace(rows[i][j])
		}
		dataRows = append(dataRows, row)
	}

	r.log.Info("[DataReader] %s file processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), len(headers), len(dataRows))

	return &ExcelData{
		Headers: headers,
		Rows:    dataRows,
	}, nil
}

// IsMissing reports whether a cell is one of the missing tokens.
func (r *DataReader) IsMissing(cell string) bool {
	return r.missing[strings.ToLower(strings.TrimSpace(cell))]
}

// toTable converts columns to float64 with NaN for missing cells. Columns
// holding text become label columns unless they are required numeric.
func (r *DataReader) toTable(data *ExcelData) (*dataset.ResponseTable, error) {
	for _, name := range r.config.NumericColumns {
		if !slices.Contains(data.Headers, name) {
			return nil, fmt.Errorf("%w: %q", core.ErrMissingColumn, name)
		}
	}

	cols := make([]dataset.Column, 0, len(data.Headers))
	for j, name := range data.Headers {
		required := slices.Contains(r.config.NumericColumns, name)
		values := make([]float64, len(data.Rows))
		var textRow = -1
		for i, row := range data.Rows {
			cell := row[j]
			if r.IsMissing(cell) {
				values[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				textRow = i
				break
			}
			values[i] = v
		}
		if textRow < 0 {
			cols = append(cols, dataset.Column{Name: name, Values: values})
			continue
		}
		if required {
			return nil, fmt.Errorf("%w: row %d, column %q: %q", core.ErrBadCell, textRow+2, name, data.Rows[textRow][j])
		}
		labels := make([]string, len(data.Rows))
		for i, row := range data.Rows {
			if !r.IsMissing(row[j]) {
				labels[i] = row[j]
			}
		}
		cols = append(cols, dataset.Column{Name: name, Labels: labels})
	}
	return dataset.NewResponseTable(r.config.FilePath, cols)
}

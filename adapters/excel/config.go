package excel

// DefaultMissingTokens are the cell values read as missing, compared
// case-insensitively after trimming.
var DefaultMissingTokens = []string{"", "NA", "NaN", ".", "null"}

// ExcelConfig holds configuration for a spreadsheet data source
type ExcelConfig struct {
	FilePath      string   `json:"file_path" yaml:"file_path" mapstructure:"file_path"`
	Sheet         string   `json:"sheet" yaml:"sheet" mapstructure:"sheet"`
	MissingTokens []string `json:"missing_tokens" yaml:"missing_tokens" mapstructure:"missing_tokens"`
	// NumericColumns must parse as numbers; a text cell in one of them
	// fails the load. Other columns with text become label columns.
	NumericColumns []string `json:"numeric_columns" yaml:"numeric_columns" mapstructure:"numeric_columns"`
}

// DefaultExcelConfig returns sensible defaults for spreadsheet processing
func DefaultExcelConfig(path string) ExcelConfig {
	return ExcelConfig{
		FilePath:      path,
		Sheet:         "Sheet1",
		MissingTokens: DefaultMissingTokens,
	}
}

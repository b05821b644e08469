package sheets

// SpreadsheetRef identifies a spreadsheet created or used by the client.
type SpreadsheetRef struct {
	ID    string `json:"spreadsheet_id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// RowLocation identifies where an appended row landed.
type RowLocation struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range"`
}

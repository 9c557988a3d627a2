package dto

// Entity is a labelled span of the analysed text. Start and End are rune
// offsets, or -1 when the span could not be located.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// AnalysisResult is stored verbatim as the document's raw result.
type AnalysisResult struct {
	Entities   []Entity `json:"entities"`
	Language   string   `json:"language"`
	TextLength int      `json:"text_length"`
}

package dto

type Observation struct {
	BiomarkerName  string  `json:"biomarker_name"`
	BiomarkerCode  string  `json:"biomarker_code"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit"`
	ReferenceRange string  `json:"reference_range"`
}

type NormalizedResult struct {
	FirstName    string        `json:"first_name"`
	SecondName   string        `json:"second_name"`
	DOB          string        `json:"DOB"`
	Language     string        `json:"language"`
	Common       string        `json:"common"`
	Observations []Observation `json:"observations"`
}

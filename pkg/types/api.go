package types

// PredictResponse is returned by POST /predict.
type PredictResponse struct {
	// Label of the highest-scoring class.
	// example: dog
	Class string `json:"class" example:"dog"`
	// Score of the winning class.
	// example: 0.7
	Confidence float32 `json:"confidence" example:"0.7"`
	// Every class score, index-aligned with the label table.
	// example: [0.1,0.7,0.05,0.15]
	AllScores []float32 `json:"all_scores"`
	// Best classes first, present only when top_k was requested.
	Top []RankedClass `json:"top,omitempty"`
}

// RankedClass is one entry of a top-k list.
type RankedClass struct {
	// example: dog
	Class string `json:"class" example:"dog"`
	// Position in the label table.
	// example: 1
	Index int `json:"index" example:"1"`
	// example: 0.7
	Score float32 `json:"score" example:"0.7"`
}

// PredictQuery holds the optional query parameters of POST /predict.
type PredictQuery struct {
	// Number of ranked classes to include; 0 omits the list.
	TopK int `schema:"top_k"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid image: image: unknown format
	Error string `json:"error" example:"invalid image: image: unknown format"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

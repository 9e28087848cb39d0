// Package models holds the wire shapes exchanged with the retina analysis
// pipeline. Field names match the pipeline's JSON contract and must not drift.
package models

// EmployeeCandidate pairs an employee with the reference document the
// pipeline compares against.
type EmployeeCandidate struct {
	EmployeeID string `json:"employeeId"`
	DocumentID string `json:"documentId"`
}

// ValidationCommand asks the pipeline to match an uploaded image against a
// candidate set. MessageID is the correlation id echoed in the response.
type ValidationCommand struct {
	ImagePath           string              `json:"image_path"`
	Employees           []EmployeeCandidate `json:"employees"`
	MessageID           string              `json:"messageId"`
	OriginatingInstance string              `json:"originatingInstance,omitempty"`
}

// IndexingCommand asks the pipeline to extract and index features for a
// newly enrolled retina photo. Fire-and-forget; the response arrives on the
// indexing response queue.
type IndexingCommand struct {
	ImagePath  string `json:"image_path"`
	EmployeeID string `json:"employeeId"`
	ImgID      string `json:"imgId"`
}

// ValidationResponse is the pipeline's answer to a ValidationCommand.
// Status "success" with a non-empty MatchingEmployeeID is a match.
type ValidationResponse struct {
	Status             string  `json:"status"`
	MatchingEmployeeID *string `json:"matchingEmployeeId"`
	Similarity         float64 `json:"similarity"`
	MessageID          string  `json:"messageId"`
	Message            string  `json:"message,omitempty"`
}

// IndexingResponse reports the stored document id for an enrolled photo.
type IndexingResponse struct {
	Status        string `json:"status"`
	ID            string `json:"id"`
	EmployeeID    string `json:"employeeId"`
	OriginalImage string `json:"originalImage"`
	ImgID         string `json:"imgId"`
}

// StatusSuccess is the pipeline's success marker.
const StatusSuccess = "success"

// Matched reports whether the response names a matching employee.
func (r ValidationResponse) Matched() bool {
	return r.Status == StatusSuccess && r.MatchingEmployeeID != nil && *r.MatchingEmployeeID != ""
}

package models

import "time"

// RetinaImage is one enrolled retina photo. ExternalID is the document id
// assigned by the analysis pipeline once indexing completes; empty until the
// indexing response arrives.
type RetinaImage struct {
	ID             string
	OrganizationID string
	EmployeeID     string
	Path           string
	ExternalID     string
	CreatedAt      time.Time
}

// Candidate pairs an employee with the indexed reference document used for
// validation. Only employees whose photos finished indexing have a
// DocumentID; the pipeline tolerates an empty one by skipping the candidate.
type Candidate struct {
	EmployeeID string
	DocumentID string
}

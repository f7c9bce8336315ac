package request

import "errors"

type StartMonitoringRequest struct {
	AttemptID string `json:"attempt_id"`
	SubjectID string `json:"subject_id"`
}

func (r *StartMonitoringRequest) Validate() error {
	if r.AttemptID == "" {
		return errors.New("attempt_id is required")
	}
	if r.SubjectID == "" {
		return errors.New("subject_id is required")
	}
	return nil
}

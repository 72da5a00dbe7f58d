package job

import "github.com/ahmethakanbesel/cartoon-api/internal/apperror"

type SubmitRequest struct {
	Image []byte
}

func (r SubmitRequest) Validate() *apperror.AppError {
	if len(r.Image) == 0 {
		return apperror.New(apperror.BadRequest, "no image received")
	}
	return nil
}

type GetJobRequest struct {
	ID string
}

func (r GetJobRequest) Validate() *apperror.AppError {
	if r.ID == "" {
		return apperror.New(apperror.BadRequest, "invalid job id")
	}
	return nil
}

type SubmitResponse struct {
	JobID string `json:"jobId"`
}

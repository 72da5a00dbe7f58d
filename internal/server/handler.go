package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ahmethakanbesel/cartoon-api/internal/apperror"
	"github.com/ahmethakanbesel/cartoon-api/internal/job"
)

const imageField = "image"

type handler struct {
	jobSvc         *job.Service
	maxUploadBytes int64
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) convert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	image, err := h.readImage(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	id, err := h.jobSvc.Submit(r.Context(), job.SubmitRequest{Image: image})
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job.SubmitResponse{JobID: id})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobSvc.Get(r.Context(), job.GetJobRequest{ID: r.PathValue("jobId")})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// readImage returns the bytes of the multipart "image" field.
func (h *handler) readImage(r *http.Request) ([]byte, error) {
	noImage := apperror.New(apperror.BadRequest, "no image received")

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		if tooLarge(err) {
			return nil, apperror.New(apperror.TooLarge,
				fmt.Sprintf("image exceeds the %d MB limit", h.maxUploadBytes>>20))
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, noImage
		}
		return nil, apperror.New(apperror.BadRequest, "invalid multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile(imageField)
	if err != nil {
		return nil, noImage
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

func writeAppError(w http.ResponseWriter, err error) {
	if ae, ok := apperror.As(err); ok {
		writeError(w, ae.HTTPStatus(), ae.Message())
		return
	}
	slog.Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

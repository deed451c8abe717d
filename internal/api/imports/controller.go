// Package imports exposes the archive import endpoints: submitting zips
// and polling job status.
package imports

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/gramvault/gramvault/internal/importer"
	"github.com/gramvault/gramvault/pkg/logger"
)

var log = logger.Get("ImportsController")

type (
	// Service is the slice of the import service this controller consumes.
	Service interface {
		StartImport([]importer.ArchiveUpload) (uuid.UUID, error)
		GetJob(uuid.UUID) (importer.JobSnapshot, bool)
		AllJobs() []importer.JobSnapshot
	}

	SubmitResponse struct {
		Ok    bool      `json:"ok"`
		JobID uuid.UUID `json:"jobId"`
	}

	ErrorResponse struct {
		Error string `json:"error"`
	}

	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.submit)
	eg.GET("/", controller.list)
	eg.GET("/status/", controller.status)
}

// submit accepts one or more zip archives under the multipart field
// 'files', stages them and returns the id of the queued job. The upload
// only fails synchronously; once a job id is returned, all further
// outcomes are visible via status polling.
func (controller *Controller) submit(ec echo.Context) error {
	form, err := ec.MultipartForm()
	if err != nil {
		return ec.JSON(http.StatusBadRequest, ErrorResponse{Error: "request is not a valid multipart form"})
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		return ec.JSON(http.StatusBadRequest, ErrorResponse{Error: "no files provided"})
	}

	uploads := make([]importer.ArchiveUpload, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		file, err := header.Open()
		if err != nil {
			return ec.JSON(http.StatusBadRequest, ErrorResponse{Error: "could not read uploaded file " + header.Filename})
		}
		defer file.Close()

		uploads = append(uploads, importer.ArchiveUpload{Filename: header.Filename, Content: file})
	}

	jobID, err := controller.service.StartImport(uploads)
	if err != nil {
		return ec.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	log.Infof("Accepted import submission of %d file(s) as job %s\n", len(fileHeaders), jobID)
	return ec.JSON(http.StatusOK, SubmitResponse{Ok: true, JobID: jobID})
}

// status returns the snapshot of the job named by the 'job' query param.
func (controller *Controller) status(ec echo.Context) error {
	jobParam := ec.QueryParam("job")
	if jobParam == "" {
		return ec.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing required query param 'job'"})
	}

	jobID, err := uuid.Parse(jobParam)
	if err != nil {
		return ec.JSON(http.StatusBadRequest, ErrorResponse{Error: "job id is not a valid UUID"})
	}

	snapshot, ok := controller.service.GetJob(jobID)
	if !ok {
		return ec.JSON(http.StatusNotFound, ErrorResponse{Error: "no import job with that id"})
	}

	return ec.JSON(http.StatusOK, snapshot)
}

// list returns every known job, oldest first.
func (controller *Controller) list(ec echo.Context) error {
	return ec.JSON(http.StatusOK, controller.service.AllJobs())
}

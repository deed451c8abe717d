package imports_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gramvault/gramvault/internal/api/imports"
	"github.com/gramvault/gramvault/internal/importer"
)

type stubService struct {
	jobs      map[uuid.UUID]importer.JobSnapshot
	started   int
	startErr  error
	lastCount int
}

func (stub *stubService) StartImport(uploads []importer.ArchiveUpload) (uuid.UUID, error) {
	if stub.startErr != nil {
		return uuid.Nil, stub.startErr
	}

	stub.started++
	stub.lastCount = len(uploads)
	id := uuid.New()
	stub.jobs[id] = importer.JobSnapshot{ID: id, Stage: importer.StageQueued}
	return id, nil
}

func (stub *stubService) GetJob(id uuid.UUID) (importer.JobSnapshot, bool) {
	snapshot, ok := stub.jobs[id]
	return snapshot, ok
}

func (stub *stubService) AllJobs() []importer.JobSnapshot {
	all := make([]importer.JobSnapshot, 0, len(stub.jobs))
	for _, snapshot := range stub.jobs {
		all = append(all, snapshot)
	}
	return all
}

func newTestServer(stub *stubService) *echo.Echo {
	ec := echo.New()
	imports.New(stub).SetRoutes(ec.Group("/instagram-import"))
	return ec
}

func newStub() *stubService {
	return &stubService{jobs: make(map[uuid.UUID]importer.JobSnapshot)}
}

func multipartBody(t *testing.T, fieldFiles map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for filename, content := range fieldFiles {
		part, err := writer.CreateFormFile("files", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestSubmitAcceptsZipUploads(t *testing.T) {
	stub := newStub()
	server := newTestServer(stub)

	body, contentType := multipartBody(t, map[string]string{"export.zip": "zip bytes"})
	request := httptest.NewRequest(http.MethodPost, "/instagram-import/", body)
	request.Header.Set(echo.HeaderContentType, contentType)
	recorder := httptest.NewRecorder()

	server.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response imports.SubmitResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.True(t, response.Ok)
	assert.NotEqual(t, uuid.Nil, response.JobID)
	assert.Equal(t, 1, stub.started)
	assert.Equal(t, 1, stub.lastCount)
}

func TestSubmitRejectsEmptyForm(t *testing.T) {
	server := newTestServer(newStub())

	body, contentType := multipartBody(t, nil)
	request := httptest.NewRequest(http.MethodPost, "/instagram-import/", body)
	request.Header.Set(echo.HeaderContentType, contentType)
	recorder := httptest.NewRecorder()

	server.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "no files provided")
}

func TestStatusRequiresJobParam(t *testing.T) {
	server := newTestServer(newStub())

	request := httptest.NewRequest(http.MethodGet, "/instagram-import/status/", nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestStatusRejectsMalformedID(t *testing.T) {
	server := newTestServer(newStub())

	request := httptest.NewRequest(http.MethodGet, "/instagram-import/status/?job=not-a-uuid", nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestStatusUnknownJobIs404(t *testing.T) {
	server := newTestServer(newStub())

	request := httptest.NewRequest(http.MethodGet, "/instagram-import/status/?job="+uuid.NewString(), nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestStatusReturnsSnapshot(t *testing.T) {
	stub := newStub()
	id := uuid.New()
	stub.jobs[id] = importer.JobSnapshot{ID: id, Stage: importer.StageProcessing, Percent: 42}
	server := newTestServer(stub)

	request := httptest.NewRequest(http.MethodGet, "/instagram-import/status/?job="+id.String(), nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var snapshot importer.JobSnapshot
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snapshot))
	assert.Equal(t, id, snapshot.ID)
	assert.Equal(t, importer.StageProcessing, snapshot.Stage)
	assert.Equal(t, 42, snapshot.Percent)
}

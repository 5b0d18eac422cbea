package routes

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/materials/cmd/materials/container"
	"github.com/lyzr/materials/cmd/materials/models"
	"github.com/lyzr/materials/cmd/materials/repository"
	"github.com/lyzr/materials/cmd/materials/service"
	"github.com/lyzr/materials/common/blobstore"
	"github.com/lyzr/materials/common/bootstrap"
	"github.com/lyzr/materials/common/config"
	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/metrics"
	"github.com/lyzr/materials/common/progress"
	"github.com/lyzr/materials/common/transcoder"
	"github.com/lyzr/materials/common/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTranscoder struct{}

func (stubTranscoder) Thumbnail(_ context.Context, _, out string) error {
	return os.WriteFile(out, []byte("jpeg"), 0o644)
}

func (stubTranscoder) TranscodeStream(_ context.Context, _, outDir string) <-chan transcoder.SliceEvent {
	ch := make(chan transcoder.SliceEvent, 2)
	ch <- transcoder.SliceWip{Progress: transcoder.Progress{OutTime: time.Second, Duration: 2 * time.Second}}
	if err := transcoder.WriteMasterPlaylist(outDir, transcoder.DefaultRungs()); err != nil {
		ch <- transcoder.SliceErr{Err: err}
	} else {
		ch <- transcoder.SliceOk{}
	}
	close(ch)
	return ch
}

type memoryRepo struct {
	mu        sync.Mutex
	materials map[string]*models.Material
}

func (r *memoryRepo) Save(_ context.Context, m *models.Material, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.Tags = tags
	cp := *m
	r.materials[m.ID] = &cp
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id string) (*models.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.materials[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrMaterialNotFound, id)
	}
	cp := *m
	return &cp, nil
}

func (r *memoryRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.materials[id]
	return ok, nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.materials, id)
	return nil
}

func (r *memoryRepo) Update(_ context.Context, m *models.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.materials[m.ID] = &cp
	return nil
}

func (r *memoryRepo) Search(_ context.Context, _ models.SearchCondition) ([]*models.Material, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Material, 0, len(r.materials))
	for _, m := range r.materials {
		cp := *m
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func newTestServer(t *testing.T, policy string) *echo.Echo {
	t.Helper()
	log := logger.Discard()

	cfg, err := config.Load("materials-test")
	require.NoError(t, err)
	cfg.Service.PublicBaseURL = "http://media.test"
	cfg.Ingest.HeartbeatInterval = time.Minute

	videos, err := blobstore.NewLocalStore(t.TempDir(), cfg.Storage.VideoMount, blobstore.ModeContent, log)
	require.NoError(t, err)
	images, err := blobstore.NewLocalStore(t.TempDir(), cfg.Storage.ImageMount, blobstore.ModeGenerated, log)
	require.NoError(t, err)

	repo := &memoryRepo{materials: map[string]*models.Material{}}
	m := metrics.New()
	pool := worker.NewPool(2, log)
	p, err := service.NewUploadPolicy(policy, 1<<20)
	require.NoError(t, err)

	c := &container.Container{
		Components: &bootstrap.Components{Config: cfg, Logger: log, Metrics: m},
		Videos:     videos,
		Images:     images,
		Pool:       pool,
		Policy:     p,
		IngestService: service.NewIngestService(videos, stubTranscoder{}, repo,
			service.NewMemoryInflightTracker(), nil, pool, m, 8, log),
		MaterialService: service.NewMaterialService(videos, images, repo, nil, log),
		ImageService:    service.NewImageService(images, repo, pool, m, log),
	}

	e := echo.New()
	RegisterMaterialRoutes(e, c)
	RegisterStorageRoutes(e, c)
	return e
}

func multipartBody(t *testing.T, field, name string, content []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range extra {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func do(e *echo.Echo, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("X-User-ID", "alice")
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func parseSSE(t *testing.T, body string) []progress.Event {
	t.Helper()
	var events []progress.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev progress.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func uploadVideo(t *testing.T, e *echo.Echo, content string) []progress.Event {
	t.Helper()
	body, ct := multipartBody(t, "file", "cat.mp4", []byte(content), map[string]string{"tags": "cats, pets", "desc": "a cat"})
	rec := do(e, http.MethodPost, "/api/v1/materials/video", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	return parseSSE(t, rec.Body.String())
}

func TestVideoUpload_StreamsProgress(t *testing.T) {
	e := newTestServer(t, "")

	events := uploadVideo(t, e, "video bytes")

	require.NotEmpty(t, events)
	pcts := make([]int, len(events))
	for i, ev := range events {
		pcts[i] = ev.Percent
	}
	assert.Equal(t, []int{15, 25, 50, 75, 100}, pcts)
	assert.Equal(t, progress.StageOk, events[len(events)-1].Stage)

	again := uploadVideo(t, e, "video bytes")
	require.Len(t, again, 1)
	assert.Equal(t, progress.StageExisted, again[0].Stage)
	assert.Equal(t, -1, again[0].Percent)
}

func TestVideoUpload_Errors(t *testing.T) {
	t.Run("missing identity", func(t *testing.T) {
		e := newTestServer(t, "")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/materials/video", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		e := newTestServer(t, "")
		body, ct := multipartBody(t, "", "", nil, map[string]string{"tags": "x"})
		rec := do(e, http.MethodPost, "/api/v1/materials/video", body, ct)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, http.StatusBadRequest, decode(t, rec).Code)
	})

	t.Run("policy rejection", func(t *testing.T) {
		e := newTestServer(t, `filename.endsWith(".mp4")`)
		body, ct := multipartBody(t, "file", "virus.exe", []byte("x"), nil)
		rec := do(e, http.MethodPost, "/api/v1/materials/video", body, ct)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, decode(t, rec).Msg, "rejected")
	})
}

func TestMaterialRoutes_Lifecycle(t *testing.T) {
	e := newTestServer(t, "")
	events := uploadVideo(t, e, "lifecycle")
	id := events[0].ID
	target := "/api/v1/materials/" + id

	assert.Equal(t, http.StatusOK, do(e, http.MethodHead, target, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodHead, "/api/v1/materials/missing", nil, "").Code)

	rec := do(e, http.MethodGet, target, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail models.MaterialDetail
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &detail))
	assert.Equal(t, "cat.mp4", detail.Video.Name)
	assert.Equal(t, "a cat", detail.Video.Description)
	assert.Equal(t, []string{"cats", "pets"}, detail.Video.Tags)
	assert.Equal(t, "http://media.test/storage/"+id+"/slice.m3u8", detail.Slice)

	rec = do(e, http.MethodPatch, target, strings.NewReader(`{"name":"renamed"}`), "application/merge-patch+json")
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Material
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &updated))
	assert.Equal(t, "renamed", *updated.Name)

	rec = do(e, http.MethodPatch, target, strings.NewReader(`nope`), "application/merge-patch+json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the progress mirror is disabled in this setup
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, target+"/progress", nil, "").Code)

	rec = do(e, http.MethodDelete, target, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, target, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, 404, env.Code)
	assert.NotEmpty(t, env.Msg)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodDelete, target, nil, "").Code)
}

func TestStorageRoutes_ServeCommittedFiles(t *testing.T) {
	e := newTestServer(t, "")
	id := uploadVideo(t, e, "served bytes")[0].ID

	rec := do(e, http.MethodGet, "/storage/"+id+"/raw", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "served bytes", rec.Body.String())

	rec = do(e, http.MethodGet, "/storage/"+id+"/slice.m3u8", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "#EXTM3U")

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/storage/"+id+"/..%2F..%2Fetc%2Fpasswd", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/storage/unknown/raw", nil, "").Code)
}

func TestImageUpload(t *testing.T) {
	e := newTestServer(t, "")

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 8, 4))))

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, name := range []string{"a.png", "b.png"} {
		fw, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(img.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("tags", "trip"))
	require.NoError(t, w.Close())

	rec := do(e, http.MethodPost, "/api/v1/materials/image", body, w.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var images []models.MaterialImage
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &images))
	require.Len(t, images, 2)
	assert.Equal(t, 8, images[0].Width)
	assert.Equal(t, "http://media.test/storage/images/"+images[0].ID+"/thumbnail.jpeg", images[0].Thumbnail)

	rec = do(e, http.MethodGet, "/api/v1/materials/"+images[1].ID, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchRoute(t *testing.T) {
	e := newTestServer(t, "")
	uploadVideo(t, e, "one")

	rec := do(e, http.MethodPost, "/api/v1/materials/search", strings.NewReader(`{"page":1,"size":10}`), echo.MIMEApplicationJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.PageResult[models.MaterialSummary]
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &page))
	assert.Equal(t, int64(1), page.Total)

	rec = do(e, http.MethodPost, "/api/v1/materials/search", strings.NewReader(`{"type":"audio"}`), echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

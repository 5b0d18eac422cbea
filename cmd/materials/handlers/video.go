package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/materials/cmd/materials/middleware"
	"github.com/lyzr/materials/cmd/materials/service"
	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/progress"
)

// VideoHandler accepts video uploads and streams ingestion progress
type VideoHandler struct {
	ingest    *service.IngestService
	policy    *service.UploadPolicy
	heartbeat time.Duration
	log       *logger.Logger
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(ingest *service.IngestService, policy *service.UploadPolicy, heartbeat time.Duration, log *logger.Logger) *VideoHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &VideoHandler{
		ingest:    ingest,
		policy:    policy,
		heartbeat: heartbeat,
		log:       log,
	}
}

// Upload stores a video and streams its progress as server-sent events
// POST /api/v1/materials/video
func (h *VideoHandler) Upload(c echo.Context) error {
	username := middleware.GetUsername(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "multipart field \"file\" is required")
	}

	if err := h.policy.Check(service.UploadInfo{
		Size:        fh.Size,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		FileName:    fh.Filename,
		Kind:        "video",
		Creator:     username,
	}); err != nil {
		return respondErr(c, err)
	}

	file, err := fh.Open()
	if err != nil {
		return respondError(c, http.StatusBadRequest, "failed to read upload")
	}

	req := service.IngestRequest{
		File:        file,
		FileName:    fh.Filename,
		Description: optionalForm(c, "desc"),
		Tags:        service.ParseTags(c.FormValue("tags")),
		Creator:     username,
	}

	ctx := c.Request().Context()
	log := h.log.WithContext(ctx)
	bus := h.ingest.NewBus(username)

	done := h.ingest.Track()
	go func() {
		defer done()
		defer file.Close()
		if err := h.ingest.Ingest(ctx, req, bus); err != nil {
			log.Warn("rejected ingestion", "error", err)
		}
	}()

	return h.stream(c, bus)
}

// stream relays bus events until the ingestion finishes or the client
// leaves, writing a comment line whenever the stream is idle for a
// heartbeat interval
func (h *VideoHandler) stream(c echo.Context, bus *progress.Bus) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-bus.Events():
			if !ok {
				return nil
			}
			if err := progress.WriteSSE(res, ev); err != nil {
				bus.Disconnect()
				return nil
			}
			res.Flush()
			ticker.Reset(h.heartbeat)

		case <-ticker.C:
			if err := progress.WriteSSEComment(res, "heartbeat"); err != nil {
				bus.Disconnect()
				return nil
			}
			res.Flush()

		case <-ctx.Done():
			bus.Disconnect()
			return nil
		}
	}
}

func optionalForm(c echo.Context, name string) *string {
	v := c.FormValue(name)
	if v == "" {
		return nil
	}
	return &v
}

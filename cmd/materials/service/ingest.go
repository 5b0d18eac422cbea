package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/lyzr/materials/cmd/materials/models"
	"github.com/lyzr/materials/common/blobstore"
	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/metrics"
	"github.com/lyzr/materials/common/progress"
	"github.com/lyzr/materials/common/transcoder"
	"github.com/lyzr/materials/common/worker"
)

// Progress checkpoints of a video ingestion
const (
	PercentSaved       = 15
	PercentThumbnailed = 25
	PercentTranscoding = 26
	PercentTranscoded  = 75

	transcodeSpan = PercentTranscoded - PercentTranscoding - 1
)

const (
	thumbnailName = "thumbnail.jpeg"
	kindVideo     = "video"
)

var (
	ErrNoFile    = errors.New("upload has no file")
	ErrNoCreator = errors.New("upload has no creator")
	ErrNoBus     = errors.New("progress bus is required")
)

// IngestRequest is one video upload
type IngestRequest struct {
	File        io.Reader
	FileName    string
	Description *string
	Tags        []string
	Creator     string
}

// IngestService turns an uploaded video into a stored raw file, a
// thumbnail, HLS renditions and a metadata record, reporting progress on a
// bus as it goes
type IngestService struct {
	store      blobstore.Store
	transcoder Transcoder
	repo       MaterialStore
	inflight   InflightTracker
	mirror     *ProgressMirror
	pool       *worker.Pool
	metrics    *metrics.Metrics
	busSize    int
	log        *logger.Logger

	running sync.WaitGroup
}

// NewIngestService creates the orchestrator. mirror may be nil.
func NewIngestService(
	store blobstore.Store,
	tc Transcoder,
	repo MaterialStore,
	inflight InflightTracker,
	mirror *ProgressMirror,
	pool *worker.Pool,
	m *metrics.Metrics,
	busSize int,
	log *logger.Logger,
) *IngestService {
	return &IngestService{
		store:      store,
		transcoder: tc,
		repo:       repo,
		inflight:   inflight,
		mirror:     mirror,
		pool:       pool,
		metrics:    m,
		busSize:    busSize,
		log:        log,
	}
}

// NewBus creates a bus for one of creator's uploads, mirrored to Redis
// when a mirror is configured
func (s *IngestService) NewBus(creator string) *progress.Bus {
	opts := []progress.BusOption{}
	if s.mirror != nil {
		opts = append(opts, progress.WithObserver(s.mirror.Observer(creator)))
	}
	return progress.NewBus(s.busSize, opts...)
}

// Track counts an ingestion as running until done is called. Callers that
// run Ingest on another goroutine call it first so Drain cannot miss them.
func (s *IngestService) Track() (done func()) {
	s.running.Add(1)
	return s.running.Done
}

// Drain waits for running ingestions, including those whose client has
// gone, until ctx is done
func (s *IngestService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ingestions still running: %w", ctx.Err())
	}
}

// ingestion is the state of one Ingest call
type ingestion struct {
	bus     *progress.Bus
	log     *logger.Logger
	metrics *metrics.Metrics
	ctx     context.Context // outlives the request
	dropped bool
}

func (in *ingestion) emit(ev progress.Event) {
	err := in.bus.Emit(in.ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, progress.ErrDisconnected):
		in.metrics.EventDropped()
		if !in.dropped {
			in.dropped = true
			in.log.Info("progress consumer gone, continuing ingestion", "state", ev.Stage, "progress", ev.Percent)
		}
	default:
		in.log.Warn("failed to emit progress", "state", ev.Stage, "error", err)
	}
}

func (in *ingestion) fail(id, stage string, err error) {
	in.log.Error("ingestion failed", "stage", stage, "error", err)
	in.emit(progress.Failed(id, in.bus.Last(), fmt.Errorf("%s: %w", stage, err)))
}

// Ingest stores req.File and derives its artifacts, always closing bus.
// Only malformed requests return an error; failures of individual stages
// end the stream with an error event. Reading the upload is bound to ctx;
// once the bytes are stored the remaining work runs to completion even
// when ctx is cancelled or the consumer disconnects.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest, bus *progress.Bus) error {
	if bus == nil {
		return ErrNoBus
	}
	defer bus.Close()

	s.running.Add(1)
	defer s.running.Done()

	if req.File == nil {
		return ErrNoFile
	}
	if req.Creator == "" {
		return ErrNoCreator
	}
	if req.FileName == "" {
		req.FileName = "no_name"
	}

	done := s.metrics.IngestStarted()
	defer done()

	in := &ingestion{
		bus:     bus,
		log:     s.log.WithContext(ctx).WithCreator(req.Creator).WithFields(map[string]any{"file": req.FileName}),
		metrics: s.metrics,
		ctx:     context.WithoutCancel(ctx),
	}

	start := time.Now()
	saved, err := s.store.Save(ctx, req.File)
	s.metrics.ObserveStage("save", start, err)
	if err != nil {
		in.fail("", "save", err)
		s.metrics.IngestFinished(kindVideo, metrics.OutcomeFailed)
		return nil
	}

	id := saved.ID.String()
	in.log = in.log.WithMaterialID(id)

	if saved.Kind == blobstore.SaveExisted {
		s.resume(in, id, req)
		return nil
	}

	s.metrics.BytesStored(kindVideo, saved.Size)
	in.log.Info("stored new upload", "size", saved.Size)

	release, ok := s.claim(in, id, true)
	if !ok {
		s.existed(in, id)
		return nil
	}
	defer release()

	s.finish(in, id, req, metrics.OutcomeNew)
	return nil
}

// resume handles an upload whose bytes were already committed. If another
// ingestion finished (or is finishing) the identifier the upload is
// reported as a duplicate; bytes left behind by an ingestion that died
// before its metadata commit are picked up and derived again.
func (s *IngestService) resume(in *ingestion, id string, req IngestRequest) {
	committed, err := s.repo.Exists(in.ctx, id)
	if err != nil {
		in.log.Warn("failed to check metadata of existing upload", "error", err)
		s.existed(in, id)
		return
	}
	if committed {
		s.existed(in, id)
		return
	}

	release, ok := s.claim(in, id, false)
	if !ok {
		s.existed(in, id)
		return
	}
	defer release()

	in.log.Warn("found stored upload without metadata, deriving again")
	s.finish(in, id, req, metrics.OutcomeRecovered)
}

// claim makes this ingestion the only one deriving id. It takes the
// inflight marker and then confirms no metadata was committed while the
// marker was held elsewhere. fresh uploads go ahead without a marker when
// the tracker is unavailable; resumed ones back off.
func (s *IngestService) claim(in *ingestion, id string, fresh bool) (release func(), ok bool) {
	release, acquired, err := s.inflight.Acquire(in.ctx, id)
	switch {
	case err != nil:
		in.log.Warn("failed to mark ingestion inflight", "error", err)
		if !fresh {
			return nil, false
		}
		release = func() {}
	case !acquired:
		in.log.Info("another ingestion is deriving this upload")
		return nil, false
	}

	committed, err := s.repo.Exists(in.ctx, id)
	if err != nil {
		in.log.Warn("failed to check metadata after marking inflight", "error", err)
		if fresh {
			return release, true
		}
		release()
		return nil, false
	}
	if committed {
		release()
		return nil, false
	}
	return release, true
}

func (s *IngestService) existed(in *ingestion, id string) {
	in.log.Info("upload already existed")
	in.emit(progress.Existed(id))
	s.metrics.IngestFinished(kindVideo, metrics.OutcomeExisted)
}

// finish runs thumbnail, transcode and metadata stages for a stored upload
func (s *IngestService) finish(in *ingestion, id string, req IngestRequest, outcome string) {
	if err := s.derive(in, id, req); err != nil {
		s.metrics.IngestFinished(kindVideo, metrics.OutcomeFailed)
		return
	}
	in.emit(progress.Ok(id))
	in.log.Info("ingestion complete")
	s.metrics.IngestFinished(kindVideo, outcome)
}

func (s *IngestService) derive(in *ingestion, id string, req IngestRequest) error {
	ctx := in.ctx
	in.emit(progress.Wip(id, PercentSaved))

	bid := blobstore.Identifier(id)
	raw, err := s.store.RawFile(ctx, bid)
	if err != nil {
		in.fail(id, "thumbnail", err)
		return err
	}
	thumb, err := s.store.DerivedFile(ctx, bid, thumbnailName)
	if err != nil {
		in.fail(id, "thumbnail", err)
		return err
	}

	start := time.Now()
	err = s.pool.Do(ctx, "thumbnail", func(ctx context.Context) error {
		return s.transcoder.Thumbnail(ctx, raw, thumb)
	})
	s.metrics.ObserveStage("thumbnail", start, err)
	if err != nil {
		in.fail(id, "thumbnail", err)
		return err
	}
	in.log.Info("saved thumbnail")
	in.emit(progress.Wip(id, PercentThumbnailed))

	start = time.Now()
	err = s.pool.Do(ctx, "transcode", func(ctx context.Context) error {
		return s.transcode(ctx, in, id, raw, filepath.Dir(raw))
	})
	s.metrics.ObserveStage("transcode", start, err)
	if err != nil {
		in.fail(id, "transcode", err)
		return err
	}
	in.log.Info("saved slices")
	in.emit(progress.Wip(id, PercentTranscoded))

	material := models.NewVideo(id, req.FileName, req.Description, req.Creator)
	start = time.Now()
	err = s.repo.Save(ctx, material, req.Tags)
	s.metrics.ObserveStage("metadata", start, err)
	if err != nil {
		in.fail(id, "metadata", err)
		return err
	}
	return nil
}

// transcode forwards encoder progress as wip events in the transcoding band
func (s *IngestService) transcode(ctx context.Context, in *ingestion, id, raw, outDir string) error {
	result := errors.New("transcoder stopped without a result")
	for ev := range s.transcoder.TranscodeStream(ctx, raw, outDir) {
		switch ev := ev.(type) {
		case transcoder.SliceWip:
			last := in.bus.Last()
			if pct := transcodePercent(ev.Progress, last); pct > last {
				in.emit(progress.Wip(id, pct))
			}
		case transcoder.SliceOk:
			result = nil
		case transcoder.SliceErr:
			result = ev.Err
		}
	}
	return result
}

// transcodePercent maps encoder progress into [26,74]. Without a known
// duration each report advances one point.
func transcodePercent(p transcoder.Progress, last int) int {
	pct := last + 1
	if f := p.Fraction(); f >= 0 {
		pct = PercentTranscoding + int(f*transcodeSpan)
	}
	return max(PercentTranscoding, min(pct, PercentTranscoded-1))
}

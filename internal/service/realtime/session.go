package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-transcribe-service/internal/events"
	"speech-transcribe-service/internal/models"
	"speech-transcribe-service/internal/observability/logging"
	"speech-transcribe-service/internal/observability/metrics"
	"speech-transcribe-service/internal/service/audio"
	"speech-transcribe-service/internal/service/stt"
)

var (
	// ErrSessionClosed is returned by commands sent after Run has returned.
	ErrSessionClosed = errors.New("realtime session closed")
	// ErrNotLive is returned by SendAudio while no upstream stream is open.
	ErrNotLive = errors.New("realtime session not live")
)

const (
	updateBuffer  = 256
	publishBuffer = 256
)

// SessionConfig configures a Session.
type SessionConfig struct {
	Provider      string
	FlushInterval time.Duration
	AutoClearLive bool
	Limits        audio.SessionLimits
}

type opKind int

const (
	opStart opKind = iota
	opPause
	opResume
	opMarker
	opStop
	opReset
	opAutoClear
	opSnapshot
	opClose
)

type command struct {
	op    opKind
	label string
	on    bool
	reply chan result
}

type result struct {
	snap Snapshot
	err  error
}

type publishJob struct {
	live  *models.LiveTextEvent
	block *models.BlockEvent
}

// Session owns one Reconciler and the upstream stream feeding it. All
// reconciler access happens on the goroutine running Run; other goroutines
// talk to it through commands.
type Session struct {
	id        string
	bridge    stt.Bridge
	publisher *events.Publisher
	cfg       SessionConfig
	rec       *Reconciler
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	commands chan command
	updates  chan StateDelta
	outbox   chan publishJob
	done     chan struct{}

	mu     sync.RWMutex
	pump   *audio.Pump
	stream stt.Stream

	liveSince time.Time
}

// NewSession creates a session in the idle state. Run starts it.
func NewSession(bridge stt.Bridge, publisher *events.Publisher, cfg SessionConfig) *Session {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 16 * time.Millisecond
	}
	if publisher == nil {
		publisher = events.New(nil)
	}
	id := uuid.New().String()
	return &Session{
		id:        id,
		bridge:    bridge,
		publisher: publisher,
		cfg:       cfg,
		rec:       NewReconciler(id, Options{AutoClearLive: cfg.AutoClearLive}),
		logger:    logging.WithSession(id, cfg.Provider),
		metrics:   metrics.DefaultMetrics,
		commands:  make(chan command, 16),
		updates:   make(chan StateDelta, updateBuffer),
		outbox:    make(chan publishJob, publishBuffer),
		done:      make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Updates delivers every visible state change. It is closed when Run returns.
func (s *Session) Updates() <-chan StateDelta { return s.updates }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run connects upstream and processes events, flushes and commands until ctx
// is cancelled or Close is called. A failed initial connection is returned as
// an stt.SignalingError with the session left stopped.
func (s *Session) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.publishLoop()
	}()
	defer func() {
		close(s.outbox)
		wg.Wait()
		close(s.updates)
		close(s.done)
	}()

	if err := s.connect(ctx); err != nil {
		return err
	}

	var (
		flushTimer *time.Timer
		flushC     <-chan time.Time
	)
	defer func() {
		if flushTimer != nil {
			flushTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.stop()
			return ctx.Err()

		case raw, ok := <-s.events():
			if !ok {
				s.logger.Info().Msg("upstream event channel closed")
				s.stop()
				s.release()
				continue
			}
			d := s.handle(raw)
			if d.FlushPending && flushC == nil {
				flushTimer = time.NewTimer(s.cfg.FlushInterval)
				flushC = flushTimer.C
			}

		case <-flushC:
			flushC = nil
			if d := s.rec.Flush(); d.Changed() {
				s.metrics.RecordFlush()
				s.emit(d)
			}

		case cmd := <-s.commands:
			if cmd.op == opClose {
				s.stop()
				cmd.reply <- result{}
				return nil
			}
			cmd.reply <- s.apply(ctx, cmd)
		}
	}
}

// SendAudio forwards a PCM frame upstream. A breached session limit stops the session.
func (s *Session) SendAudio(ctx context.Context, pcm []byte) error {
	s.mu.RLock()
	pump := s.pump
	s.mu.RUnlock()
	if pump == nil {
		return ErrNotLive
	}

	err := pump.Send(ctx, pcm)
	if errors.Is(err, audio.ErrLimitExceeded) {
		select {
		case s.commands <- command{op: opStop, reply: make(chan result, 1)}:
		default:
		}
	}
	return err
}

// Restart reconnects a stopped or idle session with a cleared state.
func (s *Session) Restart(ctx context.Context) error { return s.do(ctx, command{op: opStart}).err }

// Pause finalizes pending live text and mutes the uplink.
func (s *Session) Pause(ctx context.Context) error { return s.do(ctx, command{op: opPause}).err }

// Resume unmutes the uplink.
func (s *Session) Resume(ctx context.Context) error { return s.do(ctx, command{op: opResume}).err }

// AddMarker appends a marker block.
func (s *Session) AddMarker(ctx context.Context, label string) error {
	return s.do(ctx, command{op: opMarker, label: label}).err
}

// Stop finalizes pending text and releases the upstream stream.
func (s *Session) Stop(ctx context.Context) error { return s.do(ctx, command{op: opStop}).err }

// HardReset clears everything and returns to idle.
func (s *Session) HardReset(ctx context.Context) error { return s.do(ctx, command{op: opReset}).err }

// SetAutoClear toggles clearing live text on completed turns.
func (s *Session) SetAutoClear(ctx context.Context, on bool) error {
	return s.do(ctx, command{op: opAutoClear, on: on}).err
}

// Snapshot returns a copy of the reconciler state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	res := s.do(ctx, command{op: opSnapshot})
	return res.snap, res.err
}

// Close stops the session and ends Run.
func (s *Session) Close(ctx context.Context) error {
	err := s.do(ctx, command{op: opClose}).err
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

func (s *Session) do(ctx context.Context, cmd command) result {
	cmd.reply = make(chan result, 1)
	select {
	case s.commands <- cmd:
	case <-s.done:
		return result{err: ErrSessionClosed}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
	select {
	case res := <-cmd.reply:
		return res
	case <-s.done:
		return result{err: ErrSessionClosed}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
}

func (s *Session) apply(ctx context.Context, cmd command) result {
	var (
		d   StateDelta
		err error
	)
	switch cmd.op {
	case opStart:
		return result{err: s.connect(ctx)}
	case opPause:
		if d, err = s.rec.Pause(); err == nil {
			s.setMuted(true)
		}
	case opResume:
		if d, err = s.rec.Resume(); err == nil {
			s.setMuted(false)
		}
	case opMarker:
		d, err = s.rec.AddMarker(cmd.label)
	case opStop:
		d, err = s.rec.Stop()
	case opReset:
		d, err = s.rec.HardReset()
	case opAutoClear:
		s.rec.SetAutoClear(cmd.on)
	case opSnapshot:
		return result{snap: s.rec.Snapshot()}
	}
	if err != nil {
		return result{err: err}
	}
	s.emit(d)
	if d.Release {
		s.release()
	}
	return result{}
}

// connect moves to connecting, opens the upstream stream and goes live.
func (s *Session) connect(ctx context.Context) error {
	d, err := s.rec.Start()
	if err != nil {
		return err
	}
	s.emit(d)

	stream, err := s.bridge.Connect(ctx)
	if err != nil {
		s.metrics.RecordSignalingError()
		s.logger.Error().Err(err).Msg("upstream connection failed")
		if d, stopErr := s.rec.Stop(); stopErr == nil {
			s.emit(d)
		}
		var se *stt.SignalingError
		if errors.As(err, &se) {
			return err
		}
		return &stt.SignalingError{Status: 502, Message: err.Error()}
	}

	s.mu.Lock()
	s.stream = stream
	s.pump = audio.NewPumpWithLimits(stream, s.id, s.cfg.Limits)
	s.mu.Unlock()

	if d, err = s.rec.Open(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	s.liveSince = time.Now()
	s.metrics.RecordSessionStart()
	s.logger.Info().Msg("realtime session live")
	s.emit(d)
	return nil
}

func (s *Session) stop() {
	d, err := s.rec.Stop()
	if err != nil {
		return
	}
	s.emit(d)
	if d.Release {
		s.release()
	}
}

// release drops the uplink and closes the upstream stream without waiting on it.
func (s *Session) release() {
	s.mu.Lock()
	stream := s.stream
	pump := s.pump
	s.stream = nil
	s.pump = nil
	s.mu.Unlock()

	if pump != nil {
		pump.SetMuted(true)
		stats := pump.Stats()
		s.logger.Info().
			Int64("audioBytes", stats.AudioBytes).
			Int("framesSent", stats.FramesSent).
			Int("framesMuted", stats.FramesMuted).
			Msg("realtime session released")
	}
	if stream != nil {
		s.metrics.RecordSessionEnd(time.Since(s.liveSince).Seconds())
		go func() {
			if err := stream.Close(); err != nil {
				s.logger.Warn().Err(err).Msg("closing upstream stream")
			}
		}()
	}
}

func (s *Session) events() <-chan []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stream == nil {
		return nil
	}
	return s.stream.Events()
}

func (s *Session) setMuted(on bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pump != nil {
		s.pump.SetMuted(on)
	}
}

func (s *Session) handle(raw []byte) StateDelta {
	ev, err := ParseEvent(raw)
	if err != nil {
		s.metrics.RecordMalformedEvent()
		s.logger.Debug().Err(err).Int("bytes", len(raw)).Msg("discarding realtime event")
		return StateDelta{}
	}
	s.metrics.RecordEvent(ev.Kind.String(), s.rec.Accepting())
	d := s.rec.Apply(ev)
	s.emit(d)
	return d
}

// emit forwards a visible change to the subscriber and queues Kafka publishes.
func (s *Session) emit(d StateDelta) {
	if !d.Changed() {
		return
	}

	now := time.Now().UnixMilli()
	if d.LiveText != nil {
		s.enqueue(publishJob{live: &models.LiveTextEvent{
			EventType: models.EventTypeLive,
			SessionID: s.id,
			TurnID:    d.TurnID,
			Text:      *d.LiveText,
			Timestamp: now,
		}})
	}
	for _, b := range d.Appended {
		s.metrics.RecordBlock(b.Label)
		s.enqueue(publishJob{block: &models.BlockEvent{
			EventType: models.EventTypeBlock,
			SessionID: s.id,
			TurnID:    d.TurnID,
			Label:     b.Label,
			Text:      b.Text,
			Timestamp: b.Timestamp.UnixMilli(),
		}})
	}

	select {
	case s.updates <- d:
	default:
		s.logger.Warn().Msg("update subscriber not keeping up, dropping state delta")
	}
}

func (s *Session) enqueue(job publishJob) {
	select {
	case s.outbox <- job:
	default:
		s.logger.Warn().Msg("publish queue full, dropping transcript event")
	}
}

func (s *Session) publishLoop() {
	ctx := context.Background()
	for job := range s.outbox {
		var err error
		switch {
		case job.live != nil:
			err = s.publisher.PublishLiveText(ctx, *job.live)
		case job.block != nil:
			err = s.publisher.PublishBlock(ctx, *job.block)
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("publishing transcript event")
		}
	}
}

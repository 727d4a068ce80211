package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/brew-lab/thaumic-cast/internal/codec"
	"github.com/brew-lab/thaumic-cast/internal/config"
	"github.com/brew-lab/thaumic-cast/internal/policy"
	"github.com/brew-lab/thaumic-cast/internal/queue"
	"github.com/brew-lab/thaumic-cast/internal/ring"
	"github.com/brew-lab/thaumic-cast/internal/stats"
)

// State names the session's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateRunning    State = "running"
	StateDraining   State = "draining"
	StateClosed     State = "closed"
)

// SupervisorEvent is one outbound message posted to the supervising
// component (spec.md 6): READY, CONNECTED, DISCONNECTED, ERROR,
// STREAM_READY, PLAYBACK_STARTED, PLAYBACK_RESULTS, PLAYBACK_ERROR,
// STATS, METRICS_DUMP.
type SupervisorEvent struct {
	Type    string
	Payload any
}

// StartPlaybackPayload is the supervisor's inbound START_PLAYBACK
// message body.
type StartPlaybackPayload struct {
	SpeakerIPs       []string        `json:"speakerIps"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	SyncSpeakers     bool            `json:"syncSpeakers"`
	VideoSyncEnabled bool            `json:"videoSyncEnabled"`
}

// consumerRunner is the capability surface Session drives, satisfied
// by both Consumer[float32] (passthrough, codec family) and
// Consumer[int16] (mode=encode, relay) without either concrete type
// ever being named outside this file.
type consumerRunner interface {
	Run() error
	Stop()
	Stats() *stats.Collector
}

// Session wires Ring -> Producer -> FrameAssembler -> Encoder ->
// (FrameQueue) -> Sink and owns the Idle -> Connecting -> Running ->
// Draining -> Closed lifecycle, translating supervisor messages into
// engine calls and posting the outbound supervisor envelope. Grounded
// on the teacher's app.go wiring/callback-setter style (narrow
// interfaces, mutex-protected fields, atomic state flags), with the
// Wails/GUI-specific parts replaced by a plain event channel.
type Session struct {
	mu     sync.Mutex
	state  State
	sink   *Sink
	runner consumerRunner

	events chan SupervisorEvent
}

// NewSession returns an idle session. Call Start to run it.
func NewSession() *Session {
	return &Session{state: StateIdle, events: make(chan SupervisorEvent, 64)}
}

// Events returns the channel of outbound supervisor messages.
func (s *Session) Events() <-chan SupervisorEvent { return s.events }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) post(typ string, payload any) {
	select {
	case s.events <- SupervisorEvent{Type: typ, Payload: payload}:
	default:
		// A slow or absent supervisor reader must never stall the
		// session: when the channel is full, the new event is dropped
		// rather than blocking.
	}
}

// Start validates cfg, connects the sink, wires the pipeline for
// cfg.Mode, and runs the consumer loop to completion: a STOP call, a
// fatal configuration/connect error, or a fatal encoder/sink error.
// Blocks; callers run it on its own goroutine. capture supplies
// CaptureBlocks for the producer side.
func (s *Session) Start(cfg config.SessionConfig, capture CaptureSource) error {
	s.post("READY", nil)

	if err := config.Validate(&cfg); err != nil {
		s.post("ERROR", err.Error())
		s.setState(StateClosed)
		return err
	}

	s.setState(StateConnecting)

	sink := NewSink()
	streamID, err := sink.Connect(cfg.WSUrl, HandshakeEncoderConfig{
		Codec:            cfg.EncoderConfig.Codec,
		SampleRate:       cfg.EncoderConfig.SampleRate,
		Channels:         cfg.EncoderConfig.Channels,
		Bitrate:          cfg.EncoderConfig.BitrateKbps,
		LatencyMode:      cfg.EncoderConfig.LatencyMode,
		FrameSizeSamples: cfg.EncoderConfig.FrameSizeSamples,
	})
	if err != nil {
		s.post("ERROR", err.Error())
		s.setState(StateClosed)
		return err
	}
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	s.post("CONNECTED", map[string]string{"streamId": streamID})

	pol := policy.For(latencyModePolicy(cfg.EncoderConfig.LatencyMode))
	var q *queue.Queue
	if pol.FrameQueueMaxBytes > 0 {
		q = queue.New(pol.FrameQueueMaxBytes, pol.FrameQueueTargetBytes())
	}

	runner, err := buildRunner(cfg, capture, sink, pol, q)
	if err != nil {
		s.post("ERROR", err.Error())
		sink.Close()
		s.setState(StateClosed)
		return err
	}

	s.mu.Lock()
	s.runner = runner
	s.mu.Unlock()
	s.setState(StateRunning)

	done := make(chan struct{})
	go s.dispatchInbound()
	go s.statsLoop(runner, done)

	runErr := runner.Run()
	close(done)

	s.setState(StateDraining)
	s.post("METRICS_DUMP", runner.Stats().Timeline())
	s.setState(StateClosed)

	sink.Close()
	s.post("DISCONNECTED", nil)
	if runErr != nil {
		s.post("ERROR", runErr.Error())
	}
	return runErr
}

// latencyModePolicy maps the INIT payload's latencyMode string to a
// policy name, defaulting to realtime (the teacher's own default
// leans toward lowest-latency behavior).
func latencyModePolicy(latencyMode string) policy.Name {
	if latencyMode == "quality" {
		return policy.Quality
	}
	return policy.Realtime
}

// buildRunner constructs the ring, producer goroutine, encoder, and
// consumer for cfg.Mode, returning the consumer as a consumerRunner.
func buildRunner(cfg config.SessionConfig, capture CaptureSource, sink *Sink, pol policy.Policy, q *queue.Queue) (consumerRunner, error) {
	frameSizeSamples := cfg.EncoderConfig.FrameSizeSamples

	switch cfg.Mode {
	case config.ModeEncode:
		r, err := ring.New[int16](cfg.BufferSize)
		if err != nil {
			return nil, fmt.Errorf("session: ring: %w", err)
		}
		prod := NewProducer(cfg.Channels)
		go RunProducerInt16(prod, capture, r)

		enc := newRelayEncoder(cfg.SampleRate, cfg.Channels)
		return NewConsumer[int16](r, enc, pol, q, sink, cfg.SampleRate, cfg.Channels, frameSizeSamples), nil

	default: // config.ModePassthrough
		r, err := ring.New[float32](cfg.BufferSize)
		if err != nil {
			return nil, fmt.Errorf("session: ring: %w", err)
		}
		prod := NewProducer(cfg.Channels)
		go RunProducer(prod, capture, r)

		codecCfg := codec.Config{
			Codec:           cfg.EncoderConfig.Codec,
			SampleRate:      cfg.EncoderConfig.SampleRate,
			Channels:        cfg.EncoderConfig.Channels,
			BitrateKbps:     cfg.EncoderConfig.BitrateKbps,
			LatencyMode:     cfg.EncoderConfig.LatencyMode,
			FrameDurationMs: cfg.EncoderConfig.FrameDurationMs,
		}
		enc, err := codec.New(codecCfg)
		if err != nil {
			return nil, fmt.Errorf("session: encoder: %w", err)
		}
		if frameSizeSamples == 0 {
			frameSizeSamples = codecCfg.PerChannelFrame() * cfg.Channels
		}
		return NewConsumer[float32](r, enc, pol, q, sink, cfg.SampleRate, cfg.Channels, frameSizeSamples), nil
	}
}

// dispatchInbound relays the sink's parsed steady-state messages to
// the supervisor event channel until the sink closes its receive
// channel (the connection closed), then stops the consumer loop.
func (s *Session) dispatchInbound() {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return
	}
	for msg := range sink.Recv() {
		switch msg.Type {
		case "STREAM_READY", "PLAYBACK_STARTED", "PLAYBACK_RESULTS", "PLAYBACK_ERROR", "ERROR":
			s.post(msg.Type, msg.Payload)
		}
	}
	s.Stop()
}

// statsLoop posts each newly completed snapshot as a STATS event at
// the collector's own interval, until done closes.
func (s *Session) statsLoop(runner consumerRunner, done <-chan struct{}) {
	ticker := time.NewTicker(stats.Interval)
	defer ticker.Stop()
	var lastPosted time.Time
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			timeline := runner.Stats().Timeline()
			if n := len(timeline); n > 0 && !timeline[n-1].Time.Equal(lastPosted) {
				s.post("STATS", timeline[n-1])
				lastPosted = timeline[n-1].Time
			}
		}
	}
}

// Stop requests the running consumer loop end after its current
// cycle, triggering the Draining sequence in Start's goroutine.
func (s *Session) Stop() {
	s.mu.Lock()
	r := s.runner
	s.mu.Unlock()
	if r != nil {
		r.Stop()
	}
}

// StartPlayback forwards a START_PLAYBACK control message to the sink.
func (s *Session) StartPlayback(payload StartPlaybackPayload) error {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return fmt.Errorf("session: not connected")
	}
	return sink.SendControl("START_PLAYBACK", payload)
}

// UpdateMetadata forwards a METADATA_UPDATE control message.
func (s *Session) UpdateMetadata(metadata json.RawMessage) error {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return fmt.Errorf("session: not connected")
	}
	return sink.SendControl("METADATA_UPDATE", map[string]json.RawMessage{"metadata": metadata})
}

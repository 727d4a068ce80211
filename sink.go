package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// connectTimeout bounds the WebSocket dial (spec.md 5/7: 5s).
const connectTimeout = 5 * time.Second

// handshakeTimeout bounds the wait for HANDSHAKE_ACK or ERROR after the
// handshake frame is sent (spec.md 6/7: 5s).
const handshakeTimeout = 5 * time.Second

// heartbeatInterval is the steady-state HEARTBEAT period (spec.md 6: 5s).
const heartbeatInterval = 5 * time.Second

// envelope is the wire shape of every text control message exchanged
// with the companion process: a type tag plus an opaque payload.
type envelope struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Category string          `json:"category,omitempty"`
}

// InboundMessage is one parsed steady-state message from the sink,
// handed to the session for dispatch.
type InboundMessage struct {
	Type    string
	Payload json.RawMessage
}

// HandshakePayload is the outbound HANDSHAKE frame's payload.
type HandshakePayload struct {
	EncoderConfig HandshakeEncoderConfig `json:"encoderConfig"`
}

// HandshakeEncoderConfig mirrors the INIT payload's encoder section,
// echoed to the companion process so it knows how to decode the stream.
type HandshakeEncoderConfig struct {
	Codec            string `json:"codec"`
	SampleRate       int    `json:"sampleRate"`
	Channels         int    `json:"channels"`
	Bitrate          int    `json:"bitrate"`
	LatencyMode      string `json:"latencyMode"`
	FrameSizeSamples int    `json:"frameSizeSamples"`
}

// sendQueueFrames bounds the outbound binary-frame queue; a producer
// that outruns the network by more than this many frames gets a
// "queue full" error from Send rather than unbounded memory growth.
const sendQueueFrames = 512

// Sink is a WebSocket client to the companion desktop process: it
// performs the handshake, runs a heartbeat loop, and exposes Send for
// binary frames and a receive channel for steady-state inbound
// messages. Grounded on the teacher's Transport (Connect/pingLoop/
// readControl shape), adapted from WebTransport+QUIC datagrams to a
// single gorilla/websocket connection per spec.md 6.
type Sink struct {
	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex

	streamID string

	recv   chan InboundMessage
	closed atomic.Bool

	// outbox decouples Send from the network: a single writePump
	// goroutine drains it into conn.WriteMessage, and bufferedBytes
	// tracks the sum of frame lengths currently sitting in the queue
	// (from the moment Send hands a frame off until writePump's
	// WriteMessage call for it returns). This is what the policy's WS
	// high-water checks actually observe: a slow network backs up the
	// queue and Buffered() rises, rather than the synchronous-call
	// instrumentation going straight back to zero within the same
	// goroutine that checks it.
	outbox        chan []byte
	bufferedBytes atomic.Int64

	cancel func()
}

// NewSink returns an unconnected Sink. Call Connect to dial and
// perform the handshake.
func NewSink() *Sink {
	return &Sink{recv: make(chan InboundMessage, 32), outbox: make(chan []byte, sendQueueFrames)}
}

// Connect dials wsUrl, sends the HANDSHAKE frame, and waits up to
// handshakeTimeout for HANDSHAKE_ACK. On success it starts the
// heartbeat and read-pump goroutines and returns the companion's
// assigned streamId.
func (s *Sink) Connect(wsUrl string, enc HandshakeEncoderConfig) (streamID string, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, _, err := dialer.Dial(wsUrl, nil)
	if err != nil {
		return "", fmt.Errorf("sink: dial: %w", err)
	}

	payload, err := json.Marshal(HandshakePayload{EncoderConfig: enc})
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("sink: marshal handshake: %w", err)
	}
	if err := conn.WriteJSON(envelope{Type: "HANDSHAKE", Payload: payload}); err != nil {
		conn.Close()
		return "", fmt.Errorf("sink: send handshake: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return "", fmt.Errorf("sink: handshake: %w", err)
		}
		// Ignore frames carrying a category field or INITIAL_STATE: not
		// part of the handshake contract (spec.md 6 step 2).
		if msg.Category != "" || msg.Type == "INITIAL_STATE" {
			continue
		}
		switch msg.Type {
		case "HANDSHAKE_ACK":
			var ack struct {
				StreamID string `json:"streamId"`
			}
			json.Unmarshal(msg.Payload, &ack)
			streamID = ack.StreamID
		case "ERROR":
			var e struct {
				Message string `json:"message"`
			}
			json.Unmarshal(msg.Payload, &e)
			conn.Close()
			return "", fmt.Errorf("sink: handshake rejected: %s", e.Message)
		default:
			continue
		}
		break
	}
	conn.SetReadDeadline(time.Time{})

	s.mu.Lock()
	s.conn = conn
	s.streamID = streamID
	s.mu.Unlock()

	cancelCh := make(chan struct{})
	s.cancel = sync.OnceFunc(func() { close(cancelCh) })

	go s.heartbeatLoop(cancelCh)
	go s.readLoop(cancelCh)
	go s.writePump(cancelCh)

	return streamID, nil
}

// Send enqueues a binary frame (an encoded codec payload) for
// writePump to write. data is copied before this returns, since
// callers (codec encoders) reuse their output buffer on the next
// Encode call. Returns an error without blocking if the outbound queue
// is full.
func (s *Sink) Send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("sink: not connected")
	}
	frame := append([]byte(nil), data...)
	select {
	case s.outbox <- frame:
		s.bufferedBytes.Add(int64(len(frame)))
		return nil
	default:
		return fmt.Errorf("sink: send queue full")
	}
}

// writePump drains the outbox into the connection, one frame at a
// time, decrementing bufferedBytes as each write completes. Stops on
// the first write error, leaving the connection's close to be
// observed by readLoop.
func (s *Sink) writePump(done <-chan struct{}) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	for {
		select {
		case <-done:
			return
		case frame := <-s.outbox:
			s.writeMu.Lock()
			err := conn.WriteMessage(websocket.BinaryMessage, frame)
			s.writeMu.Unlock()
			s.bufferedBytes.Add(-int64(len(frame)))
			if err != nil {
				return
			}
		}
	}
}

// SendControl writes a text control frame (START_PLAYBACK,
// METADATA_UPDATE, HEARTBEAT, ...).
func (s *Sink) SendControl(msgType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sink: marshal control: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("sink: not connected")
	}
	return conn.WriteJSON(envelope{Type: msgType, Payload: body})
}

// Buffered returns the outbound write-queue occupancy in bytes: the
// sum of frames handed to Send that writePump has not yet finished
// writing. This is what rises when the network can't keep up with the
// encoder, and is what the policy's WS high-water checks consult.
func (s *Sink) Buffered() int { return int(s.bufferedBytes.Load()) }

// Recv returns the channel of parsed steady-state inbound messages.
func (s *Sink) Recv() <-chan InboundMessage { return s.recv }

// Close closes the underlying connection and stops the heartbeat and
// read-pump goroutines. Idempotent.
func (s *Sink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (s *Sink) heartbeatLoop(done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = s.SendControl("HEARTBEAT", struct{}{})
		}
	}
}

func (s *Sink) readLoop(done <-chan struct{}) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			close(s.recv)
			return
		}
		select {
		case <-done:
			return
		default:
		}
		if msg.Category != "" {
			continue
		}
		select {
		case s.recv <- InboundMessage{Type: msg.Type, Payload: msg.Payload}:
		default:
		}
	}
}

package protocol

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	// Local Packages
	helpers "termbridge/helpers"
	metrics "termbridge/metrics"
	models "termbridge/models"
	utils "termbridge/utils"

	// External Packages
	"go.uber.org/zap"
)

// Transport error kinds a session can resolve with. They travel as
// data in the gateway response, not as Go errors.
const (
	ErrConnectTimeout = "connect-timeout"
	ErrConnectError   = "connect-error"
	ErrReadTimeout    = "read-timeout"
	ErrIdleTimeout    = "idle-timeout"
	ErrSocketError    = "socket-error"
	ErrInvalidFrame   = "invalid-frame"
)

type Target struct {
	IP   string
	Port int
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.IP, strconv.Itoa(t.Port))
}

// Timeouts layers the session clocks: Connect caps the dial, Overall
// caps the whole wait for a final frame and never resets, Idle re-arms
// whenever bytes arrive.
type Timeouts struct {
	Connect time.Duration
	Overall time.Duration
	Idle    time.Duration
}

// Result is the outcome of one command session. OK is transport level:
// a final frame arrived before any timeout fired.
type Result struct {
	OK  bool                  `json:"ok"`
	Rsp json.RawMessage       `json:"rsp,omitempty"`
	Err string                `json:"error,omitempty"`
	Log []models.SessionEvent `json:"log"`
}

// Engine runs one-shot command sessions against a terminal. It sends
// a single envelope per connection and never writes again.
type Engine struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func NewEngine(logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{Logger: logger, Metrics: m}
}

// SendCommand connects, writes the framed envelope and waits for a
// final frame, collecting a wire level event log along the way. The
// socket is closed on every exit path.
func (e *Engine) SendCommand(ctx context.Context, target Target, envelope any, tmo Timeouts) Result {
	start := time.Now()
	res := e.run(ctx, target, envelope, tmo)

	outcome := res.Err
	if res.OK {
		outcome = "ok"
	}
	e.Metrics.SessionsTotal.WithLabelValues(outcome).Inc()
	e.Metrics.SessionSeconds.Observe(time.Since(start).Seconds())

	if res.OK {
		e.Logger.Debug("session complete", zap.String("addr", target.Addr()),
			zap.Duration("took", time.Since(start)))
	} else {
		e.Logger.Warn("session failed", zap.String("addr", target.Addr()),
			zap.String("error", res.Err))
	}
	return res
}

func (e *Engine) run(ctx context.Context, target Target, envelope any, tmo Timeouts) Result {
	log := &sessionLog{}

	payload, err := json.Marshal(envelope)
	if err != nil {
		log.add(ErrInvalidFrame, "request envelope does not encode: "+err.Error())
		return Result{Err: ErrInvalidFrame, Log: log.events}
	}
	frame := WrapPayload(payload)

	dialer := &net.Dialer{Timeout: tmo.Connect}
	conn, err := dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		kind := ErrConnectError
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			kind = ErrConnectTimeout
		}
		log.add(kind, err.Error())
		return Result{Err: kind, Log: log.events}
	}
	defer conn.Close()
	log.add(models.EventConnect, target.Addr())

	if _, err := conn.Write(frame); err != nil {
		log.add(ErrSocketError, "write failed: "+err.Error())
		return Result{Err: ErrSocketError, Log: log.events}
	}
	log.addFrame(models.EventSendJSON, "", frame, payload)

	chunks := make(chan []byte, 8)
	readErrs := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readLoop(conn, chunks, readErrs, done)

	overall := time.NewTimer(tmo.Overall)
	defer overall.Stop()
	idle := time.NewTimer(tmo.Idle)
	defer idle.Stop()

	dec := &Decoder{}
	for {
		select {
		case <-ctx.Done():
			log.add(ErrSocketError, "session canceled: "+ctx.Err().Error())
			return Result{Err: ErrSocketError, Log: log.events}

		case <-overall.C:
			// A final frame that landed in the buffer on the same tick
			// still counts.
			if final, found := e.flush(dec, chunks, log); found {
				e.drainLate(dec, chunks, log)
				return Result{OK: true, Rsp: final, Log: log.events}
			}
			log.add(ErrReadTimeout, "no final response within the overall window")
			return Result{Err: ErrReadTimeout, Log: log.events}

		case <-idle.C:
			if final, found := e.flush(dec, chunks, log); found {
				e.drainLate(dec, chunks, log)
				return Result{OK: true, Rsp: final, Log: log.events}
			}
			// The overall clock wins when both expire in the same tick.
			select {
			case <-overall.C:
				log.add(ErrReadTimeout, "no final response within the overall window")
				return Result{Err: ErrReadTimeout, Log: log.events}
			default:
			}
			log.add(ErrIdleTimeout, "byte stream went quiet")
			return Result{Err: ErrIdleTimeout, Log: log.events}

		case err := <-readErrs:
			note := err.Error()
			if errors.Is(err, io.EOF) {
				note = "connection closed before a final response"
			}
			log.add(ErrSocketError, note)
			return Result{Err: ErrSocketError, Log: log.events}

		case chunk := <-chunks:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(tmo.Idle)

			if final, found := e.consume(dec.Feed(chunk), log); found {
				e.drainLate(dec, chunks, log)
				return Result{OK: true, Rsp: final, Log: log.events}
			}
		}
	}
}

// consume classifies decoded frames until a final one shows up.
// Everything after the final frame in the same batch is late.
func (e *Engine) consume(frames []Frame, log *sessionLog) (json.RawMessage, bool) {
	var final json.RawMessage
	for _, fr := range frames {
		if final != nil {
			log.addFrame(models.EventLateFrame, "", fr.Raw, fr.JSON)
			continue
		}
		if fr.Err != nil {
			e.Metrics.FramesInvalid.Inc()
			log.addFrame(models.EventInvalidFrame, fr.Err.Error(), fr.Raw, nil)
			continue
		}
		e.Metrics.FramesDecoded.Inc()

		var peek struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(fr.JSON, &peek)

		switch {
		case models.IsFinalMessage(peek.Message):
			log.addFrame(models.EventRecvJSON, peek.Message, fr.Raw, fr.JSON)
			final = fr.JSON
		case peek.Message == models.MessageACK, models.IsProgressMessage(peek.Message):
			log.addFrame(models.EventRecvJSON, peek.Message, fr.Raw, fr.JSON)
		default:
			log.addFrame(models.EventUnhandled, peek.Message, fr.Raw, fr.JSON)
		}
	}
	return final, final != nil
}

// flush consumes chunks already queued without blocking, reporting a
// final frame if one is among them.
func (e *Engine) flush(dec *Decoder, chunks <-chan []byte, log *sessionLog) (json.RawMessage, bool) {
	for {
		select {
		case chunk := <-chunks:
			if final, found := e.consume(dec.Feed(chunk), log); found {
				return final, true
			}
		default:
			return nil, false
		}
	}
}

// drainLate logs frames that were already buffered behind the final
// one without waiting for more.
func (e *Engine) drainLate(dec *Decoder, chunks <-chan []byte, log *sessionLog) {
	for {
		select {
		case chunk := <-chunks:
			for _, fr := range dec.Feed(chunk) {
				log.addFrame(models.EventLateFrame, "", fr.Raw, fr.JSON)
			}
		default:
			return
		}
	}
}

// Probe dials the terminal and reports reachability and latency. It is
// the availability check; no envelope is sent.
func (e *Engine) Probe(ctx context.Context, target Target, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		return 0, err
	}
	_ = conn.Close()
	return time.Since(start), nil
}

func readLoop(conn net.Conn, chunks chan<- []byte, readErrs chan<- error, done <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case readErrs <- err:
			case <-done:
			}
			return
		}
	}
}

type sessionLog struct {
	events []models.SessionEvent
}

func (l *sessionLog) add(evType, note string) {
	l.events = append(l.events, models.SessionEvent{
		Time: utils.NowISO(),
		Type: evType,
		Note: note,
	})
}

func (l *sessionLog) addFrame(evType, note string, raw []byte, payload json.RawMessage) {
	l.events = append(l.events, models.SessionEvent{
		Time: utils.NowISO(),
		Type: evType,
		Note: note,
		Hex:  helpers.FormatHex(raw),
		JSON: payload,
	})
}

// Package ipc drives a long-running external process as a message-passing
// peer. One Session owns the process handle and pipe framing exclusively;
// all interaction happens over typed command/event channels.
//
// The wire format is newline-delimited UTF-8 JSON in both directions:
// outbound commands `{"type": ..., "data": {...}}`, inbound events in the
// same envelope. The external process logs to stderr so stdout stays clean
// for JSON; stdout lines that are not JSON anyway (startup banners) are
// surfaced as informational events, not errors.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
)

// EventKind discriminates inbound session events. The wire values match the
// external process's type discriminators.
type EventKind string

const (
	EventInit             EventKind = "init"
	EventMessage          EventKind = "message"
	EventAnnounceSent     EventKind = "announce_sent"
	EventLinkEstablished  EventKind = "link_established"
	EventTransportAdded   EventKind = "transport_added"
	EventTransportRemoved EventKind = "transport_removed"
	EventTransportError   EventKind = "transport_error"
	EventTransportsList   EventKind = "transports_list"
	EventSendSuccess      EventKind = "send_success"
	EventSendFailed       EventKind = "send_failed"
	EventPong             EventKind = "pong"

	// EventInfo carries a non-JSON stdout line verbatim.
	EventInfo EventKind = "info"
	// EventExit signals process termination; Err holds the exit error, if any.
	EventExit EventKind = "exit"
)

// Outbound command types.
const (
	CommandSend     = "send"
	CommandAnnounce = "announce"
	CommandPing     = "ping"
	CommandShutdown = "shutdown"
)

// Event is one decoded inbound message, informational line, or the exit
// notification.
type Event struct {
	Kind EventKind
	// Data is the envelope's data object, unparsed. Nil for info/exit.
	Data json.RawMessage
	// Line is the verbatim text of an info event.
	Line string
	Err  error
	Time time.Time
}

// inbound is the wire envelope the external process emits.
type inbound struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp float64         `json:"timestamp"`
}

// outbound is the wire envelope for commands.
type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const eventBufferSize = 128

// stopGrace bounds how long Stop waits for the process to honor the shutdown
// command before killing it.
const stopGrace = 3 * time.Second

// Session is one live external-process handle. Created by Start; terminated
// by Stop or by the process exiting. A terminated session never restarts its
// process; restart policy belongs to the owning adapter.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	writeMu sync.Mutex

	events     chan Event
	dropped    atomic.Int64
	terminated atomic.Bool
	readers    sync.WaitGroup
	done       chan struct{}
	exitErr    error
}

// Start spawns the external process and begins pumping its pipes. The
// returned session is live until Stop or process exit. The context bounds
// only the spawn, not the session lifetime.
func Start(ctx context.Context, logger *slog.Logger, command string, args ...string) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.WrapFatal(err, "Session", "Start", "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.WrapFatal(err, "Session", "Start", "stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.WrapFatal(err, "Session", "Start", "stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.WrapTransient(err, "Session", "Start", "process spawn")
	}
	if err := ctx.Err(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, errors.WrapTransient(err, "Session", "Start", "spawn cancelled")
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		logger: logger.With("component", "ipc", "pid", cmd.Process.Pid),
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}

	s.readers.Add(2)
	go s.readStdout(stdout)
	go s.readStderr(stderr)
	go s.wait()

	s.logger.Info("external process started", "command", command)
	return s, nil
}

// Events returns the inbound event stream. Closed after the exit event.
func (s *Session) Events() <-chan Event { return s.events }

// Terminated reports whether the process has exited.
func (s *Session) Terminated() bool { return s.terminated.Load() }

// Send writes one command envelope to the process.
func (s *Session) Send(msgType string, data any) error {
	if s.terminated.Load() {
		return errors.Wrap(errors.ErrSessionTerminated, "Session", "Send", "liveness check")
	}

	payload, err := json.Marshal(outbound{Type: msgType, Data: data})
	if err != nil {
		return errors.WrapInvalid(err, "Session", "Send", "marshal")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.stdin.Write(append(payload, '\n')); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSessionTerminated, err),
			"Session", "Send", "pipe write")
	}
	return nil
}

// Stop requests a graceful shutdown, then kills the process if it does not
// exit within the grace period. Safe to call more than once.
func (s *Session) Stop() error {
	if err := s.Send(CommandShutdown, map[string]any{}); err != nil {
		s.logger.Debug("shutdown command not delivered", "error", err)
	}
	// EOF on stdin is the secondary shutdown signal for processes that read
	// commands in a loop.
	s.writeMu.Lock()
	_ = s.stdin.Close()
	s.writeMu.Unlock()

	select {
	case <-s.done:
	case <-time.After(stopGrace):
		s.logger.Warn("process ignored shutdown, killing")
		_ = s.cmd.Process.Kill()
		<-s.done
	}
	return s.exitErr
}

// readStdout pumps JSON events off the process's stdout. Chunking is
// arbitrary relative to line boundaries, so lines are reassembled through a
// partial-line buffer.
func (s *Session) readStdout(r io.Reader) {
	defer s.readers.Done()

	var lb lineBuffer
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range lb.Feed(buf[:n]) {
				s.handleLine(line)
			}
		}
		if err != nil {
			if rest := lb.pending; len(rest) > 0 {
				s.handleLine(rest)
			}
			return
		}
	}
}

// readStderr forwards the process's own log lines to the session logger.
func (s *Session) readStderr(r io.Reader) {
	defer s.readers.Done()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 4096), 256*1024)
	for sc.Scan() {
		s.logger.Info("subprocess stderr", "line", sc.Text())
	}
}

func (s *Session) handleLine(line []byte) {
	if len(line) == 0 {
		return
	}

	var env inbound
	if err := json.Unmarshal(line, &env); err != nil || env.Type == "" {
		// Startup banners and other human-readable output are expected.
		s.logger.Info("subprocess output", "line", string(line))
		s.emit(Event{Kind: EventInfo, Line: string(line)})
		return
	}

	ts := time.Now()
	if env.Timestamp > 0 {
		sec, frac := int64(env.Timestamp), env.Timestamp-float64(int64(env.Timestamp))
		ts = time.Unix(sec, int64(frac*float64(time.Second)))
	}

	switch EventKind(env.Type) {
	case EventInit, EventMessage, EventAnnounceSent, EventLinkEstablished,
		EventTransportAdded, EventTransportRemoved, EventTransportError,
		EventTransportsList, EventSendSuccess, EventSendFailed, EventPong:
		s.emit(Event{Kind: EventKind(env.Type), Data: env.Data, Time: ts})
	default:
		s.logger.Warn("unrecognized event type", "type", env.Type)
	}
}

// wait reaps the process, marks the session terminated and closes the event
// stream after a final exit event. The session never restarts the process.
func (s *Session) wait() {
	// Readers drain to EOF before Wait reaps the process, so no emit can
	// race the channel close below.
	s.readers.Wait()
	err := s.cmd.Wait()
	s.terminated.Store(true)
	s.exitErr = err
	close(s.done)

	if err != nil {
		s.logger.Warn("external process exited", "error", err)
	} else {
		s.logger.Info("external process exited")
	}

	ev := Event{Kind: EventExit, Time: time.Now()}
	if err != nil {
		ev.Err = errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSessionTerminated, err),
			"Session", "wait", "process exit")
	}
	// The buffer may be full with the consumer gone. Evict the oldest
	// buffered event to make room so the exit event still lands and this
	// goroutine never blocks forever.
	for {
		select {
		case s.events <- ev:
			close(s.events)
			return
		default:
			select {
			case <-s.events:
				s.dropped.Add(1)
			default:
			}
		}
	}
}

func (s *Session) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
		s.logger.Warn("event dropped, consumer behind", "kind", string(ev.Kind))
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Escorpio024/scribe-ia-aurora/internal/capture"
	"github.com/Escorpio024/scribe-ia-aurora/internal/collab"
	"github.com/Escorpio024/scribe-ia-aurora/internal/protocol"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
	"github.com/Escorpio024/scribe-ia-aurora/internal/stream"
)

// captureConn is one capture socket. All reads and writes happen on the
// handler goroutine.
type captureConn struct {
	h       *HTTPServer
	ws      *websocket.Conn
	remote  string
	logger  *slog.Logger
	session *stream.Session
}

// handleCapture implements GET /capture. The client sends JSON control
// messages and binary audio frames; every control message gets a reply.
func (h *HTTPServer) handleCapture(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Capture socket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()
	ws.SetReadLimit(h.config.Server.MaxMessageBytes)

	c := &captureConn{
		h:      h,
		ws:     ws,
		remote: r.RemoteAddr,
		logger: h.logger.With(slog.String("remote_addr", r.RemoteAddr)),
	}
	defer c.release()

	c.logger.Debug("Capture socket connected")

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Capture socket closed", slog.String("error", err.Error()))
			}
			return
		}

		switch mt {
		case websocket.TextMessage:
			err = c.handleControl(r.Context(), data)
		case websocket.BinaryMessage:
			err = c.handleAudio(data)
		}
		if err != nil {
			c.logger.Debug("Capture socket write failed", slog.String("error", err.Error()))
			return
		}
	}
}

func (c *captureConn) handleControl(ctx context.Context, data []byte) error {
	ctl, err := protocol.ParseControl(data)
	if err != nil {
		return c.replyError(protocol.CodeBadMessage, err)
	}

	switch ctl.Type {
	case protocol.TypeStart:
		return c.start(ctx, ctl)

	case protocol.TypePause, protocol.TypeResume:
		if c.session == nil {
			return c.replyState()
		}
		op := c.session.Pause
		if ctl.Type == protocol.TypeResume {
			op = c.session.Resume
		}
		if err := op(); err != nil {
			return c.replyError(errorCode(err), err)
		}
		return c.replyState()

	case protocol.TypeStop:
		return c.stop(ctx, ctl)

	case protocol.TypeDiscard:
		c.release()
		return c.replyState()
	}
	return nil
}

func (c *captureConn) start(ctx context.Context, ctl *protocol.Control) error {
	if c.session != nil {
		if st := c.session.State(); st == capture.StateRecording || st == capture.StatePaused {
			return c.replyError(protocol.CodeInvalidState, fmt.Errorf("%w: start while %s", capture.ErrInvalidState, st))
		}
		c.release()
	}

	encounterID := ctl.EncounterID
	if encounterID == "" {
		encounterID = record.NewWebEncounterID(time.Now())
	} else if !record.ValidEncounterID(encounterID) {
		return c.replyError(protocol.CodeBadMessage, fmt.Errorf("invalid encounter_id %q", encounterID))
	}

	session, err := c.h.sessions.CreateSession(encounterID, c.remote, ctl.SampleRate)
	if err != nil {
		if errors.Is(err, stream.ErrTooManySessions) {
			return c.replyError(protocol.CodeBusy, err)
		}
		return c.replyError(protocol.CodeDeviceUnavailable, err)
	}

	if err := session.Start(ctx); err != nil {
		c.h.sessions.RemoveSession(session.ID)
		return c.replyError(errorCode(err), err)
	}
	c.session = session
	c.logger = c.logger.With(slog.String("encounter_id", encounterID))

	return c.replyState()
}

func (c *captureConn) stop(ctx context.Context, ctl *protocol.Control) error {
	if c.session == nil {
		return c.replyError(protocol.CodeInvalidState, fmt.Errorf("%w: stop without capture", capture.ErrInvalidState))
	}

	session := c.session
	encoded, err := session.Stop()
	c.release()
	if err != nil {
		return c.replyError(errorCode(err), err)
	}

	reply := protocol.Reply{
		Type:        protocol.TypeResult,
		SessionID:   session.ID,
		EncounterID: session.EncounterID,
		State:       capture.StateStopped.String(),
		Samples:     encoded.NumSamples(),
		Bytes:       encoded.Len(),
		DurationMS:  encoded.Duration().Milliseconds(),
	}
	if ctl.ReturnAudio {
		reply.Audio = encoded.Bytes()
	}

	if c.h.uploader != nil && ctl.WantsUpload(c.h.config.Upstream.UploadOnStop) {
		res, err := c.h.uploader.Upload(ctx, session.EncounterID, encoded)
		if err != nil {
			c.logger.Warn("Capture upload failed", slog.String("error", err.Error()))
			reply.Code = protocol.CodeUpstream
			reply.Error = err.Error()
		} else {
			reply.StoredWAV = res.StoredWAV
			if res.Transcript == nil {
				res.Transcript = []collab.Turn{}
			}
			reply.Transcript, _ = json.Marshal(res.Transcript)
		}
	}

	return c.ws.WriteJSON(reply)
}

func (c *captureConn) handleAudio(data []byte) error {
	if c.session == nil {
		return c.replyError(protocol.CodeInvalidState, errors.New("audio frame without capture"))
	}
	samples, err := protocol.ParseAudioFrame(data)
	if err != nil {
		return c.replyError(protocol.CodeBadMessage, err)
	}
	// Frames while paused are dropped and counted by the session
	c.session.Push(samples)
	return nil
}

// release forgets the session, discarding any capture still running
func (c *captureConn) release() {
	if c.session == nil {
		return
	}
	c.h.sessions.RemoveSession(c.session.ID)
	c.session = nil
}

func (c *captureConn) replyState() error {
	reply := protocol.Reply{Type: protocol.TypeState, State: capture.StateIdle.String()}
	if c.session != nil {
		reply.SessionID = c.session.ID
		reply.EncounterID = c.session.EncounterID
		reply.State = c.session.State().String()
	}
	return c.ws.WriteJSON(reply)
}

func (c *captureConn) replyError(code string, err error) error {
	c.logger.Debug("Capture socket error reply",
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
	return c.ws.WriteJSON(protocol.Reply{Type: protocol.TypeError, Code: code, Error: err.Error()})
}

// errorCode maps capture and upstream errors onto reply codes
func errorCode(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return protocol.CodePermissionDenied
	case errors.Is(err, capture.ErrInsecureContext):
		return protocol.CodeInsecureContext
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return protocol.CodeDeviceUnavailable
	case errors.Is(err, capture.ErrEmptyCapture):
		return protocol.CodeEmptyCapture
	case errors.Is(err, capture.ErrEncodingFailure):
		return protocol.CodeEncodingFailure
	case errors.Is(err, capture.ErrInvalidState):
		return protocol.CodeInvalidState
	case errors.Is(err, collab.ErrUpstream):
		return protocol.CodeUpstream
	}
	return protocol.CodeBadMessage
}

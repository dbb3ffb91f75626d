package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/gluk-w/boxterm/internal/apperr"
	"github.com/gluk-w/boxterm/internal/terminal"
)

// terminalRateLimit is the number of input messages allowed per second per
// connection. Messages beyond it are dropped.
const terminalRateLimit = 200

// terminalRateBurst lets short bursts such as pastes through.
const terminalRateBurst = 200

// maxInputBytes caps a single input message; larger ones are dropped.
const maxInputBytes = 64 * 1024

const frameWriteTimeout = 5 * time.Second

// TerminalWS bridges a WebSocket to an interactive shell in the container.
//
// Query parameters cols and rows seed the terminal size. Admission and the
// container are settled before the upgrade so failures surface as plain HTTP
// statuses (400, 429, 500).
func (h *Handler) TerminalWS(w http.ResponseWriter, r *http.Request) {
	name, err := containerParam(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	cols, rows := terminal.ParseSize(r.URL.Query().Get("cols"), r.URL.Query().Get("rows"))

	res, err := h.Terminals.Reserve()
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	ctx := r.Context()
	if err := h.Orchestrator.Ensure(ctx, name, h.DefaultCommand, h.CreateSpec); err != nil {
		res.Release()
		h.writeAppError(w, r, apperr.Wrap(apperr.KindUpstream, err, "ensure container"))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		res.Release()
		h.logger.Warn().Err(err).Str("container", name).Msg("failed to accept terminal websocket")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1024 * 1024)

	command, err := h.Orchestrator.DefaultCommand(ctx, name)
	if err != nil {
		h.logger.Warn().Err(err).Str("container", name).Msg("cannot read startup command, using login shell")
		command = ""
	}

	sess, err := h.Terminals.Open(ctx, res, name, command, cols, rows)
	if err != nil {
		h.logger.Error().Err(err).Str("container", name).Msg("terminal session failed to start")
		writeFrame(ctx, conn, terminal.ServerFrame{Type: terminal.FrameError, Error: err.Error()})
		writeFrame(ctx, conn, terminal.ServerFrame{
			Type:          terminal.FrameStatus,
			Phase:         terminal.PhaseClosed,
			ContainerName: name,
			Cols:          cols,
			Rows:          rows,
		})
		conn.Close(websocket.StatusInternalError, "terminal failed to start")
		return
	}

	if err := writeFrame(ctx, conn, terminal.StatusFrame(sess, terminal.PhaseReady)); err != nil {
		sess.Close()
		return
	}

	outDone := make(chan struct{})
	go func() {
		defer close(outDone)
		for chunk := range sess.Output() {
			if err := writeFrame(ctx, conn, terminal.ServerFrame{Type: terminal.FrameOutput, Data: string(chunk)}); err != nil {
				return
			}
		}
		<-sess.Done()
		writeFrame(ctx, conn, terminal.StatusFrame(sess, terminal.PhaseClosed))
		conn.Close(websocket.StatusNormalClosure, "session closed")
	}()

	h.relayInput(ctx, conn, sess)

	sess.Close()
	select {
	case <-outDone:
	case <-time.After(frameWriteTimeout):
	}
}

// relayInput forwards client frames to the session until the socket fails,
// the client asks to close, or the session stops accepting input.
func (h *Handler) relayInput(ctx context.Context, conn *websocket.Conn, sess *terminal.Session) {
	limiter := rate.NewLimiter(terminalRateLimit, terminalRateBurst)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if len(data) > maxInputBytes {
			h.logger.Debug().Str("session", sess.ID).Int("bytes", len(data)).Msg("dropping oversized terminal message")
			continue
		}

		frame := terminal.ParseClientFrame(data, typ == websocket.MessageBinary)
		switch frame.Type {
		case terminal.FrameInput:
			if !limiter.Allow() {
				continue
			}
			if err := sess.Write([]byte(frame.Data)); err != nil {
				return
			}
		case terminal.FrameResize:
			if frame.Cols > 0 && frame.Rows > 0 {
				sess.Resize(frame.Cols, frame.Rows)
			}
		case terminal.FrameClose:
			return
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f terminal.ServerFrame) error {
	ctx, cancel := context.WithTimeout(ctx, frameWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}

package terminal

import (
	"encoding/json"
	"unicode/utf8"
)

// Frame types.
const (
	FrameStatus = "status"
	FrameOutput = "output"
	FrameError  = "error"
	FrameInput  = "input"
	FrameResize = "resize"
	FrameClose  = "close"
)

// Status phases.
const (
	PhaseReady  = "ready"
	PhaseClosed = "closed"
)

// ServerFrame is a server-to-client message.
type ServerFrame struct {
	Type          string `json:"type"`
	Phase         string `json:"phase,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	ContainerName string `json:"containerName,omitempty"`
	Cols          int    `json:"cols,omitempty"`
	Rows          int    `json:"rows,omitempty"`
	Mode          Mode   `json:"mode,omitempty"`
	ExitCode      *int   `json:"exitCode,omitempty"`
	Data          string `json:"data,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ClientFrame is a client-to-server message.
type ClientFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// ParseClientFrame decodes a client message. Binary messages and text that
// is not a JSON object are raw input.
func ParseClientFrame(data []byte, binary bool) ClientFrame {
	if binary {
		return ClientFrame{Type: FrameInput, Data: string(data)}
	}
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientFrame{Type: FrameInput, Data: string(data)}
	}
	return f
}

// StatusFrame describes s in the given phase.
func StatusFrame(s *Session, phase string) ServerFrame {
	cols, rows := s.Size()
	f := ServerFrame{
		Type:          FrameStatus,
		Phase:         phase,
		SessionID:     s.ID,
		ContainerName: s.ContainerName,
		Cols:          cols,
		Rows:          rows,
		Mode:          s.Mode,
	}
	if phase == PhaseClosed {
		if code, ok := s.ExitCode(); ok {
			f.ExitCode = &code
		}
	}
	return f
}

// splitUTF8 splits b before a trailing incomplete UTF-8 sequence.
func splitUTF8(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		c := b[i]
		if c < utf8.RuneSelf {
			break
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[i:]) {
				return b[:i], b[i:]
			}
			break
		}
	}
	return b, nil
}

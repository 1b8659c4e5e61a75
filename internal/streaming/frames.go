// Package streaming serves synchronous provider streams with mid-stream
// cancellation, a response cache, and the multi-member council pattern. The
// HTTP layer renders frames as server-sent events; this package owns the
// frame grammar and the stream lifecycle.
package streaming

import "encoding/json"

// Frame types. Every stream is meta first, one terminal frame last.
const (
	FrameMeta           = "meta"
	FrameToken          = "token"
	FrameDone           = "done"
	FrameCancelled      = "cancelled"
	FrameError          = "error"
	FramePhase          = "phase"
	FrameMemberToken    = "member_token"
	FrameMemberComplete = "member_complete"
	FrameMemberError    = "member_error"
)

// Council phases.
const (
	PhaseMembers       = "members"
	PhaseLeader        = "leader"
	PhaseLeaderRetry   = "leader_retry"
	PhaseLeaderPartial = "leader_partial"
)

// Frame is one event on a stream. Member is a pointer so index zero
// serializes.
type Frame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Content   string `json:"content,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Member    *int   `json:"member,omitempty"`
	Message   string `json:"message,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
}

// Sink receives frames in order. A sink error aborts the stream; the HTTP
// layer returns one when the client is gone.
type Sink func(Frame) error

// JSON renders the frame for an SSE data line.
func (f Frame) JSON() []byte {
	data, err := json.Marshal(f)
	if err != nil {
		return []byte(`{"type":"error","message":"frame encoding failed"}`)
	}
	return data
}

func metaFrame(requestID string) Frame { return Frame{Type: FrameMeta, RequestID: requestID} }

func tokenFrame(content string) Frame { return Frame{Type: FrameToken, Content: content} }

func cachedTokenFrame(content string) Frame {
	return Frame{Type: FrameToken, Content: content, Cached: true}
}

func doneFrame() Frame { return Frame{Type: FrameDone} }

func cancelledFrame() Frame { return Frame{Type: FrameCancelled} }

func errorFrame(message string) Frame { return Frame{Type: FrameError, Message: message} }

func phaseFrame(phase string) Frame { return Frame{Type: FramePhase, Phase: phase} }

func memberTokenFrame(member int, content string) Frame {
	idx := member
	return Frame{Type: FrameMemberToken, Member: &idx, Content: content}
}

func memberCompleteFrame(member int) Frame {
	idx := member
	return Frame{Type: FrameMemberComplete, Member: &idx}
}

func memberErrorFrame(member int, message string) Frame {
	idx := member
	return Frame{Type: FrameMemberError, Member: &idx, Message: message}
}

package types

import "encoding/json"

// Wire frames for the realtime gateway protocol. One websocket carries all
// four feeds plus request/reply RPCs, multiplexed by sub id and req id.

// Client -> Server frame types.
const (
	FrameRPC         = "rpc"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameTrack       = "track"
	FramePublish     = "publish"
)

// RPC methods.
const (
	MethodFetchRoom         = "fetch_room"
	MethodFetchParticipants = "fetch_participants"
	MethodSubmitGuess       = "submit_guess"
	MethodReportMissing     = "report_missing_word"
)

// Feed names.
const (
	FeedRoom         = "room"
	FeedParticipants = "participants"
	FeedBroadcast    = "broadcast"
	FeedPresence     = "presence"
)

// Server -> Client frame types.
const (
	FrameRPCResult = "rpc_result"
	FrameEvent     = "event"
)

// Participant event kinds carried on the participants feed.
const (
	KindInsert = "INSERT"
	KindUpdate = "UPDATE"
)

// Wire error codes.
const (
	ErrCodeNotFound = "not_found"
	ErrCodeBadFrame = "bad_frame"
	ErrCodeInternal = "internal"
)

type ClientFrame struct {
	Type     string          `json:"type"`
	ReqID    int64           `json:"req_id,omitempty"`
	Method   string          `json:"method,omitempty"`
	Feed     string          `json:"feed,omitempty"`
	SubID    string          `json:"sub_id,omitempty"`
	RoomCode string          `json:"room_code,omitempty"`
	RoomID   string          `json:"room_id,omitempty"`
	UserID   string          `json:"user_id,omitempty"`
	Word     string          `json:"word,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type ServerFrame struct {
	Type    string          `json:"type"`
	ReqID   int64           `json:"req_id,omitempty"`
	SubID   string          `json:"sub_id,omitempty"`
	Feed    string          `json:"feed,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Score   int             `json:"score,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

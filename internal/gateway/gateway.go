package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/hivewords/hive-sync/internal/game"
)

var ErrNotFound = errors.New("room not found")
var ErrNotReady = errors.New("session not ready")
var ErrSessionClosed = errors.New("session closed")
var ErrTransport = errors.New("transport error")

// RoomUpdate is the room-row feed payload. It is a narrower record than the
// join fetch: puzzle, total score and answer count never travel on the feed.
type RoomUpdate struct {
	ID             string    `json:"id"`
	RoomCode       string    `json:"room_code"`
	GuessedAnswers []string  `json:"guessed_answers"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EventGuessedAnswer is the only broadcast event kind the game emits.
const EventGuessedAnswer = "guessed_answer"

// BroadcastEvent is a fire-and-forget peer notification. It never mutates
// room or participant state; the row feeds own those facts.
type BroadcastEvent struct {
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
	Word        string `json:"word"`
	Score       int    `json:"score"`
}

// PresenceEntry is one connected viewer. Ephemeral, never persisted.
type PresenceEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Unsubscribe releases one feed subscription. Calling it more than once is
// a no-op; callbacks must stop firing once it returns.
type Unsubscribe func()

// PresenceSub is a live presence subscription. The subscription is confirmed
// by the time SubscribePresence returns, so Track may be called immediately.
// Every sync callback carries the complete roster; absence from a sync is
// the disconnection signal.
type PresenceSub interface {
	Track(entry PresenceEntry)
	Unsubscribe()
}

// Reconnectable is implemented by transports whose feeds can drop and come
// back. The handler fires after the transport has re-established its
// subscriptions; the client must re-fetch full state before trusting
// further incremental events.
type Reconnectable interface {
	OnDisconnect(fn func())
}

// Gateway is the authoritative backend surface the client core consumes.
// FetchRoom, FetchParticipants and SubmitGuess are the only blocking calls;
// feed callbacks are invoked in per-feed emission order, with no ordering
// guarantee across feeds.
type Gateway interface {
	FetchRoom(ctx context.Context, roomCode string) (game.Snapshot, error)
	FetchParticipants(ctx context.Context, roomID string) ([]game.Participant, error)

	// SubmitGuess is atomic and room-scoped unique per word: at most one
	// caller ever receives a positive score for a given word in a given
	// room. A zero score means not recognized or already taken.
	SubmitGuess(ctx context.Context, roomCode, userID, word string) (int, error)

	// ReportMissingWord records a rejected word for out-of-band review.
	// Best effort; failures never affect the guess flow.
	ReportMissingWord(ctx context.Context, roomID, userID, word string) error

	SubscribeRoomChanges(roomID string, onUpdate func(RoomUpdate)) (Unsubscribe, error)
	SubscribeParticipantChanges(roomID string, onInsert, onUpdate func(game.Participant)) (Unsubscribe, error)
	SubscribeBroadcast(roomID string, onEvent func(BroadcastEvent)) (Unsubscribe, error)
	PublishBroadcast(roomID string, ev BroadcastEvent) error
	SubscribePresence(roomID string, onSync func([]PresenceEntry)) (PresenceSub, error)
}

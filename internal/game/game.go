package game

import (
	"slices"
	"strings"
	"time"
)

// MinGuessLength is the shortest guess worth sending anywhere.
const MinGuessLength = 4

// PuzzleLength is the fixed number of letters in a room's puzzle.
const PuzzleLength = 7

// Snapshot is the client-visible state of one room. GuessedAnswers only
// grows over the life of a room; Puzzle, TotalScore and AnswerCount are set
// by the initial fetch and carried forward across row updates.
type Snapshot struct {
	ID             string    `json:"id"`
	RoomCode       string    `json:"room_code"`
	Puzzle         string    `json:"puzzle"`
	GuessedAnswers []string  `json:"guessed_answers"`
	AnswerCount    int       `json:"answer_count"`
	TotalScore     int       `json:"total_score"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RequiredLetter is the letter every valid answer must contain (puzzle index 0).
func (s Snapshot) RequiredLetter() string {
	if s.Puzzle == "" {
		return ""
	}
	return strings.ToLower(s.Puzzle[:1])
}

// HasLetter reports whether the puzzle offers the given letter, ignoring case.
func (s Snapshot) HasLetter(letter string) bool {
	return letter != "" && strings.Contains(strings.ToLower(s.Puzzle), strings.ToLower(letter))
}

// HasGuessed reports whether a word is already on the room's guessed list.
func (s Snapshot) HasGuessed(word string) bool {
	return slices.Contains(s.GuessedAnswers, Normalize(word))
}

// SortedAnswers returns the guessed answers in a stable display order.
// Feed delivery order is not meaningful, so display sorts alphabetically.
func (s Snapshot) SortedAnswers() []string {
	out := slices.Clone(s.GuessedAnswers)
	slices.Sort(out)
	return out
}

// Clone returns a deep copy safe to hand to readers.
func (s Snapshot) Clone() Snapshot {
	s.GuessedAnswers = slices.Clone(s.GuessedAnswers)
	return s
}

// Participant is one user's standing within a room. Mutated only from the
// participant row feed, never from local guesses.
type Participant struct {
	UserID  string   `json:"user_id"`
	Score   int      `json:"score"`
	Answers []string `json:"answers"`
}

// Clone returns a deep copy safe to hand to readers.
func (p Participant) Clone() Participant {
	p.Answers = slices.Clone(p.Answers)
	return p
}

// Normalize folds a guess into canonical form: lowercase, trimmed.
func Normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

type RejectReason string

const (
	RejectTooShort       RejectReason = "too_short"
	RejectMissingLetter  RejectReason = "missing_required_letter"
	RejectAlreadyGuessed RejectReason = "already_guessed"
	RejectNotAWord       RejectReason = "not_a_valid_word"
	RejectTransport      RejectReason = "transport_error"
)

// ScoreResult is the terminal outcome of one guess submission.
type ScoreResult struct {
	Accepted bool
	Score    int
	Reason   RejectReason
}

func Accepted(score int) ScoreResult {
	return ScoreResult{Accepted: true, Score: score}
}

func Rejected(reason RejectReason) ScoreResult {
	return ScoreResult{Reason: reason}
}

// Precheck runs the cheap local validations in fixed order, short-circuiting
// at the first failure. An empty reason means the guess is worth a round
// trip; only the gateway can say whether it actually scores.
func Precheck(s Snapshot, word string) RejectReason {
	g := Normalize(word)
	if len(g) < MinGuessLength {
		return RejectTooShort
	}
	if r := s.RequiredLetter(); r != "" && !strings.Contains(g, r) {
		return RejectMissingLetter
	}
	if s.HasGuessed(g) {
		return RejectAlreadyGuessed
	}
	return ""
}

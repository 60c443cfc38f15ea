package game

import (
	"strings"
	"testing"
)

func snapshotWith(puzzle string, guessed ...string) Snapshot {
	return Snapshot{
		ID:             "room-1",
		RoomCode:       "ABCD",
		Puzzle:         puzzle,
		GuessedAnswers: guessed,
	}
}

func TestPrecheckOrderAndShortCircuit(t *testing.T) {
	cases := []struct {
		name    string
		puzzle  string
		guessed []string
		word    string
		want    RejectReason
	}{
		{
			name:   "too short rejects before anything else",
			puzzle: "zbcdefg",
			word:   "cat",
			want:   RejectTooShort,
		},
		{
			name:   "missing required letter",
			puzzle: "zbcdefg",
			word:   "bead",
			want:   RejectMissingLetter,
		},
		{
			name:    "already guessed, case insensitive",
			puzzle:  "abcdefg",
			guessed: []string{"fade"},
			word:    "FaDe",
			want:    RejectAlreadyGuessed,
		},
		{
			name:   "clean guess passes prechecks",
			puzzle: "abcdefg",
			word:   "abcde",
			want:   "",
		},
		{
			name:   "required letter check is case insensitive",
			puzzle: "Abcdefg",
			word:   "badge",
			want:   "",
		},
		{
			name:   "empty guess is too short",
			puzzle: "abcdefg",
			word:   "",
			want:   RejectTooShort,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Precheck(snapshotWith(tc.puzzle, tc.guessed...), tc.word)
			if got != tc.want {
				t.Fatalf("Precheck(%q) = %q, want %q", tc.word, got, tc.want)
			}
		})
	}
}

func TestRequiredLetter(t *testing.T) {
	s := snapshotWith("Xbcdefg")
	if got := s.RequiredLetter(); got != "x" {
		t.Fatalf("RequiredLetter() = %q, want %q", got, "x")
	}
	if got := (Snapshot{}).RequiredLetter(); got != "" {
		t.Fatalf("empty puzzle RequiredLetter() = %q, want empty", got)
	}
}

func TestHasLetter(t *testing.T) {
	s := snapshotWith("abcdefg")
	if !s.HasLetter("C") {
		t.Fatalf("expected puzzle to offer 'C'")
	}
	if s.HasLetter("z") {
		t.Fatalf("did not expect puzzle to offer 'z'")
	}
	if s.HasLetter("") {
		t.Fatalf("empty letter must not match")
	}
}

func TestSortedAnswersIsStableAndNonMutating(t *testing.T) {
	s := snapshotWith("abcdefg", "face", "bead", "cafe")
	got := s.SortedAnswers()
	want := []string{"bead", "cafe", "face"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SortedAnswers() = %v, want %v", got, want)
		}
	}
	if s.GuessedAnswers[0] != "face" {
		t.Fatalf("SortedAnswers must not reorder the snapshot itself")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := snapshotWith("abcdefg", "face")
	c := s.Clone()
	c.GuessedAnswers[0] = "bead"
	if s.GuessedAnswers[0] != "face" {
		t.Fatalf("Clone shares backing array with original")
	}
}

func TestRejectedMessageCoversEveryReason(t *testing.T) {
	reasons := []RejectReason{
		RejectTooShort, RejectMissingLetter, RejectAlreadyGuessed,
		RejectNotAWord, RejectTransport,
	}
	seen := make(map[string]bool)
	for _, r := range reasons {
		msg := RejectedMessage(r)
		if msg == "" {
			t.Fatalf("no message for reason %q", r)
		}
		if seen[msg] {
			t.Fatalf("duplicate message %q", msg)
		}
		seen[msg] = true
	}
}

func TestAcceptedMessageCarriesScore(t *testing.T) {
	msg := AcceptedMessage(12)
	if !strings.HasPrefix(msg, "12 points!") {
		t.Fatalf("AcceptedMessage(12) = %q, want '12 points!' prefix", msg)
	}
}

func TestGuessedMessageFallsBackToSomeone(t *testing.T) {
	if got := GuessedMessage("", "hive"); got != `Someone guessed "hive"!` {
		t.Fatalf("GuessedMessage fallback = %q", got)
	}
	if got := GuessedMessage("Bee1", "hive"); got != `Bee1 guessed "hive"!` {
		t.Fatalf("GuessedMessage = %q", got)
	}
}

package game

import (
	"fmt"
	"math/rand"
)

// User-facing copy for guess outcomes. Every terminal outcome maps to
// exactly one message.
const (
	MsgTooShort           = "Guess must be at least 4 letters"
	MsgMissingLetter      = "Guess must contain the required letter"
	MsgAlreadyGuessed     = "Someone already guessed that"
	MsgNotFound           = "No matching answers"
	MsgTransportError     = "Error scoring guess"
	MsgMissingWordThanks  = "Missing word reported. TY!"
	MsgMissingWordError   = "Error reporting missing word"
	MsgNewParticipant     = "A new user joined the game!"
	MsgReconnecting       = "Reconnecting..."
)

var praise = []string{
	"Correct!", "Nice!", "Great!", "Awesome!", "Amazing!", "You got it!",
	"Way to go!", "Nailed it!", "Got one!", "Ayyyy!", "Let's go!",
}

// AcceptedMessage renders the success toast for a scored guess.
func AcceptedMessage(score int) string {
	return fmt.Sprintf("%d points! %s", score, praise[rand.Intn(len(praise))])
}

// RejectedMessage maps a rejection reason to its user-facing copy.
func RejectedMessage(reason RejectReason) string {
	switch reason {
	case RejectTooShort:
		return MsgTooShort
	case RejectMissingLetter:
		return MsgMissingLetter
	case RejectAlreadyGuessed:
		return MsgAlreadyGuessed
	case RejectNotAWord:
		return MsgNotFound
	default:
		return MsgTransportError
	}
}

// GuessedMessage renders the peer toast for a broadcast guess announcement.
func GuessedMessage(name, word string) string {
	if name == "" {
		name = "Someone"
	}
	return fmt.Sprintf("%s guessed %q!", name, word)
}

package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hivewords/hive-sync/internal/game"
	"github.com/hivewords/hive-sync/internal/hub"
	"github.com/hivewords/hive-sync/internal/room"
)

// GenerateCode returns a short human-shareable room code.
func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 4)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createRoomRequest struct {
	Puzzle  string         `json:"puzzle"`
	Answers map[string]int `json:"answers"`
}

func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if len(req.Puzzle) != game.PuzzleLength {
			http.Error(w, "puzzle must be 7 letters", http.StatusBadRequest)
			return
		}
		if len(req.Answers) == 0 {
			http.Error(w, "answer key required", http.StatusBadRequest)
			return
		}
		key := make(map[string]int, len(req.Answers))
		for word, score := range req.Answers {
			if score <= 0 {
				http.Error(w, "answer scores must be positive", http.StatusBadRequest)
				return
			}
			key[game.Normalize(word)] = score
		}

		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			reply := make(chan *room.Room, 1)
			h.Inbox() <- hub.GetRoom{Code: c, Reply: reply}
			if <-reply == nil {
				code = c
				break
			}
			log.Debug("collision on code, regenerating", zap.String("code", c))
		}

		cfg := room.Config{
			ID:        uuid.NewString(),
			Code:      code,
			Puzzle:    game.Normalize(req.Puzzle),
			AnswerKey: key,
		}
		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.CreateRoom{Cfg: cfg, Reply: reply}
		if <-reply == nil {
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
			ID   string `json:"id"`
		}{Code: code, ID: cfg.ID})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

package session

import (
	"github.com/hivewords/hive-sync/internal/gateway"
)

// announcePresence opens the presence feed and announces the local user
// exactly once, after the subscription is confirmed live (a track sent
// before confirmation is silently dropped by the backend). There is no
// leave announcement; absence from the next full sync is the signal.
func (s *Session) announcePresence(roomID string) (gateway.PresenceSub, error) {
	psub, err := s.gw.SubscribePresence(roomID, func(roster []gateway.PresenceEntry) {
		s.deliver(presenceSynced{roster: roster})
	})
	if err != nil {
		return nil, err
	}
	psub.Track(gateway.PresenceEntry{
		UserID:      s.opts.UserID,
		DisplayName: s.opts.DisplayName,
	})
	return psub, nil
}

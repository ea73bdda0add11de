package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (s *Store) botOffsetPath() string { return filepath.Join(s.stateDir(), "bot_offset") }

// GetBotOffset returns the next Telegram update ID to request (one past the
// last processed update), defaulting to 0.
func (s *Store) GetBotOffset() (int64, error) {
	return s.readEpoch(s.botOffsetPath())
}

// SetBotOffset persists the next Telegram update ID to request.
func (s *Store) SetBotOffset(offset int64) error {
	return writeString(s.botOffsetPath(), strconv.FormatInt(offset, 10))
}

func (s *Store) botSessionPath(userID int64) string {
	return filepath.Join(s.stateDir(), fmt.Sprintf("bot_session_%d", userID))
}

// LoadBotSession unmarshals the pending multi-step admin flow for userID
// into v. If no session file exists, v is left untouched and ok is false.
func (s *Store) LoadBotSession(userID int64, v any) (ok bool, err error) {
	path := s.botSessionPath(userID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("store: read bot session: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("store: unmarshal bot session: %w", err)
	}
	return true, nil
}

// SaveBotSession persists a pending multi-step admin flow for userID.
func (s *Store) SaveBotSession(userID int64, v any) error {
	return writeJSONAtomic(s.botSessionPath(userID), v)
}

// ClearBotSession removes the pending flow for userID, if any.
func (s *Store) ClearBotSession(userID int64) error {
	err := os.Remove(s.botSessionPath(userID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: clear bot session: %w", err)
	}
	return nil
}

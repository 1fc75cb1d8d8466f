package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/livedesk-ai/livedesk/internal/store"
)

// Service wraps the user-state store with the transition rules.
//
// Reads and writes for one user are NOT serialized here: two concurrent
// operations on the same user (inbound message vs. operator toggle) race,
// and the final mode is whichever write commits last. Platform webhooks
// arrive per user in practice, so the race window is accepted.
type Service struct {
	users store.UserStateStore
}

func NewService(users store.UserStateStore) *Service {
	return &Service{users: users}
}

// GetOrCreate loads the user's state, creating a bot-mode record on first
// contact and refreshing profile fields when non-empty.
func (s *Service) GetOrCreate(ctx context.Context, userID, displayName, pictureURL string) (*store.UserState, error) {
	st, err := s.users.GetOrCreate(ctx, userID, displayName, pictureURL)
	if err != nil {
		return nil, fmt.Errorf("get or create user state: %w", err)
	}
	return st, nil
}

// Apply runs one transition event for the user and persists the result.
// Returns the new mode and whether anything changed. A no-op edge (e.g. a
// live_manual user typing the handoff phrase again) is not an error.
func (s *Service) Apply(ctx context.Context, userID string, ev TransitionEvent) (store.Mode, bool, error) {
	st, err := s.users.Get(ctx, userID)
	if err != nil {
		return "", false, fmt.Errorf("load user state: %w", err)
	}
	next, changed := Transition(st.Mode, ev)
	if !changed {
		return st.Mode, false, nil
	}
	if err := s.users.SetMode(ctx, userID, next); err != nil {
		return st.Mode, false, fmt.Errorf("set mode: %w", err)
	}
	slog.Info("chat mode changed",
		"user_id", userID, "from", st.Mode, "to", next, "event", ev)
	return next, true, nil
}

// ForceMode writes a mode directly, bypassing the edge rules. Used only by
// the unfollow handler, which always resets a departed user to bot mode.
func (s *Service) ForceMode(ctx context.Context, userID string, mode store.Mode) error {
	return s.users.SetMode(ctx, userID, mode)
}

// Touch records message activity for the user.
func (s *Service) Touch(ctx context.Context, userID string) {
	if err := s.users.TouchActivity(ctx, userID, time.Now()); err != nil {
		slog.Warn("touch activity failed", "user_id", userID, "error", err)
	}
}

// MatchesHandoff reports whether text contains any configured handoff
// phrase, case-insensitively. The check runs regardless of current mode.
func MatchesHandoff(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

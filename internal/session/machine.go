// Package session owns the per-user chat-mode state machine.
//
// Three modes exist: bot (automated replies), live_manual (a human operator
// answers), and live_auto (routed to operators for visibility while the bot
// keeps answering). Transitions happen on exactly five edges; everything
// else is a no-op.
package session

import (
	"github.com/livedesk-ai/livedesk/internal/store"
)

// TransitionEvent is the cause of a mode change.
type TransitionEvent string

const (
	// EventHandoff fires when a user message matches a handoff phrase or an
	// operator forces a handoff.
	EventHandoff TransitionEvent = "handoff"
	// EventEndChat fires when an operator ends the conversation.
	EventEndChat TransitionEvent = "end_chat"
	// EventToggle fires when an operator switches between manual and auto.
	EventToggle TransitionEvent = "toggle"
)

// Transition returns the mode after applying ev to current, and whether the
// mode actually changed. Unknown events and illegal edges leave the mode
// untouched. live_auto is never reachable directly from bot.
func Transition(current store.Mode, ev TransitionEvent) (store.Mode, bool) {
	switch ev {
	case EventHandoff:
		if current == store.ModeBot {
			return store.ModeLiveManual, true
		}
	case EventEndChat:
		if current == store.ModeLiveManual || current == store.ModeLiveAuto {
			return store.ModeBot, true
		}
	case EventToggle:
		switch current {
		case store.ModeLiveManual:
			return store.ModeLiveAuto, true
		case store.ModeLiveAuto:
			return store.ModeLiveManual, true
		}
	}
	return current, false
}

// ShouldAutoReply reports whether the bot answers messages in this mode.
func ShouldAutoReply(m store.Mode) bool {
	return m == store.ModeBot || m == store.ModeLiveAuto
}

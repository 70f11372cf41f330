// Package tracker canonicalizes navigation routes into screen views and
// forwards them to the analytics pipeline, suppressing consecutive
// duplicates per user.
package tracker

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Sink receives canonical screen views.
type Sink interface {
	ScreenView(userID, screen, path string)
}

// exact route names. Unlisted exact paths fall through to the prefix rules.
var exactScreens = map[string]string{
	"/":              "Home",
	"/feed":          "Feed",
	"/chat":          "Chats",
	"/directory":     "Directory",
	"/notifications": "Notifications",
	"/profile":       "Profile",
	"/settings":      "Settings",
	"/assist":        "Assist",
	"/admin":         "Admin",
}

// prefix route names, matched after the exact table. Order matters only for
// documentation; prefixes are disjoint.
var prefixScreens = []struct {
	prefix string
	screen string
}{
	{"/chat/", "ChatConversation"},
	{"/files/", "FileViewer"},
	{"/profile/", "MemberProfile"},
	{"/product/", "ProductDetail"},
}

// auth and onboarding routes never produce screen views.
var skippedRoutes = map[string]bool{
	"/login":           true,
	"/signup":          true,
	"/onboarding":      true,
	"/forgot-password": true,
	"/verify":          true,
}

// Tracker dedupes and canonicalizes route changes.
type Tracker struct {
	sink   Sink
	logger *zap.Logger

	mu   sync.Mutex
	last map[string]string // user id -> last emitted screen
}

// NewTracker creates a route tracker emitting into sink.
func NewTracker(sink Sink, logger *zap.Logger) *Tracker {
	return &Tracker{
		sink:   sink,
		logger: logger,
		last:   make(map[string]string),
	}
}

// CanonicalScreen maps a route path to its screen name. The second return
// is false for routes that must not be tracked.
func CanonicalScreen(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	// Query strings never count toward identity.
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if skippedRoutes[path] {
		return "", false
	}
	if name, ok := exactScreens[path]; ok {
		return name, true
	}
	for _, p := range prefixScreens {
		if strings.HasPrefix(path, p.prefix) {
			return p.screen, true
		}
	}
	// Unmatched dynamic routes keep the raw path as their name so new
	// screens show up in the data before this table learns about them.
	return path, true
}

// TrackRoute records one navigation. Consecutive views of the same screen
// collapse into the first one; revisiting a screen after leaving it emits
// again.
func (t *Tracker) TrackRoute(userID, path string) {
	screen, ok := CanonicalScreen(path)
	if !ok {
		return
	}

	t.mu.Lock()
	if t.last[userID] == screen {
		t.mu.Unlock()
		return
	}
	t.last[userID] = screen
	t.mu.Unlock()

	t.logger.Debug("screen view", zap.String("screen", screen), zap.String("path", path))
	t.sink.ScreenView(userID, screen, path)
}

// Reset clears the dedupe state for a user, e.g. on logout.
func (t *Tracker) Reset(userID string) {
	t.mu.Lock()
	delete(t.last, userID)
	t.mu.Unlock()
}

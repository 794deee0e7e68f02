// Package deeplink parses prayerfirst:// URIs and routes them once the app
// is ready to act on them.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	Scheme = "prayerfirst"

	// PrayerURL opens the prayer flow.
	PrayerURL = Scheme + "://prayer"

	// DataKeyURL is the notification payload key carrying the deep link.
	DataKeyURL = "url"
)

// Route is a parsed deep-link destination.
type Route string

const RoutePrayer Route = "prayer"

var (
	ErrScheme = errors.New("deeplink: unsupported scheme")
	ErrRoute  = errors.New("deeplink: unknown route")
)

// Parse accepts both host form (prayerfirst://prayer) and path form
// (prayerfirst:///prayer, prayerfirst:prayer).
func Parse(raw string) (Route, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("deeplink: %w", err)
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return "", fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}
	target := u.Host
	if target == "" {
		target = u.Opaque
	}
	if target == "" {
		target = strings.Trim(u.Path, "/")
	}
	switch Route(strings.ToLower(target)) {
	case RoutePrayer:
		return RoutePrayer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrRoute, target)
	}
}

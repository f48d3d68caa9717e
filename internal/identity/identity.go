// Package identity encodes and decodes platform-qualified user identifiers
// of the form "platform:rawId".
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedIdentifier is returned when an identifier has no platform
// prefix, an unknown platform, or an empty raw id.
var ErrMalformedIdentifier = errors.New("identity: malformed identifier")

// Platform is a chat platform Marquee can talk to.
type Platform string

// Supported platforms.
const (
	SMS      Platform = "sms"
	Discord  Platform = "discord"
	Slack    Platform = "slack"
	Telegram Platform = "telegram"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{SMS, Discord, Slack, Telegram}

// Valid reports whether p is a member of the platform enum.
func (p Platform) Valid() bool {
	switch p {
	case SMS, Discord, Slack, Telegram:
		return true
	}
	return false
}

// ID is a platform-qualified user identifier ("sms:+15551234567").
type ID string

// Parts is the decoded form of an ID.
type Parts struct {
	Platform Platform
	RawID    string
}

// Parse splits id on its first colon. The raw id may itself contain colons.
func Parse(id string) (Parts, error) {
	platform, raw, ok := strings.Cut(id, ":")
	if !ok {
		return Parts{}, fmt.Errorf("%w: %q has no platform prefix", ErrMalformedIdentifier, id)
	}
	p := Platform(platform)
	if !p.Valid() {
		return Parts{}, fmt.Errorf("%w: unknown platform %q", ErrMalformedIdentifier, platform)
	}
	if raw == "" {
		return Parts{}, fmt.Errorf("%w: %q has an empty raw id", ErrMalformedIdentifier, id)
	}
	return Parts{Platform: p, RawID: raw}, nil
}

// Build joins a platform and raw id. Anything Build accepts, Parse splits
// back into the same parts.
func Build(platform Platform, rawID string) (ID, error) {
	if !platform.Valid() {
		return "", fmt.Errorf("%w: unknown platform %q", ErrMalformedIdentifier, platform)
	}
	if rawID == "" {
		return "", fmt.Errorf("%w: empty raw id for %s", ErrMalformedIdentifier, platform)
	}
	return ID(string(platform) + ":" + rawID), nil
}

// Platform returns the platform prefix of id, or "" if id is malformed.
func (id ID) Platform() Platform {
	parts, err := Parse(string(id))
	if err != nil {
		return ""
	}
	return parts.Platform
}

// RawID returns the part after the first colon, or "" if id is malformed.
func (id ID) RawID() string {
	parts, err := Parse(string(id))
	if err != nil {
		return ""
	}
	return parts.RawID
}

func (id ID) String() string { return string(id) }

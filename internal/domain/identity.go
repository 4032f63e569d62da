package domain

import (
	"strings"

	"github.com/bluesky-social/indigo/atproto/syntax"
)

// ValidateIdentifier rejects malformed account identifiers before any network
// call is made. It returns the identifier in the form the platform client
// expects.
func ValidateIdentifier(platform Platform, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	switch platform {
	case PlatformBluesky:
		ident := strings.TrimPrefix(identifier, "@")
		if _, err := syntax.ParseAtIdentifier(ident); err != nil {
			return "", &ConfigurationError{Platform: platform, Input: identifier, Reason: "not a handle or DID"}
		}
		return ident, nil
	case PlatformMastodon:
		user, host, err := ParseMastodonHandle(identifier)
		if err != nil {
			return "", err
		}
		return "@" + user + "@" + host, nil
	}
	return "", &ConfigurationError{Platform: platform, Input: identifier, Reason: "unknown platform"}
}

// ParseMastodonHandle splits @user@instance. The host part is required.
func ParseMastodonHandle(handle string) (user, host string, err error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	user, host, ok := strings.Cut(trimmed, "@")
	switch {
	case !ok || host == "":
		return "", "", &ConfigurationError{Platform: PlatformMastodon, Input: handle, Reason: "expected @user@instance"}
	case user == "":
		return "", "", &ConfigurationError{Platform: PlatformMastodon, Input: handle, Reason: "missing user name"}
	case strings.ContainsAny(host, "@/ "):
		return "", "", &ConfigurationError{Platform: PlatformMastodon, Input: handle, Reason: "malformed instance host"}
	}
	return user, strings.ToLower(host), nil
}

// Package media holds the core domain types shared across the service:
// platforms, media kinds, and the filename/URL hygiene rules applied to
// everything that reaches disk.
package media

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Platform identifies the source site of a download URL.
type Platform string

// Supported platforms, detected by hostname.
const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformSnapchat  Platform = "snapchat"
	PlatformUnknown   Platform = "unknown"
)

// Kind classifies what the client asked for.
type Kind string

// Media kinds a job can request.
const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindPhoto Kind = "photo"
)

// Clock abstracts time.Now so stores, reapers and streams are testable.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates unique job identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// platformHosts maps hostname suffixes to platforms. Order within a slice
// does not matter; matching is by suffix so subdomains resolve too.
var platformHosts = map[Platform][]string{
	PlatformInstagram: {"instagram.com"},
	PlatformFacebook:  {"facebook.com", "fb.watch", "fb.com"},
	PlatformYouTube:   {"youtube.com", "youtu.be"},
	PlatformTwitter:   {"twitter.com", "x.com", "t.co"},
	PlatformLinkedIn:  {"linkedin.com"},
	PlatformSnapchat:  {"snapchat.com", "snap.com"},
}

// DetectPlatform resolves the platform for a URL by hostname match.
// It returns PlatformUnknown for hosts outside the known set or for
// unparseable URLs.
func DetectPlatform(rawURL string) Platform {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PlatformUnknown
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return PlatformUnknown
	}
	for platform, hosts := range platformHosts {
		for _, h := range hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return platform
			}
		}
	}
	return PlatformUnknown
}

// SupportedPlatformsMessage is the validation error returned for URLs from
// hosts outside the known set.
const SupportedPlatformsMessage = "Unsupported platform. Please use Instagram, Facebook, YouTube, Twitter/X, LinkedIn, or Snapchat URLs."

var leadingGarbage = regexp.MustCompile(`^x+https?://`)

// SanitizeURL trims whitespace and strips the stray prefix some clients
// paste in front of the scheme (e.g. "xxhttps://...").
func SanitizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	return leadingGarbage.ReplaceAllString(raw, "https://")
}

var (
	illegalFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	repeatedWhitespace   = regexp.MustCompile(`\s+`)
)

// maxFilenameLen caps sanitized basenames so they stay portable.
const maxFilenameLen = 180

// SafeFilename rewrites a basename so it is legal on common filesystems:
// illegal characters become underscores, runs of whitespace collapse to one
// space, and the result is truncated to 180 characters.
func SafeFilename(name string) string {
	name = illegalFilenameChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(repeatedWhitespace.ReplaceAllString(name, " "))
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	return name
}

// kindExtensions lists candidate artifact extensions per kind, in the
// priority order the resolver probes them.
var kindExtensions = map[Kind][]string{
	KindAudio: {".mp3", ".m4a", ".opus", ".ogg", ".wav", ".aac"},
	KindPhoto: {".jpg", ".jpeg", ".png", ".webp", ".gif"},
	KindVideo: {".mp4", ".mkv", ".webm", ".mov", ".avi", ".flv"},
}

// Extensions returns the candidate extension set for a kind, most likely
// first. Unrecognized kinds fall back to the video set.
func Extensions(k Kind) []string {
	if exts, ok := kindExtensions[k]; ok {
		return exts
	}
	return kindExtensions[KindVideo]
}

// ParseKind normalizes the client-supplied media type string. Audio accepts
// a few spellings; reels and shorts are videos; anything unrecognized is
// treated as video, matching the permissive request contract.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio", "audio only", "audio-only":
		return KindAudio
	case "photo", "image":
		return KindPhoto
	default:
		return KindVideo
	}
}

package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectPlatform_KnownHosts(t *testing.T) {
	t.Parallel()

	cases := map[string]Platform{
		"https://www.instagram.com/p/abc123/":       PlatformInstagram,
		"https://instagram.com/reel/xyz":            PlatformInstagram,
		"https://www.facebook.com/watch?v=1":        PlatformFacebook,
		"https://fb.watch/abcd":                     PlatformFacebook,
		"https://www.youtube.com/watch?v=dQw4w9WgX": PlatformYouTube,
		"https://youtu.be/dQw4w9WgX":                PlatformYouTube,
		"https://twitter.com/user/status/1":         PlatformTwitter,
		"https://x.com/user/status/1":               PlatformTwitter,
		"https://www.linkedin.com/posts/abc":        PlatformLinkedIn,
		"https://www.snapchat.com/spotlight/abc":    PlatformSnapchat,
	}
	for url, want := range cases {
		require.Equal(t, want, DetectPlatform(url), "url %s", url)
	}
}

func TestDetectPlatform_Unknown(t *testing.T) {
	t.Parallel()

	require.Equal(t, PlatformUnknown, DetectPlatform("https://example.com/video"))
	require.Equal(t, PlatformUnknown, DetectPlatform("not a url"))
	require.Equal(t, PlatformUnknown, DetectPlatform(""))
	// Hostname matching, not substring: a lookalike host is rejected.
	require.Equal(t, PlatformUnknown, DetectPlatform("https://notyoutube.com/watch"))
	require.Equal(t, PlatformUnknown, DetectPlatform("https://evil.com/youtube.com/x"))
}

func TestSanitizeURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://youtu.be/abc", SanitizeURL("  https://youtu.be/abc \n"))
	require.Equal(t, "https://youtu.be/abc", SanitizeURL("xxhttps://youtu.be/abc"))
	require.Equal(t, "https://youtu.be/abc", SanitizeURL("xhttp://youtu.be/abc"))
	require.Equal(t, "", SanitizeURL("   "))
}

func TestSafeFilename(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a_b_c", SafeFilename(`a<b>c`))
	require.Equal(t, "one two", SafeFilename("one \t\n two"))
	require.Equal(t, "clip_", SafeFilename("clip?"))

	long := strings.Repeat("x", 400)
	require.Len(t, SafeFilename(long), 180)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindAudio, ParseKind("Audio"))
	require.Equal(t, KindAudio, ParseKind("audio only"))
	require.Equal(t, KindAudio, ParseKind("AUDIO-ONLY"))
	require.Equal(t, KindPhoto, ParseKind("Photo"))
	require.Equal(t, KindVideo, ParseKind("Video"))
	require.Equal(t, KindVideo, ParseKind("Reel"))
	require.Equal(t, KindVideo, ParseKind(""))
}

func TestExtensions_PriorityOrder(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{".mp3", ".m4a", ".opus", ".ogg", ".wav", ".aac"}, Extensions(KindAudio))
	require.Equal(t, []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}, Extensions(KindPhoto))
	require.Equal(t, []string{".mp4", ".mkv", ".webm", ".mov", ".avi", ".flv"}, Extensions(KindVideo))
	// Unrecognized kinds fall back to video.
	require.Equal(t, Extensions(KindVideo), Extensions(Kind("bogus")))
}

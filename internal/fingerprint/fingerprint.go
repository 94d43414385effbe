// Package fingerprint classifies client-supplied identifier strings into a
// coarse device/browser/OS triple. Pure functions, no state.
package fingerprint

import (
	"strings"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/domain"
)

const Unknown = "unknown"

// Parse classifies a client identifier string (typically a User-Agent value).
// An empty or unrecognized string yields "unknown" in every field.
func Parse(hint string) domain.DeviceInfo {
	h := strings.ToLower(hint)
	if strings.TrimSpace(h) == "" {
		return domain.DeviceInfo{Device: Unknown, Browser: Unknown, OS: Unknown}
	}
	return domain.DeviceInfo{
		Device:  classifyDevice(h),
		Browser: classifyBrowser(h),
		OS:      classifyOS(h),
	}
}

func classifyDevice(h string) string {
	switch {
	case strings.Contains(h, "ipad") || strings.Contains(h, "tablet"):
		return "tablet"
	case strings.Contains(h, "mobile") || strings.Contains(h, "iphone") || strings.Contains(h, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}

func classifyBrowser(h string) string {
	// Order matters: Edge and Chrome both advertise "chrome", Chrome and
	// Safari both advertise "safari".
	switch {
	case strings.Contains(h, "edg/") || strings.Contains(h, "edge"):
		return "edge"
	case strings.Contains(h, "opr/") || strings.Contains(h, "opera"):
		return "opera"
	case strings.Contains(h, "chrome") || strings.Contains(h, "crios"):
		return "chrome"
	case strings.Contains(h, "firefox") || strings.Contains(h, "fxios"):
		return "firefox"
	case strings.Contains(h, "safari"):
		return "safari"
	default:
		return Unknown
	}
}

func classifyOS(h string) string {
	switch {
	case strings.Contains(h, "android"):
		return "android"
	case strings.Contains(h, "iphone") || strings.Contains(h, "ipad") || strings.Contains(h, "ios"):
		return "ios"
	case strings.Contains(h, "windows"):
		return "windows"
	case strings.Contains(h, "mac os") || strings.Contains(h, "macintosh"):
		return "macos"
	case strings.Contains(h, "linux"):
		return "linux"
	default:
		return Unknown
	}
}

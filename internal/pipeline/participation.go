package pipeline

import (
	"regexp"

	"github.com/engagic/engagic/internal/store"
)

// Patterns are intentionally loose: agenda text is inconsistently
// formatted across hundreds of vendor templates, so the first plausible
// match wins rather than requiring a strict, single canonical format.
var (
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern  = regexp.MustCompile(`\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}`)
	zoomPattern   = regexp.MustCompile(`https?://[a-zA-Z0-9.\-]*zoom\.us/j/[a-zA-Z0-9?=&]+`)
	teamsPattern  = regexp.MustCompile(`https?://teams\.microsoft\.com/[^\s)>\]]+`)
	dialInPattern = regexp.MustCompile(`(?i)(?:dial[- ]?in|call[- ]?in)[^\n]{0,40}?(\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4})`)
)

// ParseParticipationInfo pulls contact and join information out of
// extracted packet text using loose regex rules, returning whatever subset
// it finds; all fields are optional and a caller gets the zero value when
// nothing matches. DialIn and Phone are kept distinct: DialIn only fires
// when a number is explicitly labeled as a call-in line, while Phone is
// whatever phone-shaped number appears first in the text.
func ParseParticipationInfo(text string) store.Participation {
	var p store.Participation

	if m := emailPattern.FindString(text); m != "" {
		p.Email = m
	}
	if m := phonePattern.FindString(text); m != "" {
		p.Phone = m
	}
	if m := dialInPattern.FindStringSubmatch(text); len(m) == 2 {
		p.DialIn = m[1]
	}
	if m := zoomPattern.FindString(text); m != "" {
		p.ZoomURL = m
	} else if m := teamsPattern.FindString(text); m != "" {
		p.ZoomURL = m
	}

	return p
}

package pipeline

import "testing"

func TestParseParticipationInfoExtractsEmail(t *testing.T) {
	p := ParseParticipationInfo("Questions? Contact the city clerk at clerk@springfield.gov for more info.")
	if p.Email != "clerk@springfield.gov" {
		t.Errorf("unexpected email: %q", p.Email)
	}
}

func TestParseParticipationInfoExtractsZoomURL(t *testing.T) {
	p := ParseParticipationInfo("Join via Zoom: https://springfield.zoom.us/j/123456789?pwd=abc for the virtual session.")
	if p.ZoomURL != "https://springfield.zoom.us/j/123456789?pwd=abc" {
		t.Errorf("unexpected zoom url: %q", p.ZoomURL)
	}
}

func TestParseParticipationInfoExtractsTeamsURL(t *testing.T) {
	p := ParseParticipationInfo("Remote attendance: https://teams.microsoft.com/l/meetup-join/abc123")
	if p.ZoomURL != "https://teams.microsoft.com/l/meetup-join/abc123" {
		t.Errorf("unexpected teams url: %q", p.ZoomURL)
	}
}

func TestParseParticipationInfoExtractsDialIn(t *testing.T) {
	p := ParseParticipationInfo("To listen by phone, dial-in at (555) 867-5309 during the meeting.")
	if p.DialIn != "(555) 867-5309" {
		t.Errorf("unexpected dial-in: %q", p.DialIn)
	}
}

func TestParseParticipationInfoExtractsGenericPhone(t *testing.T) {
	p := ParseParticipationInfo("For accommodations, call 555-123-4567 at least 48 hours in advance.")
	if p.Phone != "555-123-4567" {
		t.Errorf("unexpected phone: %q", p.Phone)
	}
}

func TestParseParticipationInfoReturnsZeroValueWhenNothingMatches(t *testing.T) {
	p := ParseParticipationInfo("This agenda contains no contact information whatsoever.")
	if p.Email != "" || p.Phone != "" || p.ZoomURL != "" || p.DialIn != "" {
		t.Errorf("expected zero-value participation, got %+v", p)
	}
}

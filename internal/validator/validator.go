// Package validator checks that a meeting's packet URL actually belongs to
// the vendor domain configured for its city, guarding against cross-vendor
// slug confusion and malicious hosts appearing in synced packets.
package validator

import (
	"fmt"
	"net/url"
	"strings"
)

// Action is the disposition a validation check assigns to a candidate URL.
type Action string

const (
	ActionStore  Action = "store"
	ActionWarn   Action = "warn"
	ActionReject Action = "reject"
)

// Result is the outcome of validating one URL against a vendor's allow-list.
type Result struct {
	Valid   bool
	Action  Action
	Warning string
	Error   string
}

// domainsFor returns the allow-listed hosts for a vendor+slug pair. The
// slug is interpolated into vendor-specific subdomain patterns.
func domainsFor(vendor, slug string) []string {
	switch vendor {
	case "primegov":
		return []string{slug + ".primegov.com"}
	case "granicus":
		return []string{
			slug + ".granicus.com",
			"s3.amazonaws.com",
			"cloudfront.net",
			"legistar.granicus.com",
			"legistar1.granicus.com",
			"legistar2.granicus.com",
			"docs.google.com",
		}
	case "legistar":
		return []string{
			"legistar.granicus.com",
			"legistar1.granicus.com",
			"legistar2.granicus.com",
			"legistar3.granicus.com",
			slug + ".legistar1.com",
			slug + ".legistar.com",
			"docs.google.com",
		}
	case "civicclerk":
		return []string{slug + ".api.civicclerk.com"}
	case "novusagenda":
		return []string{slug + ".novusagenda.com"}
	case "civicplus":
		return []string{
			slug + ".civicplus.com",
			"granicus.com",
			"municodemeetings.com",
		}
	case "civicweb":
		return []string{slug + ".civicweb.net"}
	case "iqm2":
		return []string{slug + ".iqm2.com", "granicus.com"}
	case "municode":
		return []string{"municodemeetings.com", slug + ".municodemeetings.com"}
	case "escribe":
		return []string{slug + ".escribemeetings.com", "escribemeetings.com"}
	default:
		return nil
	}
}

// ValidatePacketURL checks packetURL's host against the allow-list for
// vendor+slug. A nil/empty URL is always valid (a meeting may lack a
// packet). Absolute and protocol-relative URLs are checked by substring
// host match; relative or malformed URLs can't be checked and are flagged
// for storage with a warning rather than rejected outright.
func ValidatePacketURL(packetURL, vendor, slug string) Result {
	if packetURL == "" {
		return Result{Valid: true, Action: ActionStore}
	}

	var domain string
	switch {
	case strings.HasPrefix(packetURL, "http"):
		parsed, err := url.Parse(packetURL)
		if err != nil {
			return Result{
				Valid:   true,
				Action:  ActionWarn,
				Warning: fmt.Sprintf("unparseable URL: %s", packetURL),
			}
		}
		domain = strings.ToLower(parsed.Host)
	case strings.HasPrefix(packetURL, "//"):
		parts := strings.SplitN(strings.TrimPrefix(packetURL, "//"), "/", 2)
		domain = strings.ToLower(parts[0])
	default:
		return Result{
			Valid:   true,
			Action:  ActionWarn,
			Warning: fmt.Sprintf("relative/malformed URL: %s", packetURL),
		}
	}

	expected := domainsFor(vendor, slug)
	if expected == nil {
		return Result{
			Valid:   true,
			Action:  ActionWarn,
			Warning: fmt.Sprintf("unknown vendor: %s", vendor),
		}
	}

	for _, candidate := range expected {
		if strings.Contains(domain, strings.ToLower(candidate)) {
			return Result{Valid: true, Action: ActionStore}
		}
	}

	return Result{
		Valid:  false,
		Action: ActionReject,
		Error: fmt.Sprintf("packet_url domain %q does not match vendor %q slug %q (expected one of %v)",
			domain, vendor, slug, expected),
	}
}

package api

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/engagic/engagic/internal/store"
)

const meetingsPerSearch = 50

var zipcodePattern = regexp.MustCompile(`^\d{5}$`)

// stateToken matches a trailing two-letter state abbreviation, optionally
// preceded by a comma, e.g. "Palo Alto, CA" or "Palo Alto CA".
var stateToken = regexp.MustCompile(`(?i)^(.*?),?\s+([A-Za-z]{2})$`)

// GET /search?q=<query>
//
// A single endpoint dispatches on the shape of the query: a 5-digit token is
// treated as a zipcode, a trailing two-letter token as a name+state pair,
// and anything else as a bare city name that may be ambiguous across states.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "search query cannot be empty")
		return
	}
	if s.cfg.API.MaxQueryLength > 0 && len(query) > s.cfg.API.MaxQueryLength {
		writeError(w, http.StatusBadRequest, "search query too long")
		return
	}

	if zipcodePattern.MatchString(query) {
		s.respondZipcodeSearch(w, query)
		return
	}

	if name, state, ok := splitNameState(query); ok {
		s.respondCitySearch(w, query, name, state)
		return
	}

	s.respondAmbiguousCitySearch(w, query, query)
}

// splitNameState extracts a city name and a trailing two-letter state
// abbreviation from a query like "Palo Alto, CA" or "Palo Alto CA". It
// returns ok=false when no state token is present.
func splitNameState(query string) (name, state string, ok bool) {
	m := stateToken.FindStringSubmatch(query)
	if m == nil {
		return "", "", false
	}
	name = strings.TrimSpace(m[1])
	if name == "" {
		return "", "", false
	}
	return name, strings.ToUpper(m[2]), true
}

func (s *Server) respondZipcodeSearch(w http.ResponseWriter, zipcode string) {
	city, err := s.store.GetCityByZipcode(zipcode)
	if errors.Is(err, store.ErrNotFound) || city == nil {
		writeJSON(w, map[string]any{
			"success": false,
			"message": "we're not covering that area yet, but we're always expanding",
			"query":   zipcode,
			"type":    "zipcode",
			"meetings": []store.Meeting{},
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "zipcode lookup failed")
		return
	}
	s.respondWithCityMeetings(w, *city, zipcode, "zipcode")
}

func (s *Server) respondCitySearch(w http.ResponseWriter, query, name, state string) {
	// Banana-first lookup handles multi-word names compressed in URLs
	// ("Mount Airy, NC" -> "mountairyNC") before falling back to the
	// name+state column match.
	city, err := s.store.GetCityByBanana(store.DeriveBanana(name, state))
	if errors.Is(err, store.ErrNotFound) {
		city, err = s.store.GetCityByNameState(name, state)
	}
	if errors.Is(err, store.ErrNotFound) || city == nil {
		writeJSON(w, map[string]any{
			"success":  false,
			"message":  "we're not covering " + name + ", " + state + " yet, but we're always expanding",
			"query":    query,
			"type":     "city",
			"meetings": []store.Meeting{},
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "city lookup failed")
		return
	}
	s.respondWithCityMeetings(w, *city, query, "city")
}

// respondAmbiguousCitySearch handles a bare city name with no state
// qualifier: a substring name match across every tracked state is ambiguous
// until the caller narrows it down with a state.
func (s *Server) respondAmbiguousCitySearch(w http.ResponseWriter, query, name string) {
	cities, err := s.store.GetCities("", "", name, "", 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "city lookup failed")
		return
	}

	switch len(cities) {
	case 0:
		writeJSON(w, map[string]any{
			"success":  false,
			"message":  "we're not covering " + name + " yet, but we're always expanding",
			"query":    query,
			"type":     "city_name",
			"meetings": []store.Meeting{},
		})
	case 1:
		s.respondWithCityMeetings(w, cities[0], query, "city_name")
	default:
		options := make([]map[string]any, 0, len(cities))
		for _, c := range cities {
			options = append(options, map[string]any{
				"city_name":    c.Name,
				"state":        c.State,
				"banana":       c.Banana,
				"vendor":       c.Vendor,
				"display_name": c.Name + ", " + c.State,
			})
		}
		writeJSON(w, map[string]any{
			"success":      false,
			"message":      "multiple cities match, please pick one",
			"query":        query,
			"type":         "city_name",
			"ambiguous":    true,
			"city_options": options,
			"meetings":     []store.Meeting{},
		})
	}
}

func (s *Server) respondWithCityMeetings(w http.ResponseWriter, city store.City, query, queryType string) {
	meetings, err := s.store.GetMeetingsForCities([]string{city.Banana}, meetingsPerSearch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load meetings")
		return
	}
	writeJSON(w, map[string]any{
		"success":  true,
		"city_name": city.Name,
		"state":    city.State,
		"banana":   city.Banana,
		"vendor":   city.Vendor,
		"cached":   len(meetings) > 0,
		"meetings": meetings,
		"query":    query,
		"type":     queryType,
	})
}

// GET /topics/{topic}
func (s *Server) handleTopicSearch(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimPrefix(r.URL.Path, "/topics/")
	topic = strings.TrimSpace(topic)
	if topic == "" {
		writeError(w, http.StatusBadRequest, "topic cannot be empty")
		return
	}

	meetings, err := s.store.GetMeetingsByTopic(topic, meetingsPerSearch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "topic lookup failed")
		return
	}
	writeJSON(w, map[string]any{
		"topic":    topic,
		"meetings": meetings,
		"count":    len(meetings),
	})
}

package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/engagic/engagic/internal/config"
	"github.com/engagic/engagic/internal/store"
	"github.com/engagic/engagic/internal/vendor"
)

type fakeAdapter struct {
	records []store.RawMeetingRecord
	err     error
}

func (f *fakeAdapter) Vendor() string { return "primegov" }
func (f *fakeAdapter) Slug() string   { return "springfield" }
func (f *fakeAdapter) FetchMeetings(ctx context.Context) ([]store.RawMeetingRecord, error) {
	return f.records, f.err
}

type fakeRegistry struct {
	adapters map[string]*fakeAdapter
	buildErr error
}

func (f *fakeRegistry) Build(ctx context.Context, vendorName, slug, baseURL string) (vendor.Adapter, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	a, ok := f.adapters[slug]
	if !ok {
		return nil, errors.New("no adapter configured for slug " + slug)
	}
	return a, nil
}

type fakeDrainer struct {
	drained int
}

func (f *fakeDrainer) DrainAll(ctx context.Context) { f.drained++ }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "engagic.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Sync.VendorGroupCooldown = config.Duration{Duration: time.Millisecond}
	for name, rate := range cfg.RateLimits {
		rate.MinInterval = config.Duration{Duration: 0}
		cfg.RateLimits[name] = rate
	}
	return cfg
}

func TestCandidatePriorityNeverSyncedAlwaysWins(t *testing.T) {
	never := candidate{neverSynced: true}
	busy := candidate{recentMeetings: 50, hoursSinceSynced: 1}
	if never.priority() <= busy.priority() {
		t.Fatalf("expected a never-synced city to outrank a busy synced one, got %v vs %v", never.priority(), busy.priority())
	}
}

func TestCandidatePriorityFormula(t *testing.T) {
	c := candidate{recentMeetings: 3, hoursSinceSynced: 48}
	got := c.priority()
	want := float64(3)*10 + 2.0 // min(48/24, 10) == 2
	if got != want {
		t.Errorf("priority() = %v, want %v", got, want)
	}
}

func TestCandidatePriorityPressureCapsAtTen(t *testing.T) {
	c := candidate{recentMeetings: 0, hoursSinceSynced: 24 * 30}
	if got := c.priority(); got != 10 {
		t.Errorf("priority() = %v, want 10 (pressure capped)", got)
	}
}

func TestCandidateDueTiers(t *testing.T) {
	cases := []struct {
		name    string
		cand    candidate
		wantDue bool
	}{
		{"never synced always due", candidate{neverSynced: true}, true},
		{"busy city just past 12h", candidate{recentMeetings: 8, hoursSinceSynced: 13}, true},
		{"busy city under 12h", candidate{recentMeetings: 8, hoursSinceSynced: 5}, false},
		{"moderate city past 24h", candidate{recentMeetings: 4, hoursSinceSynced: 25}, true},
		{"moderate city under 24h", candidate{recentMeetings: 4, hoursSinceSynced: 10}, false},
		{"quiet city past 168h", candidate{recentMeetings: 1, hoursSinceSynced: 200}, true},
		{"quiet city under 168h", candidate{recentMeetings: 1, hoursSinceSynced: 100}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cand.due(); got != tc.wantDue {
				t.Errorf("due() = %v, want %v", got, tc.wantDue)
			}
		})
	}
}

func seedCity(t *testing.T, db *store.Store, banana, vendorName, slug string) {
	t.Helper()
	if err := db.AddCity(store.City{Banana: banana, Name: banana, State: "IL", Vendor: vendorName, VendorSlug: slug}); err != nil {
		t.Fatalf("AddCity: %v", err)
	}
}

func TestRunSyncSkipsUnsupportedVendor(t *testing.T) {
	db := openTestStore(t)
	seedCity(t, db, "madeupIL", "not-a-real-vendor", "madeup")

	registry := &fakeRegistry{adapters: map[string]*fakeAdapter{}}
	s := New(config.NewManager(fastConfig()), db, registry, nil, slog.Default())

	s.RunSync(context.Background())

	cities, err := db.GetCities("", "", "", "active", 0)
	if err != nil {
		t.Fatalf("GetCities: %v", err)
	}
	if cities[0].LastSyncedAt.Valid {
		t.Fatal("expected unsupported-vendor city to never be marked synced")
	}
}

func TestRunSyncFetchesAndMarksCitySynced(t *testing.T) {
	db := openTestStore(t)
	seedCity(t, db, "springfieldIL", "primegov", "springfield")

	registry := &fakeRegistry{adapters: map[string]*fakeAdapter{
		"springfield": {records: []store.RawMeetingRecord{
			{ID: "m1", Title: "Regular Meeting", PacketURL: "https://springfield.primegov.com/packet.pdf"},
		}},
	}}
	s := New(config.NewManager(fastConfig()), db, registry, nil, slog.Default())

	s.RunSync(context.Background())

	cities, err := db.GetCities("", "", "", "active", 0)
	if err != nil {
		t.Fatalf("GetCities: %v", err)
	}
	if !cities[0].LastSyncedAt.Valid {
		t.Fatal("expected city to be marked synced after a successful sweep")
	}

	m, err := db.GetMeeting("m1")
	if err != nil {
		t.Fatalf("expected fetched meeting to be stored: %v", err)
	}
	if m.Title != "Regular Meeting" {
		t.Errorf("unexpected meeting title: %s", m.Title)
	}
}

func TestRunSyncRecordsFailedCityAfterRetriesExhausted(t *testing.T) {
	db := openTestStore(t)
	seedCity(t, db, "brokenIL", "primegov", "broken")

	registry := &fakeRegistry{adapters: map[string]*fakeAdapter{
		"broken": {err: errors.New("vendor site unreachable")},
	}}
	cfg := fastConfig()
	s := New(config.NewManager(cfg), db, registry, nil, slog.Default())

	s.RunSync(context.Background())

	status := s.Status()
	if len(status.FailedCities) != 1 || status.FailedCities[0] != "brokenIL" {
		t.Fatalf("expected brokenIL recorded as failed, got %+v", status.FailedCities)
	}
}

func TestRunSyncClearsFailedCitiesAtStartOfEachSweep(t *testing.T) {
	db := openTestStore(t)
	seedCity(t, db, "brokenIL", "primegov", "broken")

	registry := &fakeRegistry{adapters: map[string]*fakeAdapter{
		"broken": {err: errors.New("vendor site unreachable")},
	}}
	s := New(config.NewManager(fastConfig()), db, registry, nil, slog.Default())

	s.RunSync(context.Background())
	if len(s.Status().FailedCities) != 1 {
		t.Fatalf("expected one failed city after first sweep")
	}

	// A vendor now working means the second sweep should clear the slate,
	// even before it finds anything new to fail on.
	registry.adapters["broken"] = &fakeAdapter{}
	s.RunSync(context.Background())
	if len(s.Status().FailedCities) != 0 {
		t.Fatalf("expected failed cities cleared after a clean sweep, got %+v", s.Status().FailedCities)
	}
}

func TestRunProcessingSweepEnqueuesStragglersAndDrains(t *testing.T) {
	db := openTestStore(t)
	seedCity(t, db, "springfieldIL", "primegov", "springfield")
	if err := db.StoreMeeting(store.Meeting{
		ID: "m1", CityBanana: "springfieldIL", Title: "Stray meeting",
		PacketURL: "https://springfield.primegov.com/packet.pdf", ProcessingStatus: "pending",
	}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}

	drainer := &fakeDrainer{}
	s := New(config.NewManager(fastConfig()), db, &fakeRegistry{}, drainer, slog.Default())

	s.RunProcessingSweep(context.Background())

	stats, err := db.GetQueueStats()
	if err != nil {
		t.Fatalf("GetQueueStats: %v", err)
	}
	if stats.CountByStatus["pending"] != 1 {
		t.Fatalf("expected the straggler enqueued as pending, got %+v", stats.CountByStatus)
	}
	if drainer.drained != 1 {
		t.Fatalf("expected the attached worker to be drained once, got %d", drainer.drained)
	}
}

func TestRunProcessingSweepSkipsMeetingsWithoutPacketURL(t *testing.T) {
	db := openTestStore(t)
	seedCity(t, db, "springfieldIL", "primegov", "springfield")
	if err := db.StoreMeeting(store.Meeting{
		ID: "m1", CityBanana: "springfieldIL", Title: "No packet yet", ProcessingStatus: "pending",
	}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}

	drainer := &fakeDrainer{}
	s := New(config.NewManager(fastConfig()), db, &fakeRegistry{}, drainer, slog.Default())

	s.RunProcessingSweep(context.Background())

	stats, err := db.GetQueueStats()
	if err != nil {
		t.Fatalf("GetQueueStats: %v", err)
	}
	if total := stats.CountByStatus["pending"] + stats.CountByStatus["completed"]; total != 0 {
		t.Fatalf("expected nothing enqueued for a meeting with no packet url, got %+v", stats.CountByStatus)
	}
	if drainer.drained != 0 {
		t.Fatalf("expected no drain call when nothing was enqueued, got %d", drainer.drained)
	}
}

func TestSyncCityFetchesAndMarksSyncedOutsideASweep(t *testing.T) {
	db := openTestStore(t)
	seedCity(t, db, "springfieldIL", "primegov", "springfield")

	registry := &fakeRegistry{adapters: map[string]*fakeAdapter{
		"springfield": {records: []store.RawMeetingRecord{
			{ID: "m1", Title: "Special Session", PacketURL: "https://springfield.primegov.com/packet.pdf"},
		}},
	}}
	s := New(config.NewManager(fastConfig()), db, registry, nil, slog.Default())

	city, err := db.GetCityByBanana("springfieldIL")
	if err != nil {
		t.Fatalf("GetCityByBanana: %v", err)
	}

	n, err := s.SyncCity(context.Background(), *city)
	if err != nil {
		t.Fatalf("SyncCity: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 meeting fetched, got %d", n)
	}

	synced, err := db.GetCityByBanana("springfieldIL")
	if err != nil {
		t.Fatalf("GetCityByBanana: %v", err)
	}
	if !synced.LastSyncedAt.Valid {
		t.Fatal("expected SyncCity to mark the city synced")
	}
}

func TestEverySpecFallsBackOnZeroDuration(t *testing.T) {
	if got := everySpec(0, time.Hour); got != "@every 1h0m0s" {
		t.Errorf("everySpec(0, 1h) = %q", got)
	}
	if got := everySpec(30*time.Minute, time.Hour); got != "@every 30m0s" {
		t.Errorf("everySpec(30m, 1h) = %q", got)
	}
}

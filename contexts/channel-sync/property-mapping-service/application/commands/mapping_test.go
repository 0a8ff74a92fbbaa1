package commands

import (
	"context"
	"errors"
	"testing"

	"meridian/contexts/channel-sync/property-mapping-service/adapters/memory"
	"meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/property-mapping-service/domain/errors"
	"meridian/contexts/channel-sync/property-mapping-service/ports"
	syncstatusservice "meridian/contexts/channel-sync/sync-status-service"
	statusentities "meridian/contexts/channel-sync/sync-status-service/domain/entities"
	"meridian/internal/shared/events"
)

type resetCall struct {
	oldCode string
	newCode string
}

type fakeReactor struct {
	suppressed []string
	enabled    []string
	resets     []resetCall
}

func (f *fakeReactor) SuppressAutoRetry(_ context.Context, hotelCode string) error {
	f.suppressed = append(f.suppressed, hotelCode)
	return nil
}

func (f *fakeReactor) EnableAutoRetry(_ context.Context, hotelCode string) error {
	f.enabled = append(f.enabled, hotelCode)
	return nil
}

func (f *fakeReactor) ResetForHotelCodeChange(_ context.Context, oldHotelCode, newHotelCode string) error {
	f.resets = append(f.resets, resetCall{oldCode: oldHotelCode, newCode: newHotelCode})
	return nil
}

type countingCache struct{ invalidations int }

func (c *countingCache) Invalidate() { c.invalidations++ }

func newMappingFixture() (MappingUseCase, *memory.Store, *fakeReactor, *countingCache) {
	store := memory.NewStore(nil)
	reactor := &fakeReactor{}
	cache := &countingCache{}
	uc := MappingUseCase{
		Mappings: store,
		Statuses: reactor,
		Caches:   []ports.CacheInvalidator{cache},
		Clock:    store,
		IDGen:    store,
	}
	return uc, store, reactor, cache
}

func validCommand() CreateMappingCommand {
	return CreateMappingCommand{
		PropertyID: "PROP001",
		HotelCode:  "001234",
		Active:     true,
		Config: entities.MappingConfig{
			Username: "pms-user",
			Password: "secret",
			Features: entities.FeatureFlags{Inventory: true},
		},
	}
}

func TestCreateMapping(t *testing.T) {
	uc, store, _, cache := newMappingFixture()
	mapping, err := uc.Create(context.Background(), validCommand())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if mapping.ID == "" || !mapping.Active {
		t.Fatalf("mapping not initialized: %+v", mapping)
	}
	if _, found, _ := store.ActiveByHotelCode(context.Background(), "001234"); !found {
		t.Fatalf("mapping not resolvable by hotel code")
	}
	if cache.invalidations != 1 {
		t.Fatalf("create must invalidate caches once, got %d", cache.invalidations)
	}
}

func TestCreateRejectsBadHotelCodes(t *testing.T) {
	uc, _, _, _ := newMappingFixture()
	for _, code := range []string{"", "12345678901", "12AB", "12 34"} {
		cmd := validCommand()
		cmd.HotelCode = code
		if _, err := uc.Create(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidHotelCode) {
			t.Fatalf("hotel code %q must be rejected, got %v", code, err)
		}
	}
}

func TestCreateEnforcesOneActivePerSide(t *testing.T) {
	uc, _, _, _ := newMappingFixture()
	if _, err := uc.Create(context.Background(), validCommand()); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	samePlace := validCommand()
	samePlace.HotelCode = "005678"
	if _, err := uc.Create(context.Background(), samePlace); !errors.Is(err, domainerrors.ErrDuplicateMapping) {
		t.Fatalf("second active mapping for the property must be rejected, got %v", err)
	}

	sameCode := validCommand()
	sameCode.PropertyID = "PROP002"
	if _, err := uc.Create(context.Background(), sameCode); !errors.Is(err, domainerrors.ErrDuplicateMapping) {
		t.Fatalf("second active mapping for the hotel code must be rejected, got %v", err)
	}

	// An inactive duplicate is allowed.
	inactive := validCommand()
	inactive.PropertyID = "PROP003"
	inactive.Active = false
	if _, err := uc.Create(context.Background(), inactive); err != nil {
		t.Fatalf("inactive duplicate must be allowed: %v", err)
	}
}

func TestDeactivateSuppressesAutoRetry(t *testing.T) {
	uc, _, reactor, _ := newMappingFixture()
	mapping, err := uc.Create(context.Background(), validCommand())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := uc.Deactivate(context.Background(), mapping.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if len(reactor.suppressed) != 1 || reactor.suppressed[0] != "001234" {
		t.Fatalf("deactivate must suppress auto retry for the hotel code: %+v", reactor.suppressed)
	}

	if _, err := uc.Activate(context.Background(), mapping.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if len(reactor.enabled) != 1 || reactor.enabled[0] != "001234" {
		t.Fatalf("activate must re-enable auto retry: %+v", reactor.enabled)
	}
}

func TestChangeHotelCodeResetsStatuses(t *testing.T) {
	uc, store, reactor, _ := newMappingFixture()
	mapping, err := uc.Create(context.Background(), validCommand())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	updated, err := uc.ChangeHotelCode(context.Background(), mapping.ID, "009999")
	if err != nil {
		t.Fatalf("change failed: %v", err)
	}
	if updated.HotelCode != "009999" {
		t.Fatalf("hotel code not updated: %+v", updated)
	}
	if len(reactor.resets) != 1 || reactor.resets[0] != (resetCall{oldCode: "001234", newCode: "009999"}) {
		t.Fatalf("change must reset streams keyed by the old code and rekey them to the new one: %+v", reactor.resets)
	}
	if _, found, _ := store.ActiveByHotelCode(context.Background(), "001234"); found {
		t.Fatalf("old hotel code must no longer resolve")
	}
}

type nopStatusBus struct{}

func (nopStatusBus) Publish(_ context.Context, _ events.Envelope) error { return nil }

func TestChangeHotelCodeRekeysLiveStreams(t *testing.T) {
	store := memory.NewStore(nil)
	statusModule := syncstatusservice.NewInMemoryModule(nil, nopStatusBus{}, nil)
	uc := MappingUseCase{
		Mappings: store,
		Statuses: statusModule.Statuses,
		Clock:    store,
		IDGen:    store,
	}
	ctx := context.Background()

	mapping, err := uc.Create(ctx, validCommand())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stream, err := statusModule.Statuses.Ensure(ctx, "001234", "inventory", "room_type", "KING")
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if _, err := statusModule.Statuses.Begin(ctx, stream.Key()); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := statusModule.Statuses.Complete(ctx, stream.Key(), 1, 1); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if _, err := uc.ChangeHotelCode(ctx, mapping.ID, "009999"); err != nil {
		t.Fatalf("change failed: %v", err)
	}

	if _, err := statusModule.Store.Get(ctx, "001234|inventory|room_type|KING"); err == nil {
		t.Fatalf("stream must not remain under the old hotel code")
	}
	got, err := statusModule.Store.Get(ctx, "009999|inventory|room_type|KING")
	if err != nil {
		t.Fatalf("stream missing under the new hotel code: %v", err)
	}
	if got.State != statusentities.StatePending {
		t.Fatalf("existing stream must be pending after hotel-code change, got %s", got.State)
	}
	if got.RetryCount != 0 || got.NextRetryAt != nil {
		t.Fatalf("retry bookkeeping must be cleared: %+v", got)
	}
}

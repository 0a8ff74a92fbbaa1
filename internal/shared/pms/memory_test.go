package pms

import (
	"context"
	"sync"
	"testing"
	"time"

	"meridian/internal/shared/otaxml"
)

func TestChangedInventoryHonorsWatermark(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	old := otaxml.InventoryRecord{
		RoomTypeCode: "KING",
		Start:        base.AddDate(0, 0, 1),
		End:          base.AddDate(0, 0, 3),
		Counts:       []otaxml.InventoryCount{{Type: otaxml.CountAvailable, Value: 5}},
	}
	fresh := otaxml.InventoryRecord{
		RoomTypeCode: "TWIN",
		Start:        base.AddDate(0, 0, 1),
		End:          base.AddDate(0, 0, 3),
		Counts:       []otaxml.InventoryCount{{Type: otaxml.CountAvailable, Value: 2}},
	}
	store.SeedInventory("prop-1", old, base.Add(-2*time.Hour))
	store.SeedInventory("prop-1", fresh, base.Add(-5*time.Minute))

	since := base.Add(-time.Hour)
	got, err := store.ChangedInventory(context.Background(), "prop-1", &since)
	if err != nil {
		t.Fatalf("ChangedInventory: %v", err)
	}
	if len(got) != 1 || got[0].RoomTypeCode != "TWIN" {
		t.Fatalf("expected only the record past the watermark, got %+v", got)
	}

	all, err := store.ChangedInventory(context.Background(), "prop-1", nil)
	if err != nil {
		t.Fatalf("ChangedInventory full: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("nil watermark should return everything, got %d records", len(all))
	}
}

func TestApplyReservationOverwritesByConfirmationID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first := otaxml.Reservation{ConfirmationID: "CONF-1001", Status: otaxml.ReservationConfirmed}
	if err := store.ApplyReservation(ctx, "prop-1", first); err != nil {
		t.Fatalf("ApplyReservation: %v", err)
	}
	cancelled := otaxml.Reservation{ConfirmationID: "CONF-1001", Status: otaxml.ReservationCancelled}
	if err := store.ApplyReservation(ctx, "prop-1", cancelled); err != nil {
		t.Fatalf("ApplyReservation second: %v", err)
	}

	got, ok := store.Reservation("CONF-1001")
	if !ok {
		t.Fatalf("reservation not stored")
	}
	if got.Status != otaxml.ReservationCancelled {
		t.Fatalf("expected the later write to win, got status %q", got.Status)
	}
}

func TestExistenceLookups(t *testing.T) {
	store := NewStore()
	store.SeedProperty("12345", "prop-1")
	store.SeedRoomType("12345", "KING")
	store.SeedRatePlan("12345", "BAR")
	ctx := context.Background()

	if ok, _ := store.PropertyExists(ctx, "12345"); !ok {
		t.Fatalf("seeded property missing")
	}
	if ok, _ := store.PropertyExists(ctx, "99999"); ok {
		t.Fatalf("unseeded property reported present")
	}
	if ok, _ := store.RoomTypeExists(ctx, "12345", "KING"); !ok {
		t.Fatalf("seeded room type missing")
	}
	if ok, _ := store.RoomTypeExists(ctx, "12345", "SUITE"); ok {
		t.Fatalf("unseeded room type reported present")
	}
	if ok, _ := store.RatePlanExists(ctx, "12345", "BAR"); !ok {
		t.Fatalf("seeded rate plan missing")
	}
}

func TestChangeFeedSafeUnderConcurrentSeeding(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	record := otaxml.InventoryRecord{
		RoomTypeCode: "KING",
		Start:        base.AddDate(0, 0, 1),
		End:          base.AddDate(0, 0, 2),
		Counts:       []otaxml.InventoryCount{{Type: otaxml.CountAvailable, Value: 1}},
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			store.SeedInventory("prop-1", record, base)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := store.ChangedInventory(context.Background(), "prop-1", nil); err != nil {
				t.Errorf("ChangedInventory: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	got, err := store.ChangedInventory(context.Background(), "prop-1", nil)
	if err != nil {
		t.Fatalf("ChangedInventory: %v", err)
	}
	if len(got) != 200 {
		t.Fatalf("expected 200 seeded records, got %d", len(got))
	}
}

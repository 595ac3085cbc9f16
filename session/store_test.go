package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tradebook/authcore/cache"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(cache.New(rdb), ttl), mr
}

func sampleEntry() *Entry {
	return &Entry{
		UserID:     42,
		SessionID:  "sid-1",
		AccessID:   "aid-1",
		RefreshID:  "rid-1",
		LastOnline: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	st, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := st.Put(ctx, sampleEntry()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, hit, err := st.Get(ctx, 42, "sid-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hit || got == nil {
		t.Fatalf("expected live hit, got hit=%v entry=%v", hit, got)
	}
	if got.AccessID != "aid-1" || got.RefreshID != "rid-1" {
		t.Fatalf("markers = %q/%q, want aid-1/rid-1", got.AccessID, got.RefreshID)
	}
}

func TestGetThreeStates(t *testing.T) {
	st, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	entry, hit, err := st.Get(ctx, 42, "never-seen")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit || entry != nil {
		t.Fatal("unseen session should be a miss")
	}

	if err := st.PutNegative(ctx, 42, "dead"); err != nil {
		t.Fatalf("PutNegative: %v", err)
	}
	entry, hit, err = st.Get(ctx, 42, "dead")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hit || entry != nil {
		t.Fatalf("negative marker should be hit with nil entry, got hit=%v entry=%v", hit, entry)
	}
}

func TestDeleteMultiple(t *testing.T) {
	st, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	a, b := sampleEntry(), sampleEntry()
	b.SessionID = "sid-2"
	for _, e := range []*Entry{a, b} {
		if err := st.Put(ctx, e); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if err := st.Delete(ctx, 42, "sid-1", "sid-2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, sid := range []string{"sid-1", "sid-2"} {
		if _, hit, _ := st.Get(ctx, 42, sid); hit {
			t.Fatalf("session %s still cached after delete", sid)
		}
	}
}

func TestTouchPreservesTTL(t *testing.T) {
	st, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := st.Put(ctx, sampleEntry()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(30 * time.Minute)

	at := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	touched, err := st.Touch(ctx, 42, "sid-1", at)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if !touched {
		t.Fatal("expected live entry to be touched")
	}

	got, hit, err := st.Get(ctx, 42, "sid-1")
	if err != nil || !hit || got == nil {
		t.Fatalf("Get after touch: entry=%v hit=%v err=%v", got, hit, err)
	}
	if !got.LastOnline.Equal(at) {
		t.Fatalf("LastOnline = %v, want %v", got.LastOnline, at)
	}

	if ttl := mr.TTL("user:session:42:sid-1"); ttl > 31*time.Minute {
		t.Fatalf("touch must not extend TTL, got %v", ttl)
	}
}

func TestTouchSkipsNegativeAndAbsent(t *testing.T) {
	st, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	touched, err := st.Touch(ctx, 42, "absent", time.Now())
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if touched {
		t.Fatal("absent entry must not be touched")
	}

	if err := st.PutNegative(ctx, 42, "dead"); err != nil {
		t.Fatalf("PutNegative: %v", err)
	}
	touched, err = st.Touch(ctx, 42, "dead", time.Now())
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if touched {
		t.Fatal("negative marker must not be touched")
	}

	// Marker must survive the attempt untouched.
	entry, hit, _ := st.Get(ctx, 42, "dead")
	if !hit || entry != nil {
		t.Fatal("negative marker corrupted by touch attempt")
	}
}

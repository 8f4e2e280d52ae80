package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/greengoods/api/internal/model"
)

func TestSimCacheHit(t *testing.T) {
	c := NewSimCache(time.Minute, 4)

	c.Put("fp-1", Outcome{OK: true})

	got, ok := c.Get("fp-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.OK {
		t.Error("expected OK outcome")
	}

	if _, ok := c.Get("fp-unknown"); ok {
		t.Error("expected miss for unknown fingerprint")
	}
}

func TestSimCacheTTLExpiry(t *testing.T) {
	c := NewSimCache(time.Minute, 4)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("fp-1", Outcome{OK: true})

	now = now.Add(30 * time.Second)
	if _, ok := c.Get("fp-1"); !ok {
		t.Fatal("entry should still be fresh")
	}

	now = now.Add(31 * time.Second)
	if _, ok := c.Get("fp-1"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed, got len %d", c.Len())
	}
}

func TestSimCacheLRUEviction(t *testing.T) {
	c := NewSimCache(time.Minute, 2)

	c.Put("fp-1", Outcome{OK: true})
	c.Put("fp-2", Outcome{OK: true})

	// Touch fp-1 so fp-2 becomes the eviction candidate.
	if _, ok := c.Get("fp-1"); !ok {
		t.Fatal("expected hit for fp-1")
	}

	c.Put("fp-3", Outcome{OK: true})

	if _, ok := c.Get("fp-2"); ok {
		t.Error("fp-2 should have been evicted")
	}
	if _, ok := c.Get("fp-1"); !ok {
		t.Error("fp-1 should have survived")
	}
	if _, ok := c.Get("fp-3"); !ok {
		t.Error("fp-3 should be present")
	}
}

func TestSimCacheCachesFailures(t *testing.T) {
	c := NewSimCache(time.Minute, 4)

	c.Put("fp-1", Outcome{Err: model.NewSimulationFailure("rejected")})

	got, ok := c.Get("fp-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.OK || got.Err == nil || got.Err.Code != model.CodeSimulationFailure {
		t.Errorf("unexpected outcome: %+v", got)
	}
}

func TestFingerprintDistinguishesUsers(t *testing.T) {
	payload := json.RawMessage(`{"gardenId":"g-1","title":"planted"}`)

	base := &model.Job{
		Backend:     model.BackendWallet,
		Kind:        model.JobKindSubmitWork,
		Payload:     payload,
		UserAddress: "0xaaa",
	}

	other := *base
	other.UserAddress = "0xbbb"

	if Fingerprint(base) == Fingerprint(&other) {
		t.Error("fingerprints must differ across users")
	}

	same := *base
	if Fingerprint(base) != Fingerprint(&same) {
		t.Error("identical jobs must share a fingerprint")
	}
}

func TestFingerprintDistinguishesBackends(t *testing.T) {
	payload := json.RawMessage(`{"gardenId":"g-1","title":"planted"}`)

	fps := make(map[string]bool)
	for _, b := range []model.BackendKind{model.BackendWallet, model.BackendSmartAccount, model.BackendAgent} {
		job := &model.Job{
			Backend:     b,
			Kind:        model.JobKindSubmitWork,
			Payload:     payload,
			UserAddress: "0xaaa",
		}
		fp := Fingerprint(job)
		if fps[fp] {
			t.Errorf("duplicate fingerprint for backend %s", b)
		}
		fps[fp] = true
	}
	if len(fps) != 3 {
		t.Errorf("expected 3 distinct fingerprints, got %d", len(fps))
	}
}

package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/samcharles93/framestep/internal/logger"
	"github.com/samcharles93/framestep/internal/metrics"
	"github.com/samcharles93/framestep/pkg/frame"
)

func TestStoreLifecycle(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	st := NewStore(logger.Discard(), m)

	a, err := st.Create(Spec{MaxTokens: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := st.Create(Spec{Backend: BackendEcho, MaxTokens: 1, Prompt: []uint32{3}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID() == b.ID() {
		t.Fatal("sessions share an id")
	}
	if _, err := uuid.Parse(a.ID()); err != nil {
		t.Fatalf("id is not a uuid: %v", err)
	}
	if st.Len() != 2 {
		t.Fatalf("len: got %d, want 2", st.Len())
	}

	got, err := st.Get(b.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := got.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap := b.Snapshot(); snap.Backend != BackendEcho || snap.State != "finished" {
		t.Fatalf("stored session diverged: %+v", snap)
	}

	if err := st.Delete(a.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Get(a.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if err := st.Delete(a.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}

	expected := `
# HELP framestep_sessions_active Sessions currently held by the store.
# TYPE framestep_sessions_active gauge
framestep_sessions_active 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "framestep_sessions_active"); err != nil {
		t.Fatal(err)
	}
}

func TestStoreRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	st := NewStore(nil, nil)
	if _, err := st.Create(Spec{Backend: "nope"}); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
	if st.Len() != 0 {
		t.Fatalf("invalid spec was stored")
	}
}

func TestStoreCreateOptionsOverrideDefaults(t *testing.T) {
	t.Parallel()

	st := NewStore(nil, nil)
	s, err := st.Create(Spec{}, WithID("chosen"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID() != "chosen" {
		t.Fatalf("id: got %q", s.ID())
	}
	if _, err := st.Get("chosen"); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestStoreDeleteCancelsLiveSession(t *testing.T) {
	t.Parallel()

	st := NewStore(nil, nil)
	live, err := st.Create(Spec{MaxTokens: 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	done, err := st.Create(Spec{MaxTokens: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := done.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, id := range []string{live.ID(), done.ID()} {
		if err := st.Delete(id); err != nil {
			t.Fatalf("delete %s: %v", id, err)
		}
	}
	if got := live.Snapshot().State; got != "cancelled" {
		t.Fatalf("live session state: got %s, want cancelled", got)
	}
	if got := done.Snapshot().State; got != "finished" {
		t.Fatalf("finished session state: got %s, want finished", got)
	}
}

func TestStoreAddHostedSession(t *testing.T) {
	t.Parallel()

	st := NewStore(nil, nil)
	hosted := Host[frame.NoopMem]("custom", frame.New(frame.NoopMem{}, 1), frame.NoopStepper{}, nil, WithID("hosted"))
	if err := st.Add(hosted); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := st.Add(hosted); err == nil {
		t.Fatal("expected duplicate id error")
	}
	got, err := st.Get("hosted")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap := got.Snapshot(); snap.Backend != "custom" || snap.State != "prefill" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

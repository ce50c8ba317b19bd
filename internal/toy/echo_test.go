package toy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/framestep/pkg/frame"
)

func newDriver(s EchoStepper, maxTokens int, prompt []uint32) *frame.Driver[*Memory] {
	return frame.NewDriver[*Memory](frame.WithPrompt(&Memory{}, maxTokens, prompt), s)
}

func TestEchoPrefillsOneTokenPerStep(t *testing.T) {
	t.Parallel()

	d := newDriver(NewEchoStepper(), 2, []uint32{10, 11, 12})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := d.Step(ctx)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if _, ok := res.Token(); ok {
			t.Fatalf("prefill step %d emitted a token", i)
		}
		f := d.Frame()
		if f.PromptIndex != i || f.Cursor.Position != uint32(i) {
			t.Fatalf("step %d: prompt index %d position %d", i, f.PromptIndex, f.Cursor.Position)
		}
		if len(res.Receipts) != 1 || res.Receipts[0].Kind != ReceiptPrefillTokens || res.Receipts[0].Value != 1 {
			t.Fatalf("step %d receipts: %+v", i, res.Receipts)
		}
	}
	if d.Frame().State != frame.Decode {
		t.Fatalf("state after prefill: got %v, want decode", d.Frame().State)
	}
}

func TestEchoReplaysContext(t *testing.T) {
	t.Parallel()

	d := newDriver(NewEchoStepper(), 5, []uint32{4, 5})
	res, err := d.RunToCompletion(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reason, _ := res.Reason(); reason != frame.StopMaxTokens {
		t.Fatalf("reason: got %v, want max_tokens", reason)
	}
	f := d.Frame()
	if diff := cmp.Diff([]uint32{4, 5, 4, 5, 4}, f.GeneratedTokenIDs); diff != "" {
		t.Fatalf("generated mismatch (-want +got):\n%s", diff)
	}
	if f.TokensGenerated != len(f.GeneratedTokenIDs) {
		t.Fatalf("counter mismatch: %d vs %d", f.TokensGenerated, len(f.GeneratedTokenIDs))
	}
	if f.Cursor.Position != 7 {
		t.Fatalf("position: got %d, want 7", f.Cursor.Position)
	}
	if len(f.Mem.Context) != 7 {
		t.Fatalf("context len: got %d, want 7", len(f.Mem.Context))
	}
}

func TestEchoStopsOnEOS(t *testing.T) {
	t.Parallel()

	d := newDriver(NewEchoStepper().WithEOS(9), 10, []uint32{1, 2, 9})
	res, err := d.RunToCompletion(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reason, _ := res.Reason(); reason != frame.StopEos {
		t.Fatalf("reason: got %v, want eos", reason)
	}
	if diff := cmp.Diff([]uint32{1, 2}, d.Frame().GeneratedTokenIDs); diff != "" {
		t.Fatalf("generated mismatch (-want +got):\n%s", diff)
	}

	// Both the driver and the stepper replay the recorded reason.
	again, err := d.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if reason, _ := again.Reason(); reason != frame.StopEos {
		t.Fatalf("driver replay: got %v, want eos", reason)
	}
	direct, err := NewEchoStepper().Step(context.Background(), d.Frame())
	if err != nil {
		t.Fatalf("direct step: %v", err)
	}
	if reason, _ := direct.Reason(); reason != frame.StopEos {
		t.Fatalf("stepper replay: got %v, want eos", reason)
	}
}

func TestEchoEmptyPromptFailsInDecode(t *testing.T) {
	t.Parallel()

	d := newDriver(NewEchoStepper(), 3, nil)
	res, err := d.Step(context.Background())
	if err != nil {
		t.Fatalf("prefill: %v", err)
	}
	if len(res.Receipts) != 1 || res.Receipts[0].Value != 0 {
		t.Fatalf("unexpected prefill receipts: %+v", res.Receipts)
	}
	if d.Frame().State != frame.Decode {
		t.Fatalf("empty prompt should move straight to decode, got %v", d.Frame().State)
	}

	_, err = d.RunToCompletion(context.Background())
	if !errors.Is(err, frame.ErrBackend) || !errors.Is(err, errEmptyContext) {
		t.Fatalf("expected empty context backend error, got %v", err)
	}
}

func TestEchoNilMemory(t *testing.T) {
	t.Parallel()

	f := frame.New[*Memory](nil, 1)
	_, err := NewEchoStepper().Step(context.Background(), &f)
	if !errors.Is(err, frame.ErrBackend) || !errors.Is(err, errNilMemory) {
		t.Fatalf("expected nil memory backend error, got %v", err)
	}
	if f.State != frame.Prefill {
		t.Fatalf("failed step mutated state: %v", f.State)
	}
}

func TestEchoZeroMaxTokensStillPrefills(t *testing.T) {
	t.Parallel()

	d := newDriver(NewEchoStepper(), 0, []uint32{3})
	res, err := d.RunToCompletion(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reason, _ := res.Reason(); reason != frame.StopMaxTokens {
		t.Fatalf("reason: got %v, want max_tokens", reason)
	}
	if d.Frame().PromptIndex != 1 || d.Frame().TokensGenerated != 0 {
		t.Fatalf("unexpected frame: %+v", d.Frame())
	}
}

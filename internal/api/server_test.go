package api

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/framestep/internal/metrics"
	"github.com/samcharles93/framestep/internal/session"
	"github.com/samcharles93/framestep/pkg/frame"
)

func newTestEcho(cfg Config) (*echo.Echo, *session.Store) {
	m := metrics.New()
	store := session.NewStore(nil, m)
	e := echo.New()
	NewServer(store, m, nil, cfg).Register(e)
	return e, store
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func createFrame(t *testing.T, e *echo.Echo, body string) session.Snapshot {
	t.Helper()
	rec := doJSON(t, e, http.MethodPost, "/v1/frames", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status: got %d body=%s", rec.Code, rec.Body.String())
	}
	return decodeBody[session.Snapshot](t, rec)
}

func TestFrameLifecycle(t *testing.T) {
	t.Parallel()

	e, store := newTestEcho(Config{})
	created := createFrame(t, e, `{"backend":"noop","max_tokens":2}`)
	if created.ID == "" || created.State != "prefill" {
		t.Fatalf("unexpected create snapshot: %+v", created)
	}
	base := "/v1/frames/" + created.ID

	var outcomes []string
	for i := 0; i < 4; i++ {
		rec := doJSON(t, e, http.MethodPost, base+"/step", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("step %d status: %d body=%s", i, rec.Code, rec.Body.String())
		}
		outcomes = append(outcomes, decodeBody[StepResponse](t, rec).Result.Outcome)
	}
	want := []string{"advanced", "advanced", "advanced", "finished"}
	if diff := cmp.Diff(want, outcomes); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}

	getRec := doJSON(t, e, http.MethodGet, base, "")
	snap := decodeBody[session.Snapshot](t, getRec)
	if diff := cmp.Diff([]uint32{0, 1}, snap.Generated); diff != "" {
		t.Fatalf("generated mismatch (-want +got):\n%s", diff)
	}

	delRec := doJSON(t, e, http.MethodDelete, base, "")
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status: %d", delRec.Code)
	}
	if !decodeBody[DeleteResponse](t, delRec).Deleted {
		t.Fatal("delete response not marked deleted")
	}
	if store.Len() != 0 {
		t.Fatalf("store still holds %d sessions", store.Len())
	}
	if rec := doJSON(t, e, http.MethodGet, base, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestRunReturnsFinalResult(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(Config{})
	created := createFrame(t, e, `{"backend":"echo","max_tokens":8,"prompt":[3,4,5],"eos_token":5,"yield_every":2}`)

	rec := doJSON(t, e, http.MethodPost, "/v1/frames/"+created.ID+"/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("run status: %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[StepResponse](t, rec)
	if resp.Result.Outcome != "finished" || resp.Result.StopReason != "eos" {
		t.Fatalf("unexpected result: %+v", resp.Result)
	}
	if diff := cmp.Diff([]uint32{3, 4}, resp.Frame.Generated); diff != "" {
		t.Fatalf("generated mismatch (-want +got):\n%s", diff)
	}
	if resp.Frame.Yields == 0 {
		t.Fatal("expected the yield policy to fire")
	}
}

func TestRunTimeoutCancelsFrame(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(Config{RunTimeout: time.Nanosecond})
	// With a one token per hour budget the run can only end by timing out.
	created := createFrame(t, e, `{"max_tokens":1000,"rate":0.0003,"burst":1}`)

	rec := doJSON(t, e, http.MethodPost, "/v1/frames/"+created.ID+"/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("run status: %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[StepResponse](t, rec)
	if resp.Result.StopReason != "cancelled" || resp.Frame.State != "cancelled" {
		t.Fatalf("expected cancellation, got %+v / %s", resp.Result, resp.Frame.State)
	}
}

func TestCancelRoute(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(Config{})
	created := createFrame(t, e, `{}`)
	rec := doJSON(t, e, http.MethodPost, "/v1/frames/"+created.ID+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status: %d", rec.Code)
	}
	if snap := decodeBody[session.Snapshot](t, rec); snap.State != "cancelled" {
		t.Fatalf("state: got %s, want cancelled", snap.State)
	}

	stepRec := doJSON(t, e, http.MethodPost, "/v1/frames/"+created.ID+"/step", "")
	if r := decodeBody[StepResponse](t, stepRec).Result; r.StopReason != "cancelled" {
		t.Fatalf("step after cancel: %+v", r)
	}
}

func TestErrorEnvelopes(t *testing.T) {
	t.Parallel()

	e, store := newTestEcho(Config{MaxTokens: 16})
	failing := frame.StepperFunc[frame.NoopMem](func(context.Context, *frame.Frame[frame.NoopMem]) (frame.StepResult, error) {
		return frame.StepResult{}, frame.BackendFailure(errors.New("device lost"))
	})
	if err := store.Add(session.Host[frame.NoopMem]("flaky", frame.New(frame.NoopMem{}, 4), failing, nil, session.WithID("flaky"))); err != nil {
		t.Fatalf("add: %v", err)
	}

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		status   int
		errType  string
		errParam string
	}{
		{"unknown backend", http.MethodPost, "/v1/frames", `{"backend":"gpu"}`, http.StatusBadRequest, "invalid_request_error", ""},
		{"unknown field", http.MethodPost, "/v1/frames", `{"max_tokens":1,"bogus":1}`, http.StatusBadRequest, "invalid_request_error", ""},
		{"echo without prompt", http.MethodPost, "/v1/frames", `{"backend":"echo","max_tokens":4}`, http.StatusBadRequest, "invalid_request_error", ""},
		{"vocab above limit", http.MethodPost, "/v1/frames", `{"backend":"sample","max_tokens":2,"vocab":4611686018427387904}`, http.StatusBadRequest, "invalid_request_error", ""},
		{"malformed json", http.MethodPost, "/v1/frames", `{"max_tokens":`, http.StatusBadRequest, "invalid_request_error", ""},
		{"over token cap", http.MethodPost, "/v1/frames", `{"max_tokens":17}`, http.StatusBadRequest, "invalid_request_error", "max_tokens"},
		{"missing frame", http.MethodGet, "/v1/frames/nope", ``, http.StatusNotFound, "not_found_error", ""},
		{"missing frame step", http.MethodPost, "/v1/frames/nope/step", ``, http.StatusNotFound, "not_found_error", ""},
		{"missing frame delete", http.MethodDelete, "/v1/frames/nope", ``, http.StatusNotFound, "not_found_error", ""},
		{"backend failure", http.MethodPost, "/v1/frames/flaky/run", ``, http.StatusInternalServerError, "backend_error", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, e, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status: got %d, want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			env := decodeBody[ErrorEnvelope](t, rec)
			if env.Error.Type != tc.errType || env.Error.Param != tc.errParam {
				t.Fatalf("envelope: %+v", env.Error)
			}
			if env.Error.Message == "" {
				t.Fatal("empty error message")
			}
		})
	}
}

func TestStreamedRun(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(Config{})
	created := createFrame(t, e, `{"max_tokens":2}`)

	rec := doJSON(t, e, http.MethodPost, "/v1/frames/"+created.ID+"/run?stream=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}

	var events []StepEvent
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StepEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, ev)
	}

	var types []string
	for i, ev := range events {
		if ev.SequenceNumber != i+1 {
			t.Fatalf("event %d has sequence %d", i, ev.SequenceNumber)
		}
		types = append(types, ev.Type)
	}
	want := []string{eventStep, eventStep, eventStep, eventFinished}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	last := events[len(events)-1]
	if last.Frame == nil || last.Frame.State != "finished" || last.Result.StopReason != "max_tokens" {
		t.Fatalf("unexpected final event: %+v", last)
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(Config{})
	created := createFrame(t, e, `{"max_tokens":1}`)
	doJSON(t, e, http.MethodPost, "/v1/frames/"+created.ID+"/run", "")

	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"framestep_sessions_active 1",
		`framestep_finished_total{reason="max_tokens"} 1`,
		"framestep_tokens_emitted_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/clubtab/internal/client"
)

// fakeOrdersServer — минимальный HTTP-стенд API заказов для тестов.
type fakeOrdersServer struct {
	mu          sync.Mutex
	nextID      int
	failCreate  bool
	emptyID     bool
	seenKeys    []string
	statusCalls []string
}

func (f *fakeOrdersServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if key := r.Header.Get("Idempotency-Key"); key != "" {
			f.seenKeys = append(f.seenKeys, key)
		}

		if f.failCreate {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "unavailable", "message": "down"})
			return
		}

		f.nextID++
		id := ""
		token := ""
		if !f.emptyID {
			id = fmt.Sprintf("order-%d", f.nextID)
			token = fmt.Sprintf("token-%d", f.nextID)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                id,
			"status":            "pending_payment",
			"fulfillment_token": token,
		})
	})

	mux.HandleFunc("POST /api/v1/bartender/orders/{id}/confirm-payment", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "status": "paid"})
	})

	mux.HandleFunc("POST /api/v1/bartender/scan", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := strings.Replace(body.Token, "token-", "order-", 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "status": "paid"})
	})

	mux.HandleFunc("PUT /api/v1/bartender/orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.statusCalls = append(f.statusCalls, body.Status)
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "status": body.Status})
	})

	return mux
}

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    loadMode
		wantErr string
	}{
		{name: "checkout", input: "checkout", want: modeCheckout},
		{name: "checkout-confirm", input: "checkout-confirm", want: modeCheckoutConfirm},
		{name: "full-lifecycle", input: "full-lifecycle", want: modeFullLifecycle},
		{name: "unsupported", input: "bad", wantErr: "unsupported mode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMode(tc.input)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected mode: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-base-url=http://127.0.0.1:8080",
			"-mode=checkout-confirm",
			"-total=12",
			"-concurrency=3",
			"-connections=2",
			"-timeout=2s",
			"-cancel-rate=10",
			"-currency=EUR",
			"-club=club-x",
			"-drink=negroni",
			"-price-minor=99",
			"-customer-tag=stage",
			"-output=/tmp/out.json",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cfg.totalSet {
				t.Fatalf("expected totalSet=true")
			}
			if cfg.duration != 0 {
				t.Fatalf("expected zero duration, got %s", cfg.duration)
			}
			if cfg.mode != modeCheckoutConfirm {
				t.Fatalf("unexpected mode: %s", cfg.mode)
			}
			if cfg.total != 12 || cfg.concurrency != 3 || cfg.connections != 2 {
				t.Fatalf("unexpected numeric config: %+v", cfg)
			}
			if cfg.timeout != 2*time.Second {
				t.Fatalf("unexpected timeout: %s", cfg.timeout)
			}
		})
	})

	t.Run("duration mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-duration=3s",
			"-concurrency=2",
			"-connections=1",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.duration != 3*time.Second {
				t.Fatalf("unexpected duration: %s", cfg.duration)
			}
			if cfg.totalSet {
				t.Fatalf("expected totalSet=false when -total was not provided")
			}
		})
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{name: "invalid duration", args: []string{"-duration=bad"}, wantErr: "parse duration"},
			{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "duration must be >= 0"},
			{name: "invalid cancel rate", args: []string{"-cancel-rate=101"}, wantErr: "cancel-rate must be between 0 and 100"},
			{name: "empty total", args: []string{"-duration=0s", "-total=0"}, wantErr: "total must be > 0"},
			{name: "empty drink", args: []string{"-drink= "}, wantErr: "drink is required"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				withCLIArgs(t, tc.args, func() {
					_, err := parseConfig()
					if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
						t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
					}
				})
			})
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatalf("expected non-zero jobs for duration mode")
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 10*time.Millisecond, "200", true)
	c.record("scenario", 20*time.Millisecond, "503", false)
	c.record("Checkout", 15*time.Millisecond, "200", true)

	snap, ok := c.snapshot("scenario")
	if !ok {
		t.Fatalf("scenario snapshot missing")
	}
	if snap.Calls != 2 || snap.Success != 1 || snap.Failed != 1 {
		t.Fatalf("unexpected scenario snapshot: %+v", snap)
	}
	if snap.Codes["200"] != 1 || snap.Codes["503"] != 1 {
		t.Fatalf("unexpected codes: %+v", snap.Codes)
	}

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 2 || r.FailedScenarios != 1 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.RPS <= 0 {
		t.Fatalf("expected positive rps, got %f", r.RPS)
	}
	if _, ok := r.Methods["Checkout"]; !ok {
		t.Fatalf("expected Checkout stats in report")
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := errorCode(nil); got != "200" {
		t.Fatalf("errorCode(nil) = %s, want 200", got)
	}
	if got := errorCode(&client.APIError{HTTPStatus: 409}); got != "409" {
		t.Fatalf("unexpected api error code: %s", got)
	}
	if got := errorCode(io.ErrUnexpectedEOF); got != "transport" {
		t.Fatalf("unexpected transport code: %s", got)
	}

	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.P50 <= 0 || summary.P95 <= 0 || summary.Max != 40 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if p := percentile(values, 95); p <= 0 {
		t.Fatalf("unexpected percentile: %f", p)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}

	if shouldCancelScenario(5, 0) {
		t.Fatal("cancel rate 0 must never cancel")
	}
	if !shouldCancelScenario(5, 100) {
		t.Fatal("cancel rate 100 must always cancel")
	}
	if !shouldCancelScenario(5, 10) || shouldCancelScenario(15, 10) {
		t.Fatal("cancel rate must follow index modulo")
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	sample := report{TotalScenarios: 2, SuccessScenarios: 2}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.SuccessScenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
}

func testScenarioClients(t *testing.T, fake *fakeOrdersServer) (scenarioClients, func()) {
	t.Helper()

	srv := httptest.NewServer(fake.handler())
	sc := scenarioClients{
		httpClient: srv.Client(),
		baseURL:    srv.URL,
		bartender: client.NewClient(srv.URL,
			client.WithHTTPClient(srv.Client()),
			client.WithBartender("bartender-1", "club-load"),
		),
	}
	return sc, srv.Close
}

func TestRunScenario(t *testing.T) {
	cfg := config{
		mode:        modeFullLifecycle,
		timeout:     2 * time.Second,
		currency:    "USD",
		clubID:      "club-load",
		drinkID:     "mojito",
		priceMinor:  500,
		customerTag: "load",
	}

	t.Run("full lifecycle", func(t *testing.T) {
		fake := &fakeOrdersServer{}
		sc, closeSrv := testScenarioClients(t, fake)
		defer closeSrv()

		col := newCollector()
		if err := runScenario(sc, cfg, 1, "run-1", col); err != nil {
			t.Fatalf("runScenario failed: %v", err)
		}

		if len(fake.seenKeys) != 1 || !strings.HasPrefix(fake.seenKeys[0], "lt-checkout-run-1-1") {
			t.Fatalf("unexpected idempotency keys: %v", fake.seenKeys)
		}
		if !slices.Equal(fake.statusCalls, []string{"preparing", "ready", "completed"}) {
			t.Fatalf("unexpected status sequence: %v", fake.statusCalls)
		}

		for _, method := range []string{"Checkout", "ConfirmCashPayment", "Scan", "UpdateStatus", "scenario"} {
			snap, ok := col.snapshot(method)
			if !ok || snap.Failed != 0 {
				t.Fatalf("unexpected stats for %s: %+v ok=%v", method, snap, ok)
			}
		}
	})

	t.Run("checkout only", func(t *testing.T) {
		fake := &fakeOrdersServer{}
		sc, closeSrv := testScenarioClients(t, fake)
		defer closeSrv()

		checkoutCfg := cfg
		checkoutCfg.mode = modeCheckout

		col := newCollector()
		if err := runScenario(sc, checkoutCfg, 1, "run-2", col); err != nil {
			t.Fatalf("runScenario failed: %v", err)
		}
		if len(fake.statusCalls) != 0 {
			t.Fatalf("checkout mode must not transition orders: %v", fake.statusCalls)
		}
	})

	t.Run("confirm with cancel", func(t *testing.T) {
		fake := &fakeOrdersServer{}
		sc, closeSrv := testScenarioClients(t, fake)
		defer closeSrv()

		cancelCfg := cfg
		cancelCfg.mode = modeCheckoutConfirm
		cancelCfg.cancelRate = 100

		col := newCollector()
		if err := runScenario(sc, cancelCfg, 1, "run-3", col); err != nil {
			t.Fatalf("runScenario failed: %v", err)
		}
		if !slices.Equal(fake.statusCalls, []string{"cancelled"}) {
			t.Fatalf("expected cancel transition, got: %v", fake.statusCalls)
		}
	})

	t.Run("checkout failure", func(t *testing.T) {
		fake := &fakeOrdersServer{failCreate: true}
		sc, closeSrv := testScenarioClients(t, fake)
		defer closeSrv()

		col := newCollector()
		err := runScenario(sc, cfg, 2, "run-4", col)
		if err == nil {
			t.Fatal("expected checkout error")
		}
		snap, ok := col.snapshot("scenario")
		if !ok || snap.Failed != 1 || snap.Codes["503"] != 1 {
			t.Fatalf("unexpected scenario stats: %+v", snap)
		}
	})

	t.Run("empty order id", func(t *testing.T) {
		fake := &fakeOrdersServer{emptyID: true}
		sc, closeSrv := testScenarioClients(t, fake)
		defer closeSrv()

		col := newCollector()
		err := runScenario(sc, cfg, 3, "run-5", col)
		if err == nil || !strings.Contains(err.Error(), "empty order id") {
			t.Fatalf("expected empty id error, got %v", err)
		}
	})
}

func TestPrintReport(t *testing.T) {
	r := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Methods: map[string]methodReport{
			"scenario": {Calls: 2, Success: 2},
			"Checkout": {Calls: 2, Success: 2},
		},
	}

	out := captureStdout(t, func() {
		printReport(r, config{mode: modeCheckout, total: 2})
	})

	if !strings.Contains(out, "Load test summary") {
		t.Fatalf("expected summary header, got: %s", out)
	}
	if !strings.Contains(out, "Checkout") {
		t.Fatalf("expected method section, got: %s", out)
	}
}

func TestMainSmoke(t *testing.T) {
	fake := &fakeOrdersServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	dir := t.TempDir()
	outPath := filepath.Join(dir, "main-report.json")

	withCLIArgs(t, []string{
		"-base-url=" + srv.URL,
		"-mode=checkout",
		"-total=5",
		"-concurrency=2",
		"-connections=1",
		"-timeout=2s",
		"-output=" + outPath,
	}, func() {
		main()
	})

	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected report file from main: %v", err)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}

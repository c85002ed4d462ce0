package contract_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wave-portal/waveportal/internal/contract"
	"github.com/wave-portal/waveportal/internal/devnet"
	"github.com/wave-portal/waveportal/internal/portal"
	"github.com/wave-portal/waveportal/internal/rpc"
)

var portalAddr = common.HexToAddress("0x30895bF7Ad28D83D185d55bfa5F79eA6CDDa6A81")

type harness struct {
	net     *devnet.Devnet
	srv     *httptest.Server
	gateway *contract.Gateway
}

// newHarness starts a devnet and points a gateway at it over ws or http.
func newHarness(t *testing.T, scheme string, chain devnet.ChainOptions, opts contract.Options) *harness {
	t.Helper()
	return newWrappedHarness(t, scheme, chain, opts, nil)
}

// newWrappedHarness is newHarness with wrap placed in front of the devnet
// handler.
func newWrappedHarness(t *testing.T, scheme string, chain devnet.ChainOptions, opts contract.Options, wrap func(http.Handler) http.Handler) *harness {
	t.Helper()
	chain.Contract = portalAddr
	if chain.Accounts == 0 {
		chain.Accounts = 1
	}
	d := devnet.New(devnet.Options{Chain: chain})
	handler := d.Handler()
	if wrap != nil {
		handler = wrap(handler)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	url := srv.URL
	if scheme == "ws" {
		url = "ws" + strings.TrimPrefix(srv.URL, "http")
	}
	client, err := rpc.New(url, rpc.Options{DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	opts.Address = portalAddr
	if opts.ReceiptPollInterval == 0 {
		opts.ReceiptPollInterval = 10 * time.Millisecond
	}
	if opts.LogPollInterval == 0 {
		opts.LogPollInterval = 20 * time.Millisecond
	}
	return &harness{net: d, srv: srv, gateway: contract.NewGateway(client, opts)}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFetchWaveCountAndWaves(t *testing.T) {
	for _, scheme := range []string{"http", "ws"} {
		t.Run(scheme, func(t *testing.T) {
			h := newHarness(t, scheme, devnet.ChainOptions{}, contract.Options{})
			ctx := testContext(t)

			count, err := h.gateway.FetchWaveCount(ctx)
			if err != nil {
				t.Fatalf("FetchWaveCount: %v", err)
			}
			if count != 0 {
				t.Fatalf("fresh contract count = %d", count)
			}

			h.net.Generator.Seed(3)

			count, err = h.gateway.FetchWaveCount(ctx)
			if err != nil || count != 3 {
				t.Fatalf("count = %d, %v", count, err)
			}
			waves, err := h.gateway.FetchAllWaves(ctx)
			if err != nil {
				t.Fatalf("FetchAllWaves: %v", err)
			}
			if len(waves) != 3 {
				t.Fatalf("expected 3 waves, got %d", len(waves))
			}
			records := h.net.Chain.Waves()
			for i, w := range waves {
				if w.Message != records[i].Message || w.Sender != records[i].Waver.Hex() {
					t.Errorf("wave %d = %+v, want %+v", i, w, records[i])
				}
				if w.Timestamp.IsZero() {
					t.Errorf("wave %d has no timestamp", i)
				}
			}
		})
	}
}

func TestFetchWrongAddress(t *testing.T) {
	h := newHarness(t, "http", devnet.ChainOptions{}, contract.Options{})
	client, _ := rpc.New(h.srv.URL, rpc.Options{})
	g := contract.NewGateway(client, contract.Options{Address: common.HexToAddress("0x01")})

	if _, err := g.FetchWaveCount(testContext(t)); !errors.Is(err, portal.ErrRemoteRead) {
		t.Errorf("expected ErrRemoteRead, got %v", err)
	}
}

func TestSubmitWave(t *testing.T) {
	h := newHarness(t, "ws", devnet.ChainOptions{Preauthorize: true}, contract.Options{})
	ctx := testContext(t)

	count, err := h.gateway.SubmitWave(ctx, "gm")
	if err != nil {
		t.Fatalf("SubmitWave: %v", err)
	}
	if count != 1 {
		t.Errorf("count after submit = %d, want 1", count)
	}
	waves := h.net.Chain.Waves()
	if waves[0].Waver != h.net.Chain.Accounts()[0] {
		t.Errorf("sender = %s, want the authorized account", waves[0].Waver.Hex())
	}
}

func TestSubmitWaveErrors(t *testing.T) {
	tests := []struct {
		name    string
		chain   devnet.ChainOptions
		opts    contract.Options
		message string
		prime   bool
		want    error
	}{
		{"empty message", devnet.ChainOptions{Preauthorize: true}, contract.Options{}, "  ", false, portal.ErrEmptyMessage},
		{"not authorized", devnet.ChainOptions{}, contract.Options{}, "hi", false, portal.ErrUserRejected},
		{"out of gas", devnet.ChainOptions{Preauthorize: true}, contract.Options{GasLimit: 21000}, "hi", false, portal.ErrTransactionFailed},
		{"cooldown", devnet.ChainOptions{Preauthorize: true, Cooldown: time.Hour}, contract.Options{}, "again", true, portal.ErrTransactionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "http", tt.chain, tt.opts)
			ctx := testContext(t)
			if tt.prime {
				if _, err := h.gateway.SubmitWave(ctx, "first"); err != nil {
					t.Fatalf("priming wave: %v", err)
				}
			}
			before := h.net.Chain.WaveCount()

			_, err := h.gateway.SubmitWave(ctx, tt.message)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if h.net.Chain.WaveCount() != before {
				t.Error("failed submit must not change the count")
			}
		})
	}
}

func TestSubscribeNewWave(t *testing.T) {
	for _, scheme := range []string{"ws", "http"} {
		t.Run(scheme, func(t *testing.T) {
			h := newHarness(t, scheme, devnet.ChainOptions{Preauthorize: true}, contract.Options{})
			ctx := testContext(t)

			waves, err := h.gateway.SubscribeNewWave(ctx)
			if err != nil {
				t.Fatalf("SubscribeNewWave: %v", err)
			}

			if _, err := h.gateway.SubmitWave(ctx, "hello subscribers"); err != nil {
				t.Fatalf("SubmitWave: %v", err)
			}

			select {
			case w := <-waves:
				if w.Message != "hello subscribers" {
					t.Errorf("message = %q", w.Message)
				}
				if !strings.EqualFold(w.Sender, h.net.Chain.Accounts()[0].Hex()) {
					t.Errorf("sender = %s", w.Sender)
				}
			case <-ctx.Done():
				t.Fatal("no NewWave delivered")
			}
		})
	}
}

func TestSubmitCountReadFailure(t *testing.T) {
	// once a transaction is sent, every eth_call fails
	var sent atomic.Bool
	failCalls := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
			switch {
			case bytes.Contains(body, []byte(`"eth_sendTransaction"`)):
				sent.Store(true)
			case sent.Load() && bytes.Contains(body, []byte(`"eth_call"`)):
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	h := newWrappedHarness(t, "http", devnet.ChainOptions{Preauthorize: true}, contract.Options{}, failCalls)
	ctx := testContext(t)

	_, err := h.gateway.SubmitWave(ctx, "mined anyway")
	if !errors.Is(err, portal.ErrRemoteWrite) {
		t.Fatalf("err = %v, want ErrRemoteWrite", err)
	}
	if errors.Is(err, portal.ErrRemoteRead) {
		t.Error("a mined wave must not report a read failure")
	}
	if h.net.Chain.WaveCount() != 1 {
		t.Errorf("wave should be on chain, count = %d", h.net.Chain.WaveCount())
	}
}

func TestSubscribeSurvivesDisconnect(t *testing.T) {
	h := newHarness(t, "ws", devnet.ChainOptions{Preauthorize: true}, contract.Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	waves, err := h.gateway.SubscribeNewWave(ctx)
	if err != nil {
		t.Fatalf("SubscribeNewWave: %v", err)
	}
	waitFor(ctx, t, func() bool { return h.net.Broadcaster.SubscriptionCount() == 1 })

	h.net.Broadcaster.DisconnectAll()
	waitFor(ctx, t, func() bool { return h.net.Broadcaster.SubscriptionCount() == 1 })

	if _, err := h.gateway.SubmitWave(ctx, "after the drop"); err != nil {
		t.Fatalf("SubmitWave: %v", err)
	}

	select {
	case w, ok := <-waves:
		if !ok {
			t.Fatal("stream closed instead of resubscribing")
		}
		if w.Message != "after the drop" {
			t.Errorf("message = %q", w.Message)
		}
	case <-ctx.Done():
		t.Fatal("no NewWave delivered after resubscribe")
	}
}

func waitFor(ctx context.Context, t *testing.T, cond func() bool) {
	t.Helper()
	for !cond() {
		select {
		case <-ctx.Done():
			t.Fatal("condition not reached")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubscribeStopsOnCancel(t *testing.T) {
	h := newHarness(t, "ws", devnet.ChainOptions{}, contract.Options{})
	ctx, cancel := context.WithCancel(testContext(t))

	waves, err := h.gateway.SubscribeNewWave(ctx)
	if err != nil {
		t.Fatalf("SubscribeNewWave: %v", err)
	}
	cancel()

	select {
	case _, ok := <-waves:
		if ok {
			t.Fatal("expected channel to close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

package session

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/codetango/internal/snapshot"
	"github.com/danmuck/codetango/internal/testutil/testlog"
)

func socketPair(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	dir, err := os.MkdirTemp("", "ctsess")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c
	}()
	client, err := Dial(context.Background(), path, DefaultConfig(), 1)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server := <-accepted
	if server == nil {
		t.Fatalf("accept failed")
	}
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 1, rng)
	if got < 125*time.Millisecond || got > 375*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestDecodeIdentifyRequiresProgramID(t *testing.T) {
	testlog.Start(t)
	got, err := DecodeIdentify([]byte(`{"program_id":"program1"}`))
	if err != nil {
		t.Fatalf("decode identify: %v", err)
	}
	if got.ProgramID != "program1" {
		t.Fatalf("unexpected identify: %+v", got)
	}
	if _, err := DecodeIdentify([]byte(`{"program_id":"  "}`)); !errors.Is(err, ErrInvalidIdentify) {
		t.Fatalf("expected ErrInvalidIdentify, got %v", err)
	}
	if _, err := DecodeIdentify([]byte(`[]`)); !errors.Is(err, ErrInvalidIdentify) {
		t.Fatalf("expected ErrInvalidIdentify for non-object, got %v", err)
	}
}

func TestDecodeSubmissionValidation(t *testing.T) {
	testlog.Start(t)
	sub, err := DecodeSubmission([]byte(`{"barrier_id":"init","variables":{"x":1,"y":[1,2]}}`))
	if err != nil {
		t.Fatalf("decode submission: %v", err)
	}
	if sub.BarrierID != "init" || sub.Variables.Len() != 2 {
		t.Fatalf("unexpected submission: %+v", sub)
	}

	bad := []string{
		`{"variables":{}}`,
		`{"barrier_id":"a"}`,
		`{"barrier_id":"a","variables":null}`,
		`{"barrier_id":"a","variables":[1]}`,
		`{"barrier_id":7,"variables":{}}`,
	}
	for _, raw := range bad {
		if _, err := DecodeSubmission([]byte(raw)); !errors.Is(err, ErrInvalidSubmission) {
			t.Fatalf("expected ErrInvalidSubmission for %s, got %v", raw, err)
		}
	}
}

func TestDecodeVerdictStatus(t *testing.T) {
	testlog.Start(t)
	v, err := DecodeVerdict([]byte(`{"status":"success","message":"Variables match"}`))
	if err != nil || !v.Success() {
		t.Fatalf("unexpected verdict: %+v err=%v", v, err)
	}
	v, err = DecodeVerdict([]byte(`{"status":"failure","message":"Variables differ"}`))
	if err != nil || v.Success() {
		t.Fatalf("unexpected verdict: %+v err=%v", v, err)
	}
	if _, err := DecodeVerdict([]byte(`{"status":"maybe"}`)); !errors.Is(err, ErrInvalidVerdict) {
		t.Fatalf("expected ErrInvalidVerdict, got %v", err)
	}
}

func TestConnSendReceiveRoundTrip(t *testing.T) {
	testlog.Start(t)
	client, serverRaw := socketPair(t)
	server := NewConn(serverRaw, DefaultConfig())

	vars := snapshot.New()
	if err := vars.Set("x", 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := client.Send(Submission{BarrierID: "init", Variables: vars}); err != nil {
		t.Fatalf("send: %v", err)
	}
	raw, err := server.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	sub, err := DecodeSubmission(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.BarrierID != "init" || !sub.Variables.Has("x") {
		t.Fatalf("unexpected submission: %+v", sub)
	}
}

func TestConnSplitsCoalescedAndPartialMessages(t *testing.T) {
	testlog.Start(t)
	client, serverRaw := socketPair(t)
	server := NewConn(serverRaw, DefaultConfig())

	if _, err := client.Raw().Write([]byte(`{"program_id":"program1"}{"barrier_id":"a","vari`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := server.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("receive first: %v", err)
	}
	if _, err := DecodeIdentify(raw); err != nil {
		t.Fatalf("decode identify: %v", err)
	}
	if _, err := server.Receive(50 * time.Millisecond); !errors.Is(err, ErrReceiveTimeout) {
		t.Fatalf("expected ErrReceiveTimeout on partial message, got %v", err)
	}
	if _, err := client.Raw().Write([]byte(`ables":{}}`)); err != nil {
		t.Fatalf("write rest: %v", err)
	}
	raw, err = server.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("receive second: %v", err)
	}
	if sub, err := DecodeSubmission(raw); err != nil || sub.BarrierID != "a" {
		t.Fatalf("unexpected submission: %+v err=%v", sub, err)
	}
}

func TestConnMalformedMessageDropsBufferAndRecovers(t *testing.T) {
	testlog.Start(t)
	client, serverRaw := socketPair(t)
	server := NewConn(serverRaw, DefaultConfig())

	if _, err := client.Raw().Write([]byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := server.Receive(2 * time.Second); !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
	if err := client.Send(Identify{ProgramID: "program2"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	raw, err := server.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("receive after malformed: %v", err)
	}
	if id, err := DecodeIdentify(raw); err != nil || id.ProgramID != "program2" {
		t.Fatalf("unexpected identify: %+v err=%v", id, err)
	}
}

func TestConnReceiveReportsClosedPeer(t *testing.T) {
	testlog.Start(t)
	client, serverRaw := socketPair(t)
	server := NewConn(serverRaw, DefaultConfig())
	_ = client.Close()
	if _, err := server.Receive(2 * time.Second); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}

func TestConnMessageSizeBound(t *testing.T) {
	testlog.Start(t)
	client, serverRaw := socketPair(t)
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 64
	server := NewConn(serverRaw, cfg)

	big := make([]byte, 200)
	for i := range big {
		big[i] = ' '
	}
	big[0] = '['
	go func() { _, _ = client.Raw().Write(big) }()
	if _, err := server.Receive(2 * time.Second); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestConnOversizedMessageTailIsDiscarded(t *testing.T) {
	testlog.Start(t)
	client, serverRaw := socketPair(t)
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 64
	server := NewConn(serverRaw, cfg)

	big := []byte(`{"barrier_id":"a","variables":{"blob":"` + strings.Repeat("x", 5*readChunkSize) + `"}}`)
	written := make(chan error, 1)
	go func() {
		_, err := client.Raw().Write(big)
		written <- err
	}()
	if _, err := server.Receive(2 * time.Second); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if err := <-written; err != nil {
		t.Fatalf("write oversized: %v", err)
	}

	if err := client.Send(Identify{ProgramID: "program1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	raw, err := server.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("receive after oversized message: %v", err)
	}
	if id, err := DecodeIdentify(raw); err != nil || id.ProgramID != "program1" {
		t.Fatalf("unexpected message after oversized one: %s err=%v", raw, err)
	}
}

func TestConnReceiveContextCancel(t *testing.T) {
	testlog.Start(t)
	_, serverRaw := socketPair(t)
	server := NewConn(serverRaw, DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := server.ReceiveContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestDialMissingSocketFails(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.DialTimeout = 100 * time.Millisecond
	if _, err := Dial(context.Background(), filepath.Join(os.TempDir(), "codetango-missing.sock"), cfg, 2); err == nil {
		t.Fatalf("expected dial error")
	}
}

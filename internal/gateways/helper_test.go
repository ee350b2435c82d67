package gateway

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type upstream struct {
	calls atomic.Int32
}

// serve runs handler on an in-memory listener and returns a config whose
// dialer reaches it.
func serve(t *testing.T, handler func(ctx *fasthttp.RequestCtx, call int32)) (Config, *upstream) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	u := &upstream{}
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		handler(ctx, u.calls.Add(1))
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	return Config{
		Name:        "test",
		BaseURL:     "http://upstream.test/v1/",
		APIKey:      "sk-test-key",
		Timeout:     time.Second,
		MaxAttempts: 3,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		Dial:        func(string) (net.Conn, error) { return ln.Dial() },
	}, u
}

// refusing returns a config whose dialer always fails.
func refusing() Config {
	return Config{
		Name:        "test",
		BaseURL:     "http://upstream.test",
		Timeout:     time.Second,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Dial: func(string) (net.Conn, error) {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errRefused}
		},
	}
}

type refusedErr struct{}

func (refusedErr) Error() string { return "connection refused" }

var errRefused = refusedErr{}

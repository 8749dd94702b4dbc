package server

import (
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/chazu/neon/asm"
	"github.com/chazu/neon/vm/dist"
)

// moduleBytes assembles src and encodes the result.
func moduleBytes(t *testing.T, src string) []byte {
	t.Helper()
	m, err := asm.Assemble(src, dist.Builtins())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	data, err := m.Store()
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	return data
}

func newTestService(t *testing.T, opts ...ServiceOption) *ExecutorService {
	t.Helper()
	pool := NewPool(2)
	t.Cleanup(pool.Stop)
	return NewExecutorService(pool, opts...)
}

func run(t *testing.T, s *ExecutorService, data []byte) (*Outcome, error) {
	t.Helper()
	st, err := s.Run(context.Background(), wrapperspb.Bytes(data))
	if err != nil {
		return nil, err
	}
	o, err := DecodeOutcome(st)
	if err != nil {
		t.Fatalf("DecodeOutcome: %v", err)
	}
	return o, nil
}

const (
	helloSrc = `
    PUSHS "hi"
    CALLP builtin$print
    PUSHI 42
    HALT
`
	raiseSrc = `
    PUSHS "disk on fire"
    RAISE "App.Failure"
`
	exitSrc = `
    PUSHS "bye"
    CALLP builtin$print
    PUSHI 3
    CALLP sys$exit
`
	fileSrc = `
    PUSHS "/etc/passwd"
    CALLP file$exists
`
)

// ---------------------------------------------------------------------------
// Run outcomes
// ---------------------------------------------------------------------------

func TestRunResult(t *testing.T) {
	o, err := run(t, newTestService(t), moduleBytes(t, helloSrc))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.Result != "42" || o.Output != "hi\n" {
		t.Errorf("outcome = %+v", o)
	}
	if o.Exception != nil || o.Exited {
		t.Errorf("unexpected exception or exit: %+v", o)
	}
}

func TestRunUncaughtException(t *testing.T) {
	o, err := run(t, newTestService(t), moduleBytes(t, raiseSrc))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	e := o.Exception
	if e == nil {
		t.Fatalf("no exception in %+v", o)
	}
	if e.Name != "App.Failure" || e.Info != "disk on fire" {
		t.Errorf("exception = %+v", e)
	}
	if len(e.Trace) == 0 || e.Trace[0].Module != "main" || e.Trace[0].PC != 3 {
		t.Errorf("trace = %+v", e.Trace)
	}
	if !strings.HasPrefix(e.String(), "Unhandled exception App.Failure (disk on fire)") {
		t.Errorf("report = %q", e.String())
	}
}

func TestRunExit(t *testing.T) {
	o, err := run(t, newTestService(t), moduleBytes(t, exitSrc))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !o.Exited || o.ExitCode != 3 || o.Output != "bye\n" {
		t.Errorf("outcome = %+v", o)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []ServiceOption
		data []byte
		code connect.Code
	}{
		{"empty", nil, nil, connect.CodeInvalidArgument},
		{"truncated", nil, []byte{0}, connect.CodeInvalidArgument},
		{"too large", []ServiceOption{WithMaxModuleSize(4)}, moduleBytes(t, helloSrc), connect.CodeResourceExhausted},
		{"denied", []ServiceOption{WithPolicy(denyFile())}, moduleBytes(t, fileSrc), connect.CodePermissionDenied},
		{"unknown builtin", nil, moduleBytes(t, "    CALLP 65000\n"), connect.CodeInvalidArgument},
		{"internal", nil, moduleBytes(t, "    DROP\n"), connect.CodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, newTestService(t, tc.opts...), tc.data)
			if err == nil {
				t.Fatal("Run succeeded")
			}
			if got := connect.CodeOf(err); got != tc.code {
				t.Errorf("code = %v, want %v (%v)", got, tc.code, err)
			}
		})
	}
}

func denyFile() *dist.CapabilityPolicy {
	p := dist.NewPermissivePolicy()
	p.Deny("file")
	return p
}

func TestRunIsolatesExecutors(t *testing.T) {
	s := newTestService(t)
	// each run stores its own id in global 0 and reads it back
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		data := moduleBytes(t, fmt.Sprintf(".globals 1\n    PUSHI %d\n    STOREG 0\n    LOADG 0\n    HALT\n", i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := s.Run(context.Background(), wrapperspb.Bytes(data))
			if err != nil {
				errs <- err
				return
			}
			o, err := DecodeOutcome(st)
			if err != nil {
				errs <- err
				return
			}
			if o.Result != fmt.Sprint(i) {
				errs <- fmt.Errorf("run %d returned %s", i, o.Result)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// ---------------------------------------------------------------------------
// Transports
// ---------------------------------------------------------------------------

func TestConnectTransport(t *testing.T) {
	srv := New(2, WithPolicy(denyFile()))
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.Shutdown(context.Background())

	c := NewClient(ts.Client(), ts.URL)
	o, err := c.Run(context.Background(), moduleBytes(t, helloSrc))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.Result != "42" || o.Output != "hi\n" {
		t.Errorf("outcome = %+v", o)
	}

	_, err = c.Run(context.Background(), moduleBytes(t, fileSrc))
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Errorf("error = %v, want PermissionDenied", err)
	}
}

func TestGRPCTransport(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	newTestService(t, WithPolicy(denyFile())).RegisterGRPC(gs)
	go gs.Serve(lis)
	defer gs.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	c := NewGRPCClient(conn)
	o, err := c.Run(context.Background(), moduleBytes(t, raiseSrc))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.Exception == nil || o.Exception.Name != "App.Failure" {
		t.Errorf("outcome = %+v", o)
	}

	_, err = c.Run(context.Background(), moduleBytes(t, fileSrc))
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("error = %v, want PermissionDenied", err)
	}
	_, err = c.Run(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("error = %v, want InvalidArgument", err)
	}
}

func TestDecodeOutcomeRejectsEmpty(t *testing.T) {
	if _, err := DecodeOutcome(nil); err == nil {
		t.Error("DecodeOutcome(nil) succeeded")
	}
}

package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/classfiles/internal/logging"
)

type countingLogger struct {
	logging.Nop
	debug, warn *int
}

func newCountingLogger() countingLogger {
	return countingLogger{debug: new(int), warn: new(int)}
}

func (c countingLogger) Debug(context.Context, string, ...any) { *c.debug++ }
func (c countingLogger) Warn(context.Context, string, ...any)  { *c.warn++ }
func (c countingLogger) With(...any) logging.Logger            { return c }

func TestInterceptor_PassesThrough(t *testing.T) {
	l := newCountingLogger()
	s := NewHealthServer("", l, readyProber{}, 0)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	handlerCalled := false
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if *l.debug != 1 || *l.warn != 0 {
		t.Fatalf("debug=%d warn=%d, want 1/0", *l.debug, *l.warn)
	}
}

func TestInterceptor_KeepsErrorCode(t *testing.T) {
	l := newCountingLogger()
	s := NewHealthServer("", l, readyProber{}, 0)

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	}

	_, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if *l.warn != 1 {
		t.Fatalf("warn=%d, want 1", *l.warn)
	}
}

package kit

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+">")
				resp, err := next(ctx, req)
				order = append(order, "<"+name)
				return resp, err
			}
		}
	}
	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "call")
		return "ok", nil
	}

	resp, err := Chain(mw("outer"), mw("inner"))(base)(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}
	want := []string{"outer>", "inner>", "call", "<inner", "<outer"}
	if len(order) != len(want) {
		t.Fatalf("order: got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], want[i])
		}
	}
}

func TestContext_Values(t *testing.T) {
	ctx := context.Background()
	if GetUserID(ctx) != "" || GetEmail(ctx) != "" || GetTraceID(ctx) != "" {
		t.Fatal("empty context should yield empty values")
	}
	if GetTransport(ctx) != "http" {
		t.Fatalf("default transport: got %q", GetTransport(ctx))
	}

	ctx = WithUserID(ctx, "usr_1")
	ctx = WithEmail(ctx, "a@example.com")
	ctx = WithTraceID(ctx, "deadbeef")
	ctx = WithTransport(ctx, "mcp")

	if v := GetUserID(ctx); v != "usr_1" {
		t.Fatalf("user_id: got %q", v)
	}
	if v := GetEmail(ctx); v != "a@example.com" {
		t.Fatalf("email: got %q", v)
	}
	if v := GetTraceID(ctx); v != "deadbeef" {
		t.Fatalf("trace_id: got %q", v)
	}
	if v := GetTransport(ctx); v != "mcp" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := error(Internal("storage failed", cause))

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the cause")
	}
	e := AsError(err)
	if e == nil {
		t.Fatal("AsError returned nil")
	}
	if e.Status != http.StatusInternalServerError {
		t.Fatalf("status: got %d", e.Status)
	}
	if AsError(cause) != nil {
		t.Fatal("plain error should not convert")
	}
}

package audit

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/docsum/dbopen"
)

func TestLog_Sync(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	a := New(db, 10, nil)
	defer a.Close()

	e := &Entry{Action: "login", UserID: "u1", IP: "10.0.0.1"}
	if err := a.Log(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if e.ID == "" || e.Time.IsZero() || e.Status != StatusSuccess {
		t.Fatalf("defaults not filled: %+v", e)
	}
	got, err := a.ForUser(context.Background(), "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Action != "login" || got[0].IP != "10.0.0.1" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestLogAsync_FlushedOnClose(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	a := New(db, 10, nil)
	for _, action := range []string{"signup", "verify", "login"} {
		a.LogAsync(&Entry{Action: action, UserID: "u1"})
	}
	a.LogAsync(&Entry{Action: "login", UserID: "u2", Status: StatusFailure})
	a.Close()

	got, err := a.ForUser(context.Background(), "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("u1 entries = %d, want 3", len(got))
	}
	other, _ := a.ForUser(context.Background(), "u2", 10)
	if len(other) != 1 || other[0].Status != StatusFailure {
		t.Fatalf("u2 entries = %+v", other)
	}
}

func TestLogAsync_BufferFullFallsBack(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	// A one-slot buffer sends most entries down the sync path.
	a := New(db, 1, nil)
	for i := 0; i < 20; i++ {
		a.LogAsync(&Entry{Action: "chat", UserID: "u1"})
	}
	a.Close()
	got, _ := a.ForUser(context.Background(), "u1", 100)
	if len(got) != 20 {
		t.Fatalf("entries = %d, want 20", len(got))
	}
}

func TestCleanup(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	a := New(db, 10, nil)
	defer a.Close()
	ctx := context.Background()
	a.Log(ctx, &Entry{Action: "old", UserID: "u", Time: time.Now().Add(-48 * time.Hour)})
	a.Log(ctx, &Entry{Action: "new", UserID: "u"})

	n, err := a.Cleanup(ctx, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("Cleanup = %d, %v", n, err)
	}
	got, _ := a.ForUser(ctx, "u", 10)
	if len(got) != 1 || got[0].Action != "new" {
		t.Fatalf("entries = %+v", got)
	}
}

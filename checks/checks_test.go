package checks

import (
	"context"
	"errors"
	"sync"
	"testing"

	perrors "github.com/vinayprograms/pulse/errors"
)

func quiet(id string, p Priority) *Func {
	return NewFunc(id, p, "test check "+id, func(context.Context, any) (Result, error) {
		return OK(), nil
	})
}

// ============================================================================
// Priority
// ============================================================================

func TestPriority_String(t *testing.T) {
	tests := []struct {
		p    Priority
		want string
	}{
		{Critical, "critical"},
		{High, "high"},
		{Medium, "medium"},
		{Low, "low"},
		{Priority(0), "priority(0)"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Priority(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	for _, p := range []Priority{Critical, High, Medium, Low} {
		got, err := ParsePriority(" " + p.String() + " ")
		if err != nil || got != p {
			t.Errorf("ParsePriority(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("expected error for unknown priority")
	}
}

// ============================================================================
// Result
// ============================================================================

func TestResult_Sanitize(t *testing.T) {
	tests := []struct {
		name string
		in   Result
		want Result
	}{
		{"quiet", OK(), Result{}},
		{"alert", Alert("x", "act"), Result{Notify: true, Message: "x", Action: "act"}},
		{"error wins over notify", Result{Notify: true, Message: "leak", Error: "boom"}, Result{Error: "boom"}},
		{"message without notify dropped", Result{Message: "stray"}, Result{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Sanitize()
			if got.Notify != tt.want.Notify || got.Message != tt.want.Message ||
				got.Action != tt.want.Action || got.Error != tt.want.Error {
				t.Errorf("Sanitize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFailed(t *testing.T) {
	r := Failed(errors.New("db down"))
	if !r.Failed() || r.Notify || r.Error != "db down" {
		t.Errorf("Failed() = %+v", r)
	}
	if Failed(nil).Error == "" {
		t.Error("Failed(nil) should still carry an error")
	}
	if OK().Failed() {
		t.Error("OK() is not failed")
	}
}

func TestFunc_NilBody(t *testing.T) {
	f := &Func{CheckID: "empty", Level: Low, Summary: "no body"}
	if _, err := f.Run(context.Background(), nil); err == nil {
		t.Error("expected error for nil body")
	}
}

// ============================================================================
// Registry
// ============================================================================

func TestRegistry_RegisterGet(t *testing.T) {
	r := NewRegistry()
	c := quiet("c1", Critical)
	if err := r.Register(c); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	got, ok := r.Get("c1")
	if !ok || got != c {
		t.Errorf("Get(c1) = %v, %v", got, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should report absent")
	}
}

func TestRegistry_DuplicateKeepsFirst(t *testing.T) {
	r := NewRegistry()
	first := quiet("dup", High)
	second := quiet("dup", Low)

	if err := r.Register(first); err != nil {
		t.Fatalf("first Register error: %v", err)
	}
	err := r.Register(second)
	if !perrors.Is(err, perrors.ErrCodeDuplicateCheck) {
		t.Fatalf("second Register = %v, want DUPLICATE_CHECK", err)
	}
	if !perrors.IsFatal(err) {
		t.Error("duplicate registration should be a fatal config error")
	}

	got, _ := r.Get("dup")
	if got != first || r.Len() != 1 {
		t.Errorf("registry changed after duplicate: got %v, len %d", got.Priority(), r.Len())
	}
}

func TestRegistry_Validation(t *testing.T) {
	tests := []struct {
		name string
		c    Check
	}{
		{"nil", nil},
		{"empty id", quiet("", High)},
		{"whitespace id", quiet("a b", High)},
		{"colon in id", quiet("mail:unread", High)},
		{"at sign in id", quiet("user@host", High)},
		{"non-ascii id", quiet("café", High)},
		{"wildcard in id", quiet("disk*", High)},
		{"bad priority", quiet("p", Priority(9))},
		{"empty description", NewFunc("d", High, " ", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(tt.c)
			if !perrors.Is(err, perrors.ErrCodeInvalidCheck) {
				t.Errorf("Register = %v, want INVALID_CHECK", err)
			}
			if r.Len() != 0 {
				t.Error("invalid check must not be registered")
			}
		})
	}
}

func TestRegistry_AcceptsKeySafeIDs(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"calendar.upcoming", "disk_space", "mail/inbox", "tier=1", "Backup-Nightly"} {
		if err := r.Register(quiet(id, Low)); err != nil {
			t.Errorf("Register(%q) = %v", id, err)
		}
	}
}

func TestRegistry_ListOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		quiet("h2", High),
		quiet("c1", Critical),
		quiet("h1", High),
		quiet("l1", Low),
	)

	if got := IDs(r.ListByPriority(High)); len(got) != 2 || got[0] != "h2" || got[1] != "h1" {
		t.Errorf("ListByPriority(High) = %v, want [h2 h1]", got)
	}
	if got := r.ListByPriority(Medium); len(got) != 0 {
		t.Errorf("ListByPriority(Medium) = %v, want empty", IDs(got))
	}

	all := IDs(r.ListAll())
	want := []string{"h2", "c1", "h1", "l1"}
	for i := range want {
		if all[i] != want[i] {
			t.Fatalf("ListAll = %v, want %v", all, want)
		}
	}
}

func TestRegistry_ListAllIsCopy(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(quiet("a", Low))
	list := r.ListAll()
	list[0] = quiet("b", Low)
	if r.ListAll()[0].ID() != "a" {
		t.Error("ListAll must return a copy")
	}
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRegister should panic on duplicate")
		}
	}()
	r := NewRegistry()
	r.MustRegister(quiet("x", Low), quiet("x", Low))
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(quiet("a", Low))
	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len after Reset = %d", r.Len())
	}
	if err := r.Register(quiet("a", Low)); err != nil {
		t.Errorf("re-register after Reset: %v", err)
	}
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(quiet("a", Critical), quiet("b", High))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Get("a"); !ok {
				t.Error("Get(a) failed")
			}
			if len(r.ListByPriority(High)) != 1 {
				t.Error("ListByPriority(High) wrong")
			}
		}()
	}
	wg.Wait()
}

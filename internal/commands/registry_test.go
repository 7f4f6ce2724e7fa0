package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/turnstream/pkg/models"
)

func noop(ctx context.Context, inv *Invocation) (*Result, error) {
	return &Result{Text: "ok:" + inv.Args}, nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"/help", "help", "", true},
		{"help", "help", "", true},
		{"  /Help   tools ", "help", "tools", true},
		{"/git:commit fix the bug\nsecond line", "git:commit", "fix the bug\nsecond line", true},
		{"/", "", "", false},
		{"/123", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, args, ok := Parse(tt.in)
			if ok != tt.wantOK || name != tt.wantName || args != tt.wantArgs {
				t.Errorf("Parse(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.in, name, args, ok, tt.wantName, tt.wantArgs, tt.wantOK)
			}
		})
	}
}

func TestRegistry_Register_Errors(t *testing.T) {
	r := NewRegistry(nil)

	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil command")
	}
	if err := r.Register(&Command{Handler: noop}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register(&Command{Name: "x"}); err == nil {
		t.Error("expected error for nil handler")
	}

	if err := r.Register(&Command{Name: "Existing", Aliases: []string{"ex"}, Handler: noop}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(&Command{Name: "existing", Handler: noop}); err == nil {
		t.Error("expected duplicate name to fail")
	}
	if err := r.Register(&Command{Name: "ex", Handler: noop}); err == nil {
		t.Error("expected name that is an alias to fail")
	}
	// A conflicting alias is dropped, the command still registers.
	if err := r.Register(&Command{Name: "other", Aliases: []string{"existing"}, Handler: noop}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if cmd, _ := r.Get("existing"); cmd.Name != "existing" {
		t.Errorf("alias must not shadow a command, got %q", cmd.Name)
	}
}

func TestRegistry_GetAndList(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Command{Name: "zeta", Handler: noop})
	r.Register(&Command{Name: "alpha", Aliases: []string{"a"}, Handler: noop})

	for _, name := range []string{"alpha", "/alpha", "ALPHA", "a", "/a"} {
		if cmd, ok := r.Get(name); !ok || cmd.Name != "alpha" {
			t.Errorf("Get(%q) = %v, %v", name, cmd, ok)
		}
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should fail")
	}

	list := r.List()
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("List() not sorted: %v", list)
	}
}

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Command{Name: "echo", AcceptsArgs: true, Handler: noop})
	r.Register(&Command{Name: "bare", Handler: noop})
	r.Register(&Command{Name: "nil", Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
		return nil, nil
	}})
	r.Register(&Command{Name: "boom", Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
		return nil, errors.New("boom")
	}})

	res, err := r.Execute(context.Background(), "/echo", "  hi  ", Env{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Text != "ok:hi" || res.Action != models.CommandActionMessage {
		t.Errorf("unexpected result %+v", res)
	}

	res, err = r.Execute(context.Background(), "bare", "extra", Env{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Error, "does not accept arguments") {
		t.Errorf("expected argument error, got %+v", res)
	}

	res, err = r.Execute(context.Background(), "nil", "", Env{})
	if err != nil || res == nil || res.Action != models.CommandActionMessage {
		t.Errorf("nil result should become an empty message, got %+v (%v)", res, err)
	}

	if _, err := r.Execute(context.Background(), "boom", "", Env{}); err == nil || err.Error() != "boom" {
		t.Errorf("expected handler error, got %v", err)
	}

	_, err = r.Execute(context.Background(), "/nope", "", Env{})
	if !errors.Is(err, ErrNotFound) || !strings.Contains(err.Error(), "/nope") {
		t.Errorf("expected ErrNotFound naming /nope, got %v", err)
	}
}

package script

import (
	"context"
	"errors"
	"testing"

	"github.com/emberfall-mud/emberfall/pkg/world"
)

func TestRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	r.Register("greet", func(ctx context.Context, env *Env, params map[string]any) (any, error) {
		return "hello " + StringArg(params, "name"), nil
	}, Params{"name": ParamString}, "greets someone")

	if !r.Known("greet") {
		t.Fatal("Known should report registered script")
	}
	call := world.ScriptCall{Name: "greet", Args: map[string]any{"name": "ada"}}
	out, err := r.Execute(context.Background(), call, &Env{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello ada" {
		t.Errorf("result = %v", out)
	}
}

func TestExecuteUnknownScript(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), world.ScriptCall{Name: "nope"}, &Env{})
	if !errors.Is(err, ErrUnknownScript) {
		t.Errorf("err = %v, want ErrUnknownScript", err)
	}
}

func TestExecuteParamValidation(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("pay", func(ctx context.Context, env *Env, params map[string]any) (any, error) {
		called = true
		return IntArg(params, "amount"), nil
	}, Params{"amount": ParamInt}, "")

	// Missing required parameter: rejected before the function runs.
	_, err := r.Execute(context.Background(), world.ScriptCall{Name: "pay", Args: map[string]any{}}, &Env{})
	if !errors.Is(err, ErrBadParams) {
		t.Errorf("missing param: err = %v", err)
	}
	if called {
		t.Fatal("function must not run on validation failure")
	}

	// Wrong type.
	_, err = r.Execute(context.Background(),
		world.ScriptCall{Name: "pay", Args: map[string]any{"amount": "ten"}}, &Env{})
	if !errors.Is(err, ErrBadParams) {
		t.Errorf("wrong type: err = %v", err)
	}

	// Extra parameters are tolerated.
	out, err := r.Execute(context.Background(),
		world.ScriptCall{Name: "pay", Args: map[string]any{"amount": 10, "note": "tip"}}, &Env{})
	if err != nil {
		t.Fatal(err)
	}
	if out != 10 {
		t.Errorf("result = %v", out)
	}
}

func TestExecutePropagatesScriptError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register("explode", func(ctx context.Context, env *Env, params map[string]any) (any, error) {
		return nil, boom
	}, nil, "")

	_, err := r.Execute(context.Background(), world.ScriptCall{Name: "explode"}, &Env{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register("f", func(ctx context.Context, env *Env, params map[string]any) (any, error) {
		return 1, nil
	}, nil, "first")
	r.Register("f", func(ctx context.Context, env *Env, params map[string]any) (any, error) {
		return 2, nil
	}, nil, "second")

	out, err := r.Execute(context.Background(), world.ScriptCall{Name: "f"}, &Env{})
	if err != nil {
		t.Fatal(err)
	}
	if out != 2 {
		t.Errorf("last registration should win, got %v", out)
	}
	if desc, _ := r.Describe("f"); desc != "second" {
		t.Errorf("description = %q", desc)
	}
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry()
	nop := func(ctx context.Context, env *Env, params map[string]any) (any, error) { return nil, nil }
	r.Register("zeta", nop, nil, "")
	r.Register("alpha", nop, nil, "")
	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("names = %v", names)
	}
}

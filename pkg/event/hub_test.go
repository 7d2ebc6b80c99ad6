package event

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/emberfall-mud/emberfall/pkg/script"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

func buildWorld(t *testing.T, itemsYAML string) *world.World {
	t.Helper()
	dir := t.TempDir()
	rooms := `
rooms:
  plaza:
    name: The Plaza
`
	if err := os.WriteFile(filepath.Join(dir, "rooms.yaml"), []byte(rooms), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "items.yaml"), []byte(itemsYAML), 0644); err != nil {
		t.Fatal(err)
	}
	tables, err := world.LoadContent(dir)
	if err != nil {
		t.Fatal(err)
	}
	w := world.New(tables)
	if err := w.Sync(); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestBeforeRunsHooksInPriorityOrder(t *testing.T) {
	w := buildWorld(t, `
items:
  idol:
    name: an idol
    location: "room:plaza"
    scripts:
      get:
        - script: "mark(tag=low)"
          phase: before
        - script: "mark(tag=high)"
          priority: 10
          phase: before
        - script: "mark(tag=mid)"
          priority: 5
          phase: before
`)
	var ran []string
	reg := script.NewRegistry()
	reg.Register("mark", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		ran = append(ran, script.StringArg(params, "tag"))
		return nil, nil
	}, script.Params{"tag": script.ParamString}, "")

	hub := New(reg, Deps{World: w})
	idol, _ := w.Item("idol")
	res := hub.Before(context.Background(), "get", Invocation{Target: idol})
	if res.CancelAction {
		t.Fatal("nothing should cancel")
	}
	if want := []string{"high", "mid", "low"}; !reflect.DeepEqual(ran, want) {
		t.Errorf("order = %v, want %v", ran, want)
	}
}

func TestBeforeCancelShortCircuits(t *testing.T) {
	w := buildWorld(t, `
items:
  idol:
    name: a cursed idol
    location: "room:plaza"
    scripts:
      get:
        - script: deny_if_cursed
          priority: 10
          phase: before
          cancel_message: "It burns your hand!"
        - script: mark
          priority: 5
          phase: before
`)
	marks := 0
	reg := script.NewRegistry()
	reg.Register("deny_if_cursed", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		return false, nil
	}, nil, "")
	reg.Register("mark", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		marks++
		return nil, nil
	}, nil, "")

	hub := New(reg, Deps{World: w})
	idol, _ := w.Item("idol")
	res := hub.Before(context.Background(), "get", Invocation{Target: idol})
	if !res.CancelAction {
		t.Fatal("false return must cancel the action")
	}
	if res.Message != "It burns your hand!" {
		t.Errorf("message = %q", res.Message)
	}
	if marks != 0 {
		t.Error("lower-priority hook must not run after a cancellation")
	}
}

func TestBeforeCancelFallbackMessage(t *testing.T) {
	w := buildWorld(t, `
items:
  idol:
    name: an idol
    location: "room:plaza"
    scripts:
      get:
        - script: deny
          phase: before
`)
	reg := script.NewRegistry()
	reg.Register("deny", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		return false, nil
	}, nil, "")

	hub := New(reg, Deps{World: w})
	idol, _ := w.Item("idol")
	res := hub.Before(context.Background(), "get", Invocation{Target: idol})
	if !res.CancelAction || res.Message != DefaultCancelMessage {
		t.Errorf("result = %+v", res)
	}
}

func TestBeforeScriptErrorDoesNotCancel(t *testing.T) {
	w := buildWorld(t, `
items:
  idol:
    name: an idol
    location: "room:plaza"
    scripts:
      get:
        - script: explode
          priority: 10
          phase: before
        - script: mark
          phase: before
`)
	marks := 0
	reg := script.NewRegistry()
	reg.Register("explode", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		return nil, errors.New("boom")
	}, nil, "")
	reg.Register("mark", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		marks++
		return nil, nil
	}, nil, "")

	hub := New(reg, Deps{World: w})
	idol, _ := w.Item("idol")
	res := hub.Before(context.Background(), "get", Invocation{Target: idol})
	if res.CancelAction {
		t.Error("a broken hook must not block the action")
	}
	if marks != 1 {
		t.Error("remaining hooks should still run after an error")
	}
}

func TestAfterIsolatesErrorsAndNeverCancels(t *testing.T) {
	w := buildWorld(t, `
items:
  idol:
    name: an idol
    location: "room:plaza"
    scripts:
      drop:
        - script: explode
          priority: 10
          phase: after
        - script: deny
          priority: 5
          phase: after
        - script: mark
          phase: after
`)
	marks := 0
	reg := script.NewRegistry()
	reg.Register("explode", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		return nil, errors.New("boom")
	}, nil, "")
	reg.Register("deny", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		return false, nil // meaningless in the after phase
	}, nil, "")
	reg.Register("mark", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		marks++
		return nil, nil
	}, nil, "")

	hub := New(reg, Deps{World: w})
	idol, _ := w.Item("idol")
	hub.After(context.Background(), "drop", Invocation{Target: idol})
	if marks != 1 {
		t.Error("after hooks must all run despite earlier failures")
	}
}

func TestPhaseFiltering(t *testing.T) {
	w := buildWorld(t, `
items:
  idol:
    name: an idol
    location: "room:plaza"
    scripts:
      get:
        - script: "mark(tag=any)"
        - script: "mark(tag=b)"
          phase: before
        - script: "mark(tag=a)"
          phase: after
`)
	var ran []string
	reg := script.NewRegistry()
	reg.Register("mark", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		ran = append(ran, script.StringArg(params, "tag"))
		return nil, nil
	}, script.Params{"tag": script.ParamString}, "")

	hub := New(reg, Deps{World: w})
	idol, _ := w.Item("idol")

	hub.Before(context.Background(), "get", Invocation{Target: idol})
	if want := []string{"any", "b"}; !reflect.DeepEqual(ran, want) {
		t.Errorf("before phase ran %v, want %v", ran, want)
	}
	ran = nil
	hub.After(context.Background(), "get", Invocation{Target: idol})
	if want := []string{"any", "a"}; !reflect.DeepEqual(ran, want) {
		t.Errorf("after phase ran %v, want %v", ran, want)
	}
}

func TestRuntimeArgsMergedDeclaredWins(t *testing.T) {
	w := buildWorld(t, `
items:
  idol:
    name: an idol
    location: "room:plaza"
    scripts:
      get: "inspect(source=content)"
`)
	var got map[string]any
	reg := script.NewRegistry()
	reg.Register("inspect", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		got = params
		return nil, nil
	}, nil, "")

	hub := New(reg, Deps{World: w})
	idol, _ := w.Item("idol")
	hub.Before(context.Background(), "get", Invocation{
		Target: idol,
		Args:   map[string]any{"source": "runtime", "direction": "north"},
	})
	if got["source"] != "content" {
		t.Errorf("declared argument should win, got %v", got["source"])
	}
	if got["direction"] != "north" {
		t.Errorf("runtime argument lost: %v", got["direction"])
	}
}

func TestGlobalHooksRunFirstAndCannotCancel(t *testing.T) {
	w := buildWorld(t, `
items:
  idol:
    name: an idol
    location: "room:plaza"
    scripts:
      get:
        - script: mark
          phase: before
`)
	var order []string
	reg := script.NewRegistry()
	reg.Register("mark", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		order = append(order, "hook")
		return nil, nil
	}, nil, "")

	hub := New(reg, Deps{World: w})
	hub.AddGlobal(func(ctx context.Context, eventName, phase string, inv Invocation) {
		order = append(order, "global:"+eventName+"/"+phase)
	})
	hub.AddGlobal(func(ctx context.Context, eventName, phase string, inv Invocation) {
		panic("misbehaving observer")
	})

	idol, _ := w.Item("idol")
	res := hub.Before(context.Background(), "get", Invocation{Target: idol})
	if res.CancelAction {
		t.Fatal("global hooks must not cancel")
	}
	if want := []string{"global:get/before", "hook"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestObserversSeeOutcomes(t *testing.T) {
	w := buildWorld(t, `
items:
  idol:
    name: an idol
    location: "room:plaza"
    scripts:
      get:
        - script: deny
          phase: before
`)
	reg := script.NewRegistry()
	reg.Register("deny", func(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
		return false, nil
	}, nil, "")

	hub := New(reg, Deps{World: w})
	var notices []Notice
	hub.Subscribe(func(n Notice) { notices = append(notices, n) })

	idol, _ := w.Item("idol")
	hub.Before(context.Background(), "get", Invocation{Target: idol})
	if len(notices) != 1 {
		t.Fatalf("notices = %d", len(notices))
	}
	n := notices[0]
	if n.Event != "get" || n.Phase != world.PhaseBefore || !n.Canceled || n.Script != "deny" {
		t.Errorf("notice = %+v", n)
	}
}

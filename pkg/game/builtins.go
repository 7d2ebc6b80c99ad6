package game

import (
	"context"
	"errors"
	"time"

	"github.com/emberfall-mud/emberfall/pkg/script"
)

// RegisterBuiltins installs the stock global scripts content can reference.
// The names form the vocabulary content authors write hooks and schedules
// against; everything here degrades gracefully when its environment is
// incomplete (no actor, no room) because scheduled invocations have less
// context than event hooks.
func RegisterBuiltins(reg *script.Registry) {
	reg.Register("notify", notifyScript,
		script.Params{"message": script.ParamString},
		"sends a private message to the acting character")

	reg.Register("room_echo", roomEchoScript,
		script.Params{"message": script.ParamString},
		"broadcasts a message to everyone in the room")

	reg.Register("give_coins", giveCoinsScript,
		script.Params{"amount": script.ParamInt},
		"adds coins to the acting character's purse")

	reg.Register("deny_if_cursed", denyIfCursedScript, nil,
		"cancels the action when the target carries the cursed mark")

	reg.Register("guard_cooldown", guardCooldownScript,
		script.Params{"name": script.ParamString, "seconds": script.ParamInt},
		"cancels the action unless the named cooldown can be acquired")
}

func notifyScript(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
	if env.Actor == nil || env.Msg == nil {
		return nil, nil
	}
	err := env.Msg.SendToCharacter(env.Actor, script.StringArg(params, "message"))
	if err != nil && !errors.Is(err, ErrNotConnected) {
		return nil, err
	}
	return nil, nil
}

func roomEchoScript(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
	if env.Room == nil || env.Msg == nil {
		return nil, nil
	}
	return nil, env.Msg.SendToRoom(env.Room, script.StringArg(params, "message"), nil)
}

func giveCoinsScript(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
	if env.Actor == nil {
		return nil, nil
	}
	return env.State.Increment(env.Actor, "coins", script.IntArg(params, "amount")), nil
}

func denyIfCursedScript(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
	if env.Target == nil {
		return true, nil
	}
	if cursed, ok := env.State.Get(env.Target, "cursed", false).(bool); ok && cursed {
		return false, nil
	}
	return true, nil
}

func guardCooldownScript(ctx context.Context, env *script.Env, params map[string]any) (any, error) {
	if env.Actor == nil || env.Transient == nil {
		return true, nil
	}
	d := time.Duration(script.IntArg(params, "seconds")) * time.Second
	acquired, err := env.Transient.AcquireCooldown(env.Actor.Ref(), script.StringArg(params, "name"), d)
	if err != nil {
		return nil, err
	}
	return acquired, nil
}

package lock

import "testing"

// fakeSubject implements Subject for testing.
type fakeSubject struct {
	role     string
	items    map[string]bool
	cats     map[string]bool
	count    int
	room     string
}

func (f *fakeSubject) Role() string { return f.role }
func (f *fakeSubject) HasItem(key string) bool {
	return f.items[key]
}
func (f *fakeSubject) HasItemCategory(cat string) bool {
	return f.cats[cat]
}
func (f *fakeSubject) ItemCount() int       { return f.count }
func (f *fakeSubject) InRoom(k string) bool { return f.room == k }

func admin() *fakeSubject {
	return &fakeSubject{role: "admin", items: map[string]bool{"brass_key": true}, cats: map[string]bool{"weapon": true}, count: 3, room: "vault"}
}

func player() *fakeSubject {
	return &fakeSubject{role: "player", items: map[string]bool{}, cats: map[string]bool{}, room: "plaza"}
}

func TestEvaluateEmptyLockAllows(t *testing.T) {
	e := NewEvaluator(nil)
	for _, l := range []*Lock{nil, {}, {Expr: "   "}} {
		ok, msg := e.Evaluate(player(), l, "default")
		if !ok || msg != "" {
			t.Errorf("empty lock %+v: got (%v, %q), want (true, \"\")", l, ok, msg)
		}
	}
}

func TestEvaluateUnknownPredicateFailsClosed(t *testing.T) {
	e := NewEvaluator(nil)
	ok, msg := e.Evaluate(admin(), &Lock{Expr: "summon_dragon(red)"}, "default")
	if ok {
		t.Fatal("unknown predicate should deny")
	}
	if msg == "" {
		t.Error("expected a denial message")
	}
}

func TestEvaluateMalformedFailsClosed(t *testing.T) {
	e := NewEvaluator(nil)
	for _, expr := range []string{"and", "role(admin) or", "(role(admin)", "not", "role(admin"} {
		ok, _ := e.Evaluate(admin(), &Lock{Expr: expr}, "default")
		if ok {
			t.Errorf("malformed %q should deny", expr)
		}
	}
}

func TestRoleHierarchy(t *testing.T) {
	e := NewEvaluator(nil)
	tests := []struct {
		role string
		want string
		pass bool
	}{
		{"admin", "player", true},
		{"admin", "admin", true},
		{"superadmin", "admin", true},
		{"player", "admin", false},
		{"builder", "superadmin", false},
	}
	for _, tt := range tests {
		s := &fakeSubject{role: tt.role}
		ok, _ := e.Evaluate(s, &Lock{Expr: "role(" + tt.want + ")"}, "default")
		if ok != tt.pass {
			t.Errorf("role %s vs role(%s): got %v, want %v", tt.role, tt.want, ok, tt.pass)
		}
	}
}

func TestBooleanComposition(t *testing.T) {
	e := NewEvaluator(nil)
	a := admin() // admin, has brass_key
	p := player()

	tests := []struct {
		subject *fakeSubject
		expr    string
		want    bool
	}{
		{a, "role(admin) and has_item(brass_key)", true},
		{a, "role(superadmin) and has_item(brass_key)", false},
		{a, "role(superadmin) or has_item(brass_key)", true},
		{p, "role(admin) or has_item(brass_key)", false},
		{p, "not role(admin)", true},
		{a, "not role(admin)", false},
		{a, "not (role(superadmin) or item_count(10))", true},
		{a, "in_room(vault) and has_item_category(weapon)", true},
		{a, "item_count(3)", true},
		{a, "item_count(4)", false},
	}
	for _, tt := range tests {
		ok, _ := e.Evaluate(tt.subject, &Lock{Expr: tt.expr}, "default")
		if ok != tt.want {
			t.Errorf("%q for role %s: got %v, want %v", tt.expr, tt.subject.role, ok, tt.want)
		}
	}
}

func TestAccessTypeResolution(t *testing.T) {
	e := NewEvaluator(nil)
	l := &Lock{
		ByAccess: map[string]string{
			"get":     "role(admin)",
			"default": "role(player)",
		},
		Messages: map[string]string{"get": "It is bolted down."},
	}

	if ok, msg := e.Evaluate(player(), l, "get"); ok || msg != "It is bolted down." {
		t.Errorf("get as player: got (%v, %q)", ok, msg)
	}
	if ok, _ := e.Evaluate(player(), l, "open"); !ok {
		t.Error("open should fall back to default and allow a player")
	}
	if ok, _ := e.Evaluate(admin(), l, "get"); !ok {
		t.Error("get as admin should pass")
	}
}

func TestCustomDenialMessageVerbatim(t *testing.T) {
	e := NewEvaluator(nil)
	l := &Lock{
		ByAccess: map[string]string{"open": "role(superadmin)"},
		Messages: map[string]string{"open": "The seal resists you."},
	}
	ok, msg := e.Evaluate(admin(), l, "open")
	if ok {
		t.Fatal("admin should not pass a superadmin lock")
	}
	if msg != "The seal resists you." {
		t.Errorf("got message %q", msg)
	}
}

func TestEndToEndKeyOfPassage(t *testing.T) {
	e := NewEvaluator(nil)
	l := &Lock{Expr: "role(admin) or has_item(key_of_passage)"}

	c := player()
	if ok, _ := e.Evaluate(c, l, "default"); ok {
		t.Fatal("player with no inventory should be denied")
	}
	c.items["key_of_passage"] = true
	if ok, _ := e.Evaluate(c, l, "default"); !ok {
		t.Fatal("player holding key_of_passage should pass")
	}
}

func TestValidate(t *testing.T) {
	good := &Lock{ByAccess: map[string]string{"get": "role(admin)", "default": ""}}
	if err := good.Validate(); err != nil {
		t.Errorf("valid lock rejected: %v", err)
	}
	bad := &Lock{Expr: "role(admin) or"}
	if err := bad.Validate(); err == nil {
		t.Error("trailing operator should fail validation")
	}
}

func TestEvaluateDoesNotMutateSubject(t *testing.T) {
	e := NewEvaluator(nil)
	s := admin()
	before := *s
	e.Evaluate(s, &Lock{Expr: "role(player) and has_item(brass_key) and in_room(vault)"}, "default")
	if s.role != before.role || s.count != before.count || s.room != before.room {
		t.Error("evaluation mutated the subject")
	}
}

package drive

import "testing"

func TestDeltas(t *testing.T) {
	expectDeltas(t, Forward, 0.05, 0.05)
	expectDeltas(t, Backward, -0.05, -0.05)
	expectDeltas(t, Right, 0.05, -0.05)
	expectDeltas(t, Left, -0.05, 0.05)
	expectDeltas(t, Quit, 0, 0)
	expectDeltas(t, None, 0, 0)
}

func expectDeltas(t *testing.T, c Command, el, er float64) {
	t.Helper()
	l, r := c.Deltas(DefaultStep)
	if l != el || r != er {
		t.Errorf("%v.Deltas() = %v, %v; expected %v, %v", c, l, r, el, er)
	}
}

func TestParse(t *testing.T) {
	cases := map[string]Command{
		"forward":   Forward,
		"BACKWARD":  Backward,
		" left\n":   Left,
		"right":     Right,
		"quit":      Quit,
		"w":         Forward,
		"S":         Backward,
		"a":         Left,
		"D":         Right,
	}
	for in, expected := range cases {
		c, err := Parse(in)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", in, err)
			continue
		}
		if c != expected {
			t.Errorf("Parse(%q) = %v, expected %v", in, c, expected)
		}
	}
	for _, in := range []string{"", "none", "x", "up", "ww"} {
		if c, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) = %v, expected an error", in, c)
		}
	}
}

func TestBindingsIgnoreCase(t *testing.T) {
	b := DefaultBindings()
	for _, k := range []rune{'w', 'W'} {
		if c, ok := b.Lookup(k); !ok || c != Forward {
			t.Errorf("Lookup(%q) = %v, %v", k, c, ok)
		}
	}
	if _, ok := b.Lookup('x'); ok {
		t.Error("unbound key should not match")
	}
}

func TestNewBindings(t *testing.T) {
	b, err := NewBindings(map[Command]string{Forward: "I", Backward: "k", Left: "j", Right: "l"})
	if err != nil {
		t.Fatal(err)
	}
	if c, _ := b.Lookup('i'); c != Forward {
		t.Errorf("expected i to map to forward, got %v", c)
	}
	if _, err := NewBindings(map[Command]string{Forward: "w", Backward: "W"}); err == nil {
		t.Error("duplicate keys should be rejected")
	}
	if _, err := NewBindings(map[Command]string{Forward: "up"}); err == nil {
		t.Error("multi-character keys should be rejected")
	}
}

package domain

import (
	"reflect"
	"testing"
)

type pingParams struct {
	Seq int `json:"seq"`
}

type pingResult struct {
	Echo int `json:"echo"`
}

type tickEvent struct {
	N int `json:"n"`
}

func TestCommandRegistration(t *testing.T) {
	d := New("Test")
	cmd := NewCommand[pingParams, pingResult](d, "ping")

	if cmd.Method() != "Test.ping" {
		t.Fatalf("expect Test.ping, got %s", cmd.Method())
	}

	info, ok := d.Commands["ping"]
	if !ok {
		t.Fatal("command not registered on domain")
	}

	raw, err := info.Encode(pingParams{Seq: 4})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"seq":4}` {
		t.Fatalf("unexpected params encoding: %s", raw)
	}

	v, err := info.Decode([]byte(`{"echo":4}`))
	if err != nil {
		t.Fatal(err)
	}
	if v.(pingResult).Echo != 4 {
		t.Fatalf("unexpected decoded result: %+v", v)
	}
}

func TestEventRegistration(t *testing.T) {
	d := New("Test")
	ev := NewEvent[tickEvent](d, "tick")

	if ev.Domain() != "Test" || ev.Name() != "tick" || ev.Method() != "Test.tick" {
		t.Fatalf("unexpected event handle: %s %s %s", ev.Domain(), ev.Name(), ev.Method())
	}

	v, err := d.Events["tick"].Decode([]byte(`{"n":9}`))
	if err != nil {
		t.Fatal(err)
	}
	if v.(tickEvent).N != 9 {
		t.Fatalf("unexpected decoded event: %+v", v)
	}

	// An absent payload decodes to the zero value.
	v, err = d.Events["tick"].Decode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.(tickEvent).N != 0 {
		t.Fatalf("expect zero event, got %+v", v)
	}
}

func TestDecodeMismatch(t *testing.T) {
	d := New("Test")
	NewCommand[pingParams, pingResult](d, "ping")

	if _, err := d.Commands["ping"].Decode([]byte(`{"echo":"four"}`)); err == nil {
		t.Fatal("expect decode error for mismatched result shape")
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	d := New("Test")
	NewEvent[tickEvent](d, "tick")

	defer func() {
		if recover() == nil {
			t.Fatal("expect panic on duplicate event")
		}
	}()
	NewEvent[tickEvent](d, "tick")
}

func TestCatalogLookup(t *testing.T) {
	a := New("Alpha")
	NewCommand[pingParams, pingResult](a, "ping")
	NewEvent[tickEvent](a, "tick")
	b := New("Beta")

	c := NewCatalog(b, a)

	if !reflect.DeepEqual(c.Domains(), []string{"Alpha", "Beta"}) {
		t.Fatalf("unexpected domains: %v", c.Domains())
	}
	if _, ok := c.Command("Alpha", "ping"); !ok {
		t.Fatal("expect Alpha.ping")
	}
	if _, ok := c.Event("Alpha", "tick"); !ok {
		t.Fatal("expect Alpha.tick")
	}
	// Names are case-sensitive.
	if _, ok := c.Event("alpha", "tick"); ok {
		t.Fatal("lookup must be case-sensitive")
	}
	if _, ok := c.Event("Beta", "tick"); ok {
		t.Fatal("Beta has no events")
	}

	var nilCatalog *Catalog
	if _, ok := nilCatalog.Event("Alpha", "tick"); ok {
		t.Fatal("nil catalog knows nothing")
	}
}

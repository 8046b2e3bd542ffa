package message

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestProbeClassification(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		ok     bool
		kind   Kind
		id     int64
		method string
	}{
		{"response", `{"id":1,"result":{"targetId":"T1"}}`, true, KindResponse, 1, ""},
		{"protocol error", `{"id":42,"error":{"code":-32601,"message":"not found"}}`, true, KindResponse, 42, ""},
		{"event", `{"method":"Target.targetCreated","params":{}}`, true, KindEvent, 0, "Target.targetCreated"},
		{"event without params", `{"method":"Page.loadEventFired"}`, true, KindEvent, 0, "Page.loadEventFired"},
		{"method without dot", `{"method":"ping"}`, true, KindUnknown, 0, "ping"},
		{"method with empty domain", `{"method":".x"}`, true, KindUnknown, 0, ".x"},
		{"empty object", `{}`, true, KindUnknown, 0, ""},
		{"string id", `{"id":"1","result":{}}`, true, KindUnknown, 0, ""},
		{"array", `[1,2,3]`, true, KindUnknown, 0, ""},
		{"malformed", `{"id":1,`, false, KindUnknown, 0, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, ok := Probe([]byte(tc.raw))
			if ok != tc.ok {
				t.Fatalf("expect ok=%v, got %v", tc.ok, ok)
			}
			if h.Kind() != tc.kind {
				t.Fatalf("expect kind %s, got %s", tc.kind, h.Kind())
			}
			if h.ID != tc.id {
				t.Fatalf("expect id %d, got %d", tc.id, h.ID)
			}
			if h.Method != tc.method {
				t.Fatalf("expect method %q, got %q", tc.method, h.Method)
			}
		})
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		method, domain, name string
		ok                   bool
	}{
		{"Target.createTarget", "Target", "createTarget", true},
		{"Foo.Bar.Baz", "Foo", "Bar.Baz", true},
		{"Foo.", "", "", false},
		{"Foo", "", "", false},
		{"", "", "", false},
	}

	for _, tc := range cases {
		domain, name, ok := SplitMethod(tc.method)
		if ok != tc.ok || domain != tc.domain || name != tc.name {
			t.Errorf("SplitMethod(%q) = (%q, %q, %v), expect (%q, %q, %v)",
				tc.method, domain, name, ok, tc.domain, tc.name, tc.ok)
		}
	}
}

func TestRequestOmitsAbsentParams(t *testing.T) {
	data, err := json.Marshal(&Request{ID: 3, Method: "Page.enable"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"id":3,"method":"Page.enable"}` {
		t.Fatalf("unexpected encoding: %s", data)
	}
}

func TestErrorInfoMessage(t *testing.T) {
	e := &ErrorInfo{Code: -32000, Message: "Cannot find context"}
	if !strings.Contains(e.Error(), "-32000") || !strings.Contains(e.Error(), "Cannot find context") {
		t.Fatalf("unexpected error text: %s", e.Error())
	}

	e.Data = json.RawMessage(`"detail"`)
	if !strings.Contains(e.Error(), "detail") {
		t.Fatalf("expect data in error text: %s", e.Error())
	}
}

func TestEventParams(t *testing.T) {
	cases := []struct {
		data   string
		expect string
	}{
		{`{"method":"Target.targetCreated","params":{"targetInfo":{"targetId":"T1"}}}`, `{"targetInfo":{"targetId":"T1"}}`},
		{`{"method":"Page.loadEventFired"}`, ""},
		{`{"method":"Page.loadEventFired","params":null}`, ""},
	}

	for _, tc := range cases {
		got := EventParams([]byte(tc.data))
		if string(got) != tc.expect {
			t.Errorf("EventParams(%s) = %s, expect %s", tc.data, got, tc.expect)
		}
	}
}

package protocol

import "testing"

func TestTypeOf(t *testing.T) {
	typ, ok := TypeOf([]byte(`{"type":"response.audio.delta","delta":"abc"}`))
	if !ok || typ != "response.audio.delta" {
		t.Fatalf("TypeOf = %q, %v", typ, ok)
	}

	if _, ok := TypeOf([]byte("not json")); ok {
		t.Fatalf("TypeOf accepted non-JSON input")
	}
	if _, ok := TypeOf([]byte(`{"delta":"abc"}`)); ok {
		t.Fatalf("TypeOf accepted frame without type")
	}
}

func TestDecodeTextMessageSpellings(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"underscore content", `{"type":"text_message","content":"Hello"}`, "Hello", true},
		{"dotted text", `{"type":"text.message","text":"Hi there"}`, "Hi there", true},
		{"content preferred", `{"type":"text_message","content":"a","text":"b"}`, "a", true},
		{"whitespace only", `{"type":"text_message","content":"   "}`, "", false},
		{"unrecognized type", `{"type":"ping"}`, "", false},
		{"bad json", `{"type":`, "", false},
	}

	for _, tc := range cases {
		got, ok := DecodeTextMessage([]byte(tc.raw))
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: DecodeTextMessage = (%q, %v), want (%q, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDecodeFunctionCallDone(t *testing.T) {
	raw := []byte(`{"type":"response.function_call_arguments.done","call_id":"c1","name":"get_weather","arguments":"{\"city\":\"Seattle\"}"}`)
	call, ok := DecodeFunctionCallDone(raw)
	if !ok {
		t.Fatalf("DecodeFunctionCallDone ok = false")
	}
	if call.CallID != "c1" || call.Name != "get_weather" {
		t.Fatalf("unexpected call: %+v", call)
	}

	if _, ok := DecodeFunctionCallDone([]byte(`{"type":"response.done"}`)); ok {
		t.Fatalf("accepted unrelated frame")
	}
	if _, ok := DecodeFunctionCallDone([]byte(`{"type":"response.function_call_arguments.done","name":"x"}`)); ok {
		t.Fatalf("accepted frame without call_id")
	}

	call, ok = DecodeFunctionCallDone([]byte(`{"type":"response.function_call_arguments.done","call_id":"c2","name":"f"}`))
	if !ok || call.Arguments != "{}" {
		t.Fatalf("empty arguments not defaulted: %+v ok=%v", call, ok)
	}
}

func TestFunctionCallOutputShape(t *testing.T) {
	msg := NewFunctionCallOutput("c1", `{"city":"Seattle"}`)
	if msg.Type != TypeItemCreate {
		t.Fatalf("type = %q, want %q", msg.Type, TypeItemCreate)
	}
	if msg.Item.Type != "function_call_output" || msg.Item.CallID != "c1" {
		t.Fatalf("unexpected item: %+v", msg.Item)
	}
}

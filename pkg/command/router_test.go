package command

import (
	"encoding/base64"
	"testing"

	"github.com/binfin8/haakeem-agent/pkg/variant"
)

func TestRouteRPC(t *testing.T) {
	var r Router

	tests := []struct {
		method string
		want   string
	}{
		{"start_turn", "start_turn"},
		{"end_turn", "end_turn"},
		{"cancel_turn", "cancel_turn"},
	}
	for _, tc := range tests {
		cmd, ok := r.RouteRPC(tc.method, "user-1")
		if !ok {
			t.Fatalf("RouteRPC(%q) not routed", tc.method)
		}
		if cmd.Name() != tc.want {
			t.Errorf("RouteRPC(%q).Name() = %q; want %q", tc.method, cmd.Name(), tc.want)
		}
	}

	if _, ok := r.RouteRPC("self_destruct", "user-1"); ok {
		t.Error("unknown rpc method should be ignored")
	}
}

func TestRouteData_ControlTokens(t *testing.T) {
	var r Router

	tests := []struct {
		payload string
		want    string
	}{
		{"start_turn", "start_turn"},
		{"end_turn", "end_turn"},
		{"cancel_turn", "cancel_turn"},
		{"interrupt_agent", "interrupt_agent"},
	}
	for _, tc := range tests {
		cmd, ok := r.RouteData([]byte(tc.payload), "user-1")
		if !ok {
			t.Fatalf("RouteData(%q) not routed", tc.payload)
		}
		if cmd.Name() != tc.want {
			t.Errorf("RouteData(%q).Name() = %q; want %q", tc.payload, cmd.Name(), tc.want)
		}
	}
}

func TestRouteData_SwitchTo(t *testing.T) {
	var r Router

	cmd, ok := r.RouteData([]byte("switch_to_attorney"), "user-1")
	if !ok {
		t.Fatal("switch_to_attorney not routed")
	}
	sw, ok := cmd.(*SwitchTo)
	if !ok {
		t.Fatalf("got %T; want *SwitchTo", cmd)
	}
	if sw.Variant != variant.Attorney {
		t.Errorf("Variant = %q; want %q", sw.Variant, variant.Attorney)
	}

	// Unknown variant ids still route; the registry resolves the fallback.
	cmd, ok = r.RouteData([]byte("switch_to_french"), "user-1")
	if !ok {
		t.Fatal("switch_to_french not routed")
	}
	if cmd.(*SwitchTo).Variant != "french" {
		t.Errorf("Variant = %q; want raw id", cmd.(*SwitchTo).Variant)
	}
}

func TestRouteData_Chat(t *testing.T) {
	var r Router

	cmd, ok := r.RouteData([]byte("chat:what does hakeem say about leases?"), "user-1")
	if !ok {
		t.Fatal("chat line not routed")
	}
	c, ok := cmd.(*Chat)
	if !ok {
		t.Fatalf("got %T; want *Chat", cmd)
	}
	if c.Text != "what does hakeem say about leases?" {
		t.Errorf("Text = %q", c.Text)
	}
}

func TestRouteData_FileUploadFallback(t *testing.T) {
	var r Router

	data := base64.StdEncoding.EncodeToString([]byte("hello"))
	payload := `{"type":"file_upload","data":"` + data + `","fileName":"a.txt","mimeType":"text/plain"}`
	cmd, ok := r.RouteData([]byte(payload), "user-1")
	if !ok {
		t.Fatal("file upload fallback not routed")
	}
	up, ok := cmd.(*FileUpload)
	if !ok {
		t.Fatalf("got %T; want *FileUpload", cmd)
	}
	if up.FileName != "a.txt" || up.MIMEType != "text/plain" || string(up.Data) != "hello" {
		t.Errorf("unexpected upload: %+v", up)
	}
}

func TestRouteData_Ignored(t *testing.T) {
	var r Router

	ignored := [][]byte{
		[]byte("fly me to the moon"),
		[]byte(`{"type":"something_else"}`),
		[]byte(`{"type":"file_upload","data":"%%%not-base64%%%"}`),
		[]byte(`{not json`),
		{0xff, 0xfe, 0xfd}, // not UTF-8
		nil,
	}
	for _, payload := range ignored {
		if cmd, ok := r.RouteData(payload, "user-1"); ok {
			t.Errorf("RouteData(%q) = %v; want ignored", payload, cmd)
		}
	}
}

func TestNormalizeBrand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ask hakeem about it", "ask HAAKEEM about it"},
		{"Hakim is helpful", "HAAKEEM is helpful"},
		{"HAAKEEM", "HAAKEEM"},
		{"h a a k e e m listens", "HAAKEEM listens"},
		{"no brand here", "no brand here"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := NormalizeBrand(tc.in); got != tc.want {
			t.Errorf("NormalizeBrand(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeBrand_Idempotent(t *testing.T) {
	inputs := []string{
		"hakeem",
		"talk to haakeem and hakim today",
		"HAAKEEM already canonical",
		"mixed Hakem and akim forms",
	}
	for _, in := range inputs {
		once := NormalizeBrand(in)
		twice := NormalizeBrand(once)
		if once != twice {
			t.Errorf("NormalizeBrand not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

package logredact

import (
	"strings"
	"testing"
)

func TestRedactText_JSONLike(t *testing.T) {
	in := `{"access_token":"ya29.a0AfH6SMDUMMY","refresh_token":"1//0gDUMMY","other":"ok"}`
	out := RedactText(in)
	if out == in {
		t.Fatalf("expected redaction, got unchanged")
	}
	if want := `"access_token":"***"`; !strings.Contains(out, want) {
		t.Fatalf("expected %q in %q", want, out)
	}
	if want := `"refresh_token":"***"`; !strings.Contains(out, want) {
		t.Fatalf("expected %q in %q", want, out)
	}
	if !strings.Contains(out, `"other":"ok"`) {
		t.Fatalf("expected unrelated fields untouched, got %q", out)
	}
}

func TestRedactText_QueryLike(t *testing.T) {
	in := "access_token=ya29.a0AfH6SMDUMMY refresh_token=1//0gDUMMY"
	out := RedactText(in)
	if strings.Contains(out, "ya29") || strings.Contains(out, "1//0") {
		t.Fatalf("expected tokens redacted, got %q", out)
	}
}

func TestRedactText_ClientSecret(t *testing.T) {
	in := "client_secret=GOCSPX-your-client-secret"
	out := RedactText(in)
	if strings.Contains(out, "your-client-secret") {
		t.Fatalf("expected secret redacted, got %q", out)
	}
	if !strings.Contains(out, "client_secret=***") {
		t.Fatalf("expected key redacted, got %q", out)
	}
}

func TestRedactText_ProviderErrorBody(t *testing.T) {
	// Some providers echo the submitted authorization code in error bodies.
	in := `{"error":"invalid_grant","error_description":"code expired","code":"4/0AdQt8qDUMMY"}`
	out := RedactText(in)
	if strings.Contains(out, "4/0AdQt8q") {
		t.Fatalf("expected code redacted, got %q", out)
	}
	if !strings.Contains(out, `"error":"invalid_grant"`) {
		t.Fatalf("expected error fields untouched, got %q", out)
	}
}

func TestRedactText_PlainTextPassthrough(t *testing.T) {
	in := "provider google token endpoint returned status 502"
	if out := RedactText(in); out != in {
		t.Fatalf("expected passthrough, got %q", out)
	}
}

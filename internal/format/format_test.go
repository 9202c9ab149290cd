package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name   string `json:"name" yaml:"name"`
	Secret string `json:"-" yaml:"-"`
	Sizes  []int  `json:"sizes" yaml:"sizes"`
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, sample{Name: "a", Secret: "s", Sizes: []int{1}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.String(); got != "{\"name\":\"a\",\"sizes\":[1]}\n" {
		t.Fatalf("unexpected json: %q", got)
	}
}

func TestYAMLFormatterHonorsTags(t *testing.T) {
	var buf bytes.Buffer
	if err := (YAMLFormatter{}).Write(&buf, sample{Name: "a", Secret: "s", Sizes: []int{1, 2}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "name: a\n") || !strings.Contains(out, "  - 2\n") {
		t.Fatalf("unexpected yaml: %q", out)
	}
	if strings.Contains(strings.ToLower(out), "secret") {
		t.Fatalf("secret leaked: %q", out)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "json", "YAML", "yml"} {
		if _, err := ByName(name); err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

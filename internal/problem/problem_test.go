package problem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cvp-knife/internal/cvp"
)

const traceYAML = `
name: trace
format: mapping
constraints:
  - expr: a + b - 50
  - expr: a
    bounds: [0, 100]
  - expr: a - b - 10
  - expr: b
    bounds: ["0", "0x64"]
  - expr: 2*a - 60
`

func TestDecodeYAML(t *testing.T) {
	sys, err := Decode([]byte(traceYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if sys.Name != "trace" || sys.Format != "mapping" {
		t.Errorf("header = %q %q", sys.Name, sys.Format)
	}
	if len(sys.Constraints) != 5 {
		t.Fatalf("constraints = %d, want 5", len(sys.Constraints))
	}
	if diff := cmp.Diff([]Integer{"0", "100"}, sys.Constraints[1].Bounds); diff != "" {
		t.Errorf("bounds (-want +got):\n%s", diff)
	}
	if err := sys.Validate(0); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	data := `{"name":"j","constraints":[{"expr":"x","bounds":[0,"10"],"trace":true},{"expr":"x - 4"}]}`
	sys, err := Decode([]byte(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff([]Integer{"0", "10"}, sys.Constraints[0].Bounds); diff != "" {
		t.Errorf("bounds (-want +got):\n%s", diff)
	}
	if sys.Constraints[0].Trace == nil || !*sys.Constraints[0].Trace {
		t.Error("trace flag lost")
	}
}

func TestRun(t *testing.T) {
	sys, err := Decode([]byte(traceYAML))
	if err != nil {
		t.Fatal(err)
	}
	res, err := sys.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]string{"a": "30", "b": "20"}
	if diff := cmp.Diff(want, res.Mapping); diff != "" {
		t.Errorf("mapping (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, res.Labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}

	sys.Format = "list"
	res, err = sys.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"30", "20"}, res.Values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
}

func TestModulusConstraint(t *testing.T) {
	// 3*x == 5 (mod 7) with x in [0, 7) has the single solution x = 4
	sys := &System{
		Name: "mod",
		Constraints: []Constraint{
			{Expr: "3*x - 5", Mod: "7"},
			{Expr: "x", Bounds: []Integer{"0", "6"}},
		},
	}
	res, err := sys.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"4"}, res.Values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		sys  System
		max  int
		want error
	}{
		{"empty", System{}, 0, ErrEmpty},
		{"too large", System{Constraints: []Constraint{{Expr: "x"}, {Expr: "y"}}}, 1, ErrTooLarge},
		{"bad bounds", System{Constraints: []Constraint{{Expr: "x", Bounds: []Integer{"1"}}}}, 0, ErrInvalidBounds},
		{"bad integer", System{Constraints: []Constraint{{Expr: "x", Mod: "seven"}}}, 0, ErrInvalidInteger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sys.Validate(tt.max)
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}

	bad := System{Format: "xml", Constraints: []Constraint{{Expr: "x"}}}
	if err := bad.Validate(0); err == nil {
		t.Error("unknown format accepted")
	}
	blank := System{Constraints: []Constraint{{Expr: "  "}}}
	if err := blank.Validate(0); err == nil {
		t.Error("blank expression accepted")
	}
}

func TestBuildErrors(t *testing.T) {
	sys := &System{Constraints: []Constraint{{Expr: "x +"}}}
	if _, err := sys.Build(); err == nil {
		t.Error("syntax error not reported")
	}

	sys = &System{Constraints: []Constraint{{Expr: "x", Bounds: []Integer{"5", "1"}}}}
	if _, err := sys.Build(); !errors.Is(err, cvp.ErrInvalidBounds) {
		t.Errorf("Build() = %v, want ErrInvalidBounds", err)
	}

	sys = &System{Constraints: []Constraint{{Expr: "x <= 3"}}}
	if _, err := sys.Build(); !errors.Is(err, cvp.ErrUnsupportedRelation) {
		t.Errorf("Build() = %v, want ErrUnsupportedRelation", err)
	}
}

func TestFingerprint(t *testing.T) {
	a, _ := Decode([]byte(traceYAML))
	b, _ := Decode([]byte(traceYAML))
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equal systems have different fingerprints")
	}
	if !strings.HasPrefix(a.Fingerprint(), "0x") || len(a.Fingerprint()) != 66 {
		t.Errorf("fingerprint = %q", a.Fingerprint())
	}
	b.Constraints[0].Expr = "a + b - 51"
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different systems share a fingerprint")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sys.yaml")
	if err := os.WriteFile(path, []byte("constraints:\n  - expr: x - 2\n    trace: true\n  - expr: x\n    bounds: [0, 10]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sys, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sys.Name != path {
		t.Errorf("Name = %q, want file path", sys.Name)
	}
	res, err := sys.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// The traced exact constraint reports x - 2 itself, the bounded one reports x
	if diff := cmp.Diff([]string{"0", "2"}, res.Values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestInspect(t *testing.T) {
	sys, _ := Decode([]byte(traceYAML))
	var sb strings.Builder
	if err := sys.Inspect(&sb, nil); err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	out := sb.String()
	for _, want := range []string{"5 expressions with 2 traced across", "Lattice:", "] <- a", "Goal vector:"} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}

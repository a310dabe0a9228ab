package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImportPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred func(string) bool
		in   string
		want bool
	}{
		{"internal", InternalImportForbidden, "estatecore/internal/core", true},
		{"internal", InternalImportForbidden, "estatecore/pkg/domain", false},
		{"internal", InternalImportForbidden, "notinternal", false},
		{"infra", InfraImportForbidden, "estatecore/internal/infra/lock/redis", true},
		{"infra", InfraImportForbidden, "estatecore/internal/infra", true},
		{"infra", InfraImportForbidden, "estatecore/internal/infrastructure", false},
		{"infra", InfraImportForbidden, "estatecore/internal/core", false},
		{"core", CoreImportForbidden, "estatecore/internal/core", true},
		{"core", CoreImportForbidden, "estatecore/internal/core/sub", true},
		{"core", CoreImportForbidden, "estatecore/internal/corex", false},
		{"any", AnyOf(CoreImportForbidden, InfraImportForbidden), "estatecore/internal/infra/blob/s3", true},
		{"any", AnyOf(CoreImportForbidden, InfraImportForbidden), "estatecore/pkg/domain", false},
		{"any", AnyOf(), "estatecore/internal/core", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Errorf("%s(%q) = %v, want %v", c.name, c.in, got, c.want)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\talias \"estatecore/internal/infra/blob/fs\"\n)\nvar _ = fmt.Sprint\nvar _ = alias.New\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"estatecore/internal/infra/lock/redis\"\n")
	writeFile(t, dir, "README.md", "not go")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"estatecore/internal/infra/metrics/prometheus\"\n")

	viols, err := directImportViolations(dir, InfraImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "blob/fs (in a.go)") {
		t.Fatalf("expected only the non-test file violation, got %v", viols)
	}

	AssertNoDirectImports(t, dir, CoreImportForbidden, "core allowed to be absent")
}

func TestDirectImportViolationsMissingDir(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InfraImportForbidden); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nestatecore/internal/core\n\nestatecore/pkg/domain\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", CoreImportForbidden)
	if err != nil || len(viols) != 1 || viols[0] != "estatecore/internal/core" {
		t.Fatalf("unexpected violations %v err %v", viols, err)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), fmt.Errorf("exit status 1") }
	if _, out, err := transitiveDependencyViolations(".", CoreImportForbidden); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list failure to surface output, got %q %v", out, err)
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	rec := &recordingFatal{}
	failIfViolations(rec, "direct imports", "none", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure %q", rec.msg)
	}
	failIfViolations(rec, "direct imports", "plugins stay off adapters", []string{"x", "y"})
	if !strings.Contains(rec.msg, "plugins stay off adapters") || !strings.Contains(rec.msg, "x\ny") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}

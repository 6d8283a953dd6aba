package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintFileAcceptsMarkedQueries(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "ok.go", "package q\n\nconst QOne = `--sql 11111111-2222-4333-8444-555555555555\nselect 1`\n\nconst Label = \"not a query\"\n")
	vs, err := lintFile(path, map[string]marker{})
	if err != nil {
		t.Fatalf("lintFile: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("unexpected violations %+v", vs)
	}
}

func TestLintFileFlagsMissingMarker(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "bad.go", "package q\n\nconst QBad = `create table t (id int)`\n")
	vs, err := lintFile(path, map[string]marker{})
	if err != nil {
		t.Fatalf("lintFile: %v", err)
	}
	if len(vs) != 1 || vs[0].name != "QBad" || vs[0].line != 3 {
		t.Fatalf("unexpected violations %+v", vs)
	}
}

func TestLintFileFlagsDuplicateMarkersAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	query := "`--sql 11111111-2222-4333-8444-555555555555\nselect 1`"
	first := writeSource(t, dir, "a.go", "package q\n\nconst QA = "+query+"\n")
	second := writeSource(t, dir, "b.go", "package q\n\nconst QB = "+query+"\n")

	seen := map[string]marker{}
	if vs, err := lintFile(first, seen); err != nil || len(vs) != 0 {
		t.Fatalf("first file: %v %+v", err, vs)
	}
	vs, err := lintFile(second, seen)
	if err != nil {
		t.Fatalf("lintFile: %v", err)
	}
	if len(vs) != 1 || !strings.Contains(vs[0].message, "QA") {
		t.Fatalf("expected duplicate marker violation, got %+v", vs)
	}
}

func TestLintFileRepositoryQueries(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("..", "..", "sqlinline", "*.go"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("glob sqlinline: %v (%d files)", err, len(matches))
	}
	seen := map[string]marker{}
	for _, path := range matches {
		vs, err := lintFile(path, seen)
		if err != nil {
			t.Fatalf("lintFile %s: %v", path, err)
		}
		if len(vs) != 0 {
			t.Fatalf("violations in %s: %+v", path, vs)
		}
	}
}

package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func TestDirRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	p := NewDirProvider(fs, "/cloud")

	store, err := p.Open("tg42", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	files, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected empty namespace, got %v", files)
	}

	id, err := store.Write(ctx, "sync.json", []byte(`{"v":1}`), "")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if id != "sync.json" {
		t.Errorf("expected id sync.json, got %q", id)
	}
	if _, err := store.Write(ctx, "sync.json", []byte(`{"v":2}`), id); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	files, err = store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"sync.json"}, names); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	got, err := store.Read(ctx, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(`{"v":2}`, string(got)); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestDirNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	p := NewDirProvider(fs, "/cloud")

	a, _ := p.Open("alice", "")
	b, _ := p.Open("../alice/../bob", "")

	if _, err := a.Write(ctx, "f.json", []byte("a"), ""); err != nil {
		t.Fatalf("write: %v", err)
	}
	files, err := b.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected bob's namespace to be empty, got %v", files)
	}
	if ok, _ := afero.Exists(fs, "/cloud/bob"); ok {
		t.Error("listing must not create the namespace")
	}
}

func TestDirReadMissing(t *testing.T) {
	d := NewDir(afero.NewMemMapFs(), "/ns")
	if _, err := d.Read(context.Background(), "nope.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := d.Read(context.Background(), "../../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for escaped path, got %v", err)
	}
}

func TestFindByName(t *testing.T) {
	files := []File{{ID: "1", Name: "other.json"}, {ID: "2", Name: "sync.json"}}
	f, ok := FindByName(files, "sync.json")
	if !ok || f.ID != "2" {
		t.Errorf("expected file 2, got %+v (ok=%v)", f, ok)
	}
	if _, ok := FindByName(files, "missing"); ok {
		t.Error("expected no match")
	}
}

package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// Meta is the metadata document stored next to an index blob. Array positions
// correspond 1:1 with vector positions in the blob.
type Meta struct {
	IDs   []string `json:"ids"`
	Texts []string `json:"texts"`
}

// ArtifactStore reads and writes named index artifacts.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// MetaKey returns the metadata key stored alongside the blob named name.
func MetaKey(name string) string { return name + ".meta.json" }

// Save writes f as the blob name and its metadata as MetaKey(name).
func Save(ctx context.Context, store ArtifactStore, name string, f *Flat) error {
	var buf bytes.Buffer
	if err := f.WriteBlob(&buf); err != nil {
		return fmt.Errorf("vectorindex: encode blob: %w", err)
	}
	meta, err := json.Marshal(Meta{IDs: f.IDs(), Texts: f.Texts()})
	if err != nil {
		return fmt.Errorf("vectorindex: encode meta: %w", err)
	}
	if err := store.Put(ctx, name, &buf); err != nil {
		return fmt.Errorf("vectorindex: write %s: %w", name, err)
	}
	if err := store.Put(ctx, MetaKey(name), bytes.NewReader(meta)); err != nil {
		return fmt.Errorf("vectorindex: write %s: %w", MetaKey(name), err)
	}
	return nil
}

// Load reads the blob and metadata stored under name and validates that both
// describe the same number of entries.
func Load(ctx context.Context, store ArtifactStore, name string) (*Flat, error) {
	var (
		b    *blob
		meta Meta
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rc, err := store.Get(gctx, name)
		if err != nil {
			return fmt.Errorf("vectorindex: read %s: %w", name, err)
		}
		defer rc.Close()
		b, err = readBlob(rc)
		return err
	})
	g.Go(func() error {
		rc, err := store.Get(gctx, MetaKey(name))
		if err != nil {
			return fmt.Errorf("vectorindex: read %s: %w", MetaKey(name), err)
		}
		defer rc.Close()
		if err := json.NewDecoder(rc).Decode(&meta); err != nil {
			return fmt.Errorf("%w: meta: %v", ErrCorruptIndex, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assemble(b, meta)
}

func assemble(b *blob, meta Meta) (*Flat, error) {
	if len(meta.IDs) != len(meta.Texts) || len(meta.IDs) != len(b.vecs) {
		return nil, fmt.Errorf("%w: %d ids, %d texts, %d vectors",
			ErrCorruptIndex, len(meta.IDs), len(meta.Texts), len(b.vecs))
	}
	f := &Flat{
		metric:    b.metric,
		dim:       b.dim,
		ids:       meta.IDs,
		texts:     meta.Texts,
		vecs:      b.vecs,
		positions: make(map[string]int, len(meta.IDs)),
	}
	for pos, id := range meta.IDs {
		if _, dup := f.positions[id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrCorruptIndex, id)
		}
		f.positions[id] = pos
	}
	return f, nil
}

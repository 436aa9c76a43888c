package persidict_test

import (
	"context"
	"testing"

	pd "github.com/unkn0wn-root/persidict"
	"github.com/unkn0wn-root/persidict/backend/memory"
)

type record struct {
	ID   string
	Name string
}

func TestMultiFormatContainerFormatLookup(t *testing.T) {
	json := memory.New[record](pd.Config[record]{SerializationFormat: "json"})
	cbor := memory.New[record](pd.Config[record]{SerializationFormat: "cbor"})

	c := pd.NewMultiFormatContainer(map[string]pd.PersiDict[record]{
		"json": json,
		"cbor": cbor,
	})

	got, err := c.Format("json")
	if err != nil {
		t.Fatalf("Format(json): %v", err)
	}
	if got != pd.PersiDict[record](json) {
		t.Fatalf("Format(json) did not return the registered dict")
	}

	if _, err := c.Format("msgpack"); err == nil {
		t.Fatalf("Format(msgpack) should error: no such format registered")
	}
}

func TestMultiFormatContainerFormats(t *testing.T) {
	json := memory.New[record](pd.Config[record]{})
	cbor := memory.New[record](pd.Config[record]{})
	c := pd.NewMultiFormatContainer(map[string]pd.PersiDict[record]{
		"json": json,
		"cbor": cbor,
	})

	names := c.Formats()
	if len(names) != 2 {
		t.Fatalf("expected 2 format names, got %v", names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	if !seen["json"] || !seen["cbor"] {
		t.Fatalf("unexpected format set: %v", names)
	}
}

func TestMultiFormatContainerSubdictsAreIndependent(t *testing.T) {
	ctx := context.Background()
	json := memory.New[record](pd.Config[record]{})
	cbor := memory.New[record](pd.Config[record]{})
	c := pd.NewMultiFormatContainer(map[string]pd.PersiDict[record]{
		"json": json,
		"cbor": cbor,
	})

	k := pd.MustSafeKey("u1")
	jsonDict, _ := c.Format("json")
	_ = pd.SetValue(ctx, jsonDict, k, record{ID: "u1", Name: "Ada"})

	cborDict, _ := c.Format("cbor")
	if exists, _ := cborDict.Contains(ctx, k); exists {
		t.Fatalf("writing to one format's sub-dict should not affect another's")
	}
}

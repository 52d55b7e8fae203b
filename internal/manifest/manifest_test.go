package manifest

import (
	"testing"

	"github.com/thornfield-ai/splitloader/internal/bytesource"
)

func TestParseDeduplicatesAndTrims(t *testing.T) {
	t.Parallel()

	data := []byte("token_embd.weight\n  blk.0.attn_q.weight  \n\ntoken_embd.weight\nblk.0.attn_k.weight\n")
	set := Parse(data)

	want := []string{"token_embd.weight", "blk.0.attn_q.weight", "blk.0.attn_k.weight"}
	if len(set) != len(want) {
		t.Fatalf("Parse() has %d entries, want %d: %v", len(set), len(want), set)
	}
	for _, name := range want {
		if !set.Contains(name) {
			t.Fatalf("Parse() missing %q", name)
		}
	}
	if set.Contains("does.not.exist") {
		t.Fatalf("Contains() reported a name that was never in the manifest")
	}
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	set := Parse(nil)
	if len(set) != 0 {
		t.Fatalf("Parse(nil) = %v, want empty set", set)
	}
}

func TestLoadFromByteSource(t *testing.T) {
	t.Parallel()

	bs := bytesource.NewBufferSource([]byte("a\nb\nc\n"))
	set, err := Load(bs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(set) != 3 || !set.Contains("a") || !set.Contains("b") || !set.Contains("c") {
		t.Fatalf("Load() = %v", set)
	}
}

func TestLoadNilSource(t *testing.T) {
	t.Parallel()

	if _, err := Load(nil); err != ErrManifestUnavailable {
		t.Fatalf("Load(nil) = %v, want ErrManifestUnavailable", err)
	}
}

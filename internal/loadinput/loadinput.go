// Package loadinput describes where a model's bytes come from: a path on
// disk, an owned in-memory buffer, or a buffer promised by a producer
// thread. The original llama.cpp loader expresses this as a
// std::variant<fname_load_input, buffer_load_input, buffer_future_load_input>
// dispatched with std::get, which panics on the wrong alternative. Go has no
// tagged union with that shape, so this package uses an interface with three
// concrete implementations and pushes the "wrong variant" failure mode into
// an ordinary bool return instead of a runtime panic.
package loadinput

// LoadInput describes one model's provenance.
type LoadInput interface {
	// Identifier returns a printable id: the path for Path and Future
	// inputs, or the sentinel "buffer" for Buffer inputs.
	Identifier() string

	// SplitName returns the split family this input belongs to: a key and
	// the ordered list of sibling split identifiers. ok is false for
	// inputs with no split family (Buffer).
	SplitName() (key string, splits []string, ok bool)

	// SupportsSplitLoad reports whether this input can address additional
	// splits at all.
	SupportsSplitLoad() bool

	// SupportsSplitFromMemory reports whether split N can be obtained
	// without going back to disk. Only Future inputs can: the original
	// source declares the analogous query for Buffer but never implements
	// it, leaving Buffer splitting permanently unsupported; this
	// implementation makes that decision explicit rather than latent.
	SupportsSplitFromMemory() bool
}

// PathInput names a base file on disk plus its mutable list of sibling
// split paths (populated as the split family is discovered).
type PathInput struct {
	Path   string
	Splits []string
}

func (p *PathInput) Identifier() string { return p.Path }

func (p *PathInput) SplitName() (string, []string, bool) {
	return p.Path, p.Splits, true
}

func (p *PathInput) SupportsSplitLoad() bool       { return true }
func (p *PathInput) SupportsSplitFromMemory() bool { return false }

// BufferInput presents an already-owned byte buffer once. It has no split
// family: a single buffer is, by construction, a single split.
type BufferInput struct {
	Buffer []byte
}

func (b *BufferInput) Identifier() string { return "buffer" }

func (b *BufferInput) SplitName() (string, []string, bool) { return "", nil, false }

func (b *BufferInput) SupportsSplitLoad() bool       { return false }
func (b *BufferInput) SupportsSplitFromMemory() bool { return false }

// FutureInput names a promise key and disambiguating context under which a
// producer thread will deliver a buffer through the registry, plus the
// sibling split keys and the manifest key that locates the tensor list.
type FutureInput struct {
	PromiseKey  string
	Context     string
	Splits      []string
	ManifestKey string
}

func (f *FutureInput) Identifier() string { return f.PromiseKey }

func (f *FutureInput) SplitName() (string, []string, bool) {
	return f.PromiseKey, f.Splits, true
}

func (f *FutureInput) SupportsSplitLoad() bool       { return true }
func (f *FutureInput) SupportsSplitFromMemory() bool { return true }

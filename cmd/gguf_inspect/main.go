package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/thornfield-ai/splitloader/internal/gguf"
)

func main() {
	var (
		showKV      = flag.Bool("kv", false, "show all metadata key/values")
		showTensors = flag.Int("tensors", 20, "number of tensors to list (0 to skip, -1 for all)")
		dumpTensor  = flag.String("dump-tensor", "", "materialize one tensor's data and print summary stats")
		rawDump     = flag.Bool("raw", false, "with --dump-tensor, skip dequantization and report raw byte size only")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: gguf_inspect [--kv] [--tensors N] <path.gguf>")
		os.Exit(2)
	}

	path := flag.Arg(0)
	f, err := gguf.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	fmt.Printf("File: %s\n", path)
	fmt.Printf("GGUF v%d | tensors=%d | kv=%d | alignment=%d | data_offset=%d\n",
		f.Header.Version, f.Header.TensorCount, f.Header.KVCount, f.Alignment, f.DataOffset)

	if idx, count, ok := f.SplitIndex(); ok {
		fmt.Printf("split: %d of %d\n", idx, count)
	} else {
		fmt.Println("split: none (single-file model)")
	}

	printKey(f, "general.name")
	printKey(f, "general.architecture")
	printKey(f, "general.quantization")
	printKey(f, "general.file_type")
	printKey(f, "general.alignment")
	printKey(f, "general.context_length")
	printKey(f, "general.version")
	printKey(f, "tokenizer.ggml.model")
	printKey(f, "tokenizer.ggml.bos_token_id")
	printKey(f, "tokenizer.ggml.eos_token_id")
	printKey(f, "tokenizer.ggml.pad_token_id")
	printKey(f, "tokenizer.ggml.unk_token_id")

	fmt.Println()
	fmt.Println("Model params:")
	printKey(f, "llama.block_count")
	printKey(f, "llama.embedding_length")
	printKey(f, "llama.attention.head_count")
	printKey(f, "llama.attention.head_count_kv")
	printKey(f, "llama.attention.layer_norm_rms_epsilon")
	printKey(f, "llama.rope.freq_base")
	printKey(f, "llama.rope.freq_scale")
	printKey(f, "llama.context_length")
	printKey(f, "llama.vocab_size")

	if *showKV {
		fmt.Println()
		fmt.Println("All metadata:")
		keys := make([]string, 0, len(f.KV))
		for k := range f.KV {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", k, formatValue(f.KV[k]))
		}
	}

	n := *showTensors
	if n != 0 {
		fmt.Println()
		fmt.Println("Tensors:")
		count := len(f.Tensors)
		if n < 0 || n > count {
			n = count
		}
		for i := 0; i < n; i++ {
			t := f.Tensors[i]
			fmt.Printf("  %-40s %-6s dims=%s off=%d\n",
				t.Name, t.Type.String(), formatDims(t.Dims), t.Offset)
		}
		if n < count {
			fmt.Printf("  ... (%d more)\n", count-n)
		}
	}

	if *dumpTensor != "" {
		fmt.Println()
		if *rawDump {
			raw, dims, typ, err := gguf.ReadTensorRaw(f, *dumpTensor)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
			fmt.Printf("tensor %s: raw %d bytes, dims=%s, type=%s\n", *dumpTensor, len(raw), formatDims(dims), typ.String())
			return
		}
		vals, dims, err := gguf.ReadTensorF32(f, *dumpTensor)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Printf("tensor %s: %d elements, dims=%s\n", *dumpTensor, len(vals), formatDims(dims))
		fmt.Printf("  min=%g max=%g mean=%g\n", minFloat32(vals), maxFloat32(vals), meanFloat32(vals))
	}
}

func minFloat32(vals []float32) float32 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxFloat32(vals []float32) float32 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func meanFloat32(vals []float32) float32 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += float64(v)
	}
	return float32(sum / float64(len(vals)))
}

func printKey(f *gguf.File, key string) {
	if v, ok := f.KV[key]; ok {
		fmt.Printf("  %-36s %s\n", key+":", formatValue(v))
	}
}

func formatDims(dims []uint64) string {
	if len(dims) == 0 {
		return "[]"
	}
	parts := make([]string, len(dims))
	for i, v := range dims {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, "x") + "]"
}

func formatValue(v gguf.Value) string {
	switch val := v.Value.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case gguf.ArrayValue:
		return fmt.Sprintf("array(%s) len=%d", val.ElemType.String(), len(val.Values))
	default:
		return fmt.Sprintf("%v", val)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/thornfield-ai/splitloader/internal/loader"
	"github.com/thornfield-ai/splitloader/internal/loadinput"
	"github.com/thornfield-ai/splitloader/internal/logger"
	"github.com/thornfield-ai/splitloader/internal/mcfstore"
	"github.com/thornfield-ai/splitloader/internal/registry"
	"github.com/thornfield-ai/splitloader/internal/splitload"
)

// scenario reports to demoCmd's --json output and stderr narration.
type scenarioReport struct {
	Scenario    string                    `json:"scenario"`
	Incremental bool                      `json:"incremental"`
	Splits      []splitload.SplitStatus   `json:"splits"`
	Tensors     []tensorReport            `json:"tensors"`
	Error       string                    `json:"error,omitempty"`
}

type tensorReport struct {
	Name      string `json:"name"`
	SplitIdx  int    `json:"split_idx,omitempty"`
	DataSize  uint64 `json:"data_size,omitempty"`
	Error     string `json:"error,omitempty"`
}

func demoCmd() *cli.Command {
	var (
		scenario string
		asJSON   bool
	)

	return &cli.Command{
		Name:  "demo",
		Usage: "Run one of the loader's reference scenarios against generated fixtures",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "scenario",
				Aliases:     []string{"s"},
				Usage:       "single-disk, split-disk-manifest, split-future-eager, split-future-lazy, unknown-tensor, split-index-mismatch",
				Value:       "split-disk-manifest",
				Destination: &scenario,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the scenario report as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyDemoConfig(cmd, LoadConfig(), &scenario)
			dir, err := os.MkdirTemp("", "splitload-demo-*")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer os.RemoveAll(dir)

			report, err := runScenario(ctx, dir, scenario, log)
			if err != nil {
				report.Error = err.Error()
			}

			if asJSON {
				body, jerr := json.MarshalIndent(report, "", "  ")
				if jerr != nil {
					return cli.Exit(jerr.Error(), 1)
				}
				fmt.Println(string(body))
			} else {
				printReport(report)
			}

			if err != nil {
				return cli.Exit(fmt.Sprintf("scenario %q failed: %v", scenario, err), 1)
			}
			return nil
		},
	}
}

func printReport(r scenarioReport) {
	fmt.Printf("scenario: %s\n", r.Scenario)
	fmt.Printf("incremental: %v\n", r.Incremental)
	for _, s := range r.Splits {
		fmt.Printf("  split %d: tensors %d/%d loaded, released=%v\n", s.Index, s.LoadedTensorCount, s.TotalTensorCount, s.Released)
	}
	for _, t := range r.Tensors {
		if t.Error != "" {
			fmt.Printf("  tensor %s: error: %s\n", t.Name, t.Error)
			continue
		}
		fmt.Printf("  tensor %s: split=%d size=%d\n", t.Name, t.SplitIdx, t.DataSize)
	}
	if r.Error != "" {
		fmt.Printf("error: %s\n", r.Error)
	}
}

func runScenario(ctx context.Context, dir, scenario string, log logger.Logger) (scenarioReport, error) {
	report := scenarioReport{Scenario: scenario}

	switch scenario {
	case "single-disk":
		base, err := writeSingleMCFFile(dir, "single")
		if err != nil {
			return report, err
		}
		return loadAndReport(ctx, report, &loadinput.PathInput{Path: base}, mcfstore.Parse, nil, log, "token_embd.weight")

	case "split-disk-manifest":
		base, err := writeMCFSplits(dir, "two-split", true)
		if err != nil {
			return report, err
		}
		return loadAndReport(ctx, report, &loadinput.PathInput{Path: base}, mcfstore.Parse, nil, log,
			"token_embd.weight", "blk.0.attn_q.weight", "blk.0.attn_k.weight")

	case "split-future-eager":
		return runFutureScenario(ctx, dir, report, log, false)

	case "split-future-lazy":
		return runFutureScenario(ctx, dir, report, log, true)

	case "unknown-tensor":
		base, err := writeMCFSplits(dir, "unknown-tensor", true)
		if err != nil {
			return report, err
		}
		return loadAndReport(ctx, report, &loadinput.PathInput{Path: base}, mcfstore.Parse, nil, log, "does.not.exist")

	case "split-index-mismatch":
		base, err := writeMisorderedSplits(dir)
		if err != nil {
			return report, err
		}
		return loadAndReport(ctx, report, &loadinput.PathInput{Path: base}, mcfstore.Parse, nil, log,
			"token_embd.weight", "blk.0.attn_q.weight")

	default:
		return report, fmt.Errorf("unknown scenario %q", scenario)
	}
}

func loadAndReport(ctx context.Context, report scenarioReport, input loadinput.LoadInput, parse splitload.ParseFunc, reg *registry.Registry, log logger.Logger, tensorNames ...string) (scenarioReport, error) {
	if reg == nil {
		reg = registry.New()
	}
	ld, err := loader.Open(ctx, input, parse, reg, log)
	if err != nil {
		return report, err
	}
	report.Incremental = ld.Incremental

	for _, name := range tensorNames {
		tm, idx, err := ld.NextTensorMeta(name)
		if err != nil {
			report.Tensors = append(report.Tensors, tensorReport{Name: name, Error: err.Error()})
			continue
		}
		report.Tensors = append(report.Tensors, tensorReport{Name: name, SplitIdx: idx, DataSize: tm.DataSize})
	}
	report.Splits = ld.Status()
	return report, nil
}

// runFutureScenario wires a two-split future load: one producer goroutine
// delivers the manifest, the base split, and split 1, in that order, through
// the registry concurrently with the consumer's loader.Open/NextTensorMeta
// calls. lazy paces each delivery through a rate limiter (one per 30ms) to
// exercise the blocking path in bytesource.FutureByteSource.extract; eager
// delivers all three back to back with no pacing.
func runFutureScenario(ctx context.Context, dir string, report scenarioReport, log logger.Logger, lazy bool) (scenarioReport, error) {
	stem := "future-split"
	basePath, err := writeMCFSplits(dir, stem, true)
	if err != nil {
		return report, err
	}
	splitPath := filepath.Join(dir, loader.SplitFileName(stem+".mcf", 2, 2))
	manifestPath := filepath.Join(dir, stem+".tensors.txt")

	baseBuf, err := os.ReadFile(basePath)
	if err != nil {
		return report, err
	}
	splitBuf, err := os.ReadFile(splitPath)
	if err != nil {
		return report, err
	}
	manifestBuf, err := os.ReadFile(manifestPath)
	if err != nil {
		return report, err
	}

	loadCtx := uuid.NewString()
	reg := registry.New()
	input := &loadinput.FutureInput{
		PromiseKey:  "model",
		Context:     loadCtx,
		Splits:      []string{"", "model-split-1"},
		ManifestKey: "model.manifest",
	}

	deliveries := []struct {
		key registry.Key
		buf []byte
	}{
		{registry.Key{PromiseKey: "model.manifest", Context: loadCtx}, manifestBuf},
		{registry.Key{PromiseKey: "model", Context: loadCtx}, baseBuf},
		{registry.Key{PromiseKey: "model-split-1", Context: loadCtx}, splitBuf},
	}

	go func() {
		var limiter *rate.Limiter
		if lazy {
			limiter = rate.NewLimiter(rate.Every(30*time.Millisecond), 1)
		}
		for _, d := range deliveries {
			if limiter != nil {
				_ = limiter.Wait(ctx)
			}
			log.Info("future producer delivering", "key", d.key.PromiseKey)
			reg.Fulfill(d.key, d.buf)
		}
	}()

	return loadAndReport(ctx, report, input, mcfstore.Parse, reg, log,
		"token_embd.weight", "blk.0.attn_q.weight", "blk.0.attn_k.weight")
}

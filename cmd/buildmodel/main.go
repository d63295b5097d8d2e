// Command buildmodel builds a curriculum model from a configuration file,
// prints its layer table and optionally persists its parameter list.
//
//	go run ./cmd/buildmodel -config configs/curriculum.yaml -arch conv -save params.gob
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/config"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/layer"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/model"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/storage"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "buildmodel:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("buildmodel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "configs/curriculum.yaml", "model configuration (YAML or JSON)")
	arch := fs.String("arch", model.ArchConv, "architecture: conv or shallow")
	batch := fs.Int("batch", 1, "batch size the model is built for")
	paramsPath := fs.String("params", "", "checkpoint to resume parameters from")
	savePath := fs.String("save", "", "write the built parameter list to this checkpoint")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *batch < 1 {
		return errors.Errorf("batch size must be positive, got %d", *batch)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	log.Debug("host", "cpu", cpuid.CPU.BrandName, "cores", cpuid.CPU.PhysicalCores,
		"threads", cpuid.CPU.LogicalCores, "avx2", cpuid.CPU.Supports(cpuid.AVX2))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	m, err := model.New(*arch, cfg, model.WithLogger(log))
	if err != nil {
		return err
	}

	var saved model.Params
	if *paramsPath != "" {
		c, err := storage.Load(*paramsPath)
		if err != nil {
			return err
		}
		if c.Arch != *arch {
			return errors.Errorf("checkpoint %s holds a %s model, not %s", *paramsPath, c.Arch, *arch)
		}
		log.Info("resuming", "run", c.RunID, "params", len(c.Params))
		saved = c.Params
	}

	c, w, h := cfg.InputDataDim[0], cfg.InputDataDim[1], cfg.InputDataDim[2]
	x := layer.NewTensor(*batch, c, w, h)
	if err := m.Build(x, *batch, saved); err != nil {
		return errors.Wrap(err, "build")
	}

	m.Summary(stdout)
	l2, err := m.L2Penalty()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "L2 penalty: %.6f\n", l2)

	if *savePath != "" {
		ckpt := storage.New(*arch, m.Params())
		if err := storage.Save(*savePath, ckpt); err != nil {
			return err
		}
		log.Info("saved parameters", "path", *savePath, "run", ckpt.RunID)
	}
	return nil
}

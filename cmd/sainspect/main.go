package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/gosuffix/go-csa-sampling/internal/common"
	"github.com/gosuffix/go-csa-sampling/pkg/sampling"
	"github.com/gosuffix/go-csa-sampling/pkg/sampling/cache"
)

// sainspect builds every sampling variant over a text file and reports
// sample counts and serialized sizes, for comparing density tradeoffs.
func main() {
	var (
		textPath = flag.String("text", "", "path to input text (required)")
		dir      = flag.String("dir", "", "cache directory (default: temp dir)")
		dens     = flag.Uint64("dens", 32, "sampling density")
		chars    = flag.String("chars", "", "sampled characters for the bwt-char variant")
		compress = flag.Bool("compress", false, "zstd-compress cache artifacts")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *textPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	text, err := os.ReadFile(*textPath)
	if err != nil {
		log.Fatalf("failed to read text: %v", err)
	}

	cacheDir := *dir
	if cacheDir == "" {
		cacheDir, err = os.MkdirTemp("", "sainspect-*")
		if err != nil {
			log.Fatalf("failed to create temp directory: %v", err)
		}
		defer os.RemoveAll(cacheDir)
	}

	logger := sampling.NewDefaultLogger()
	if *verbose {
		logger = sampling.NewDefaultLoggerWithLevel(common.LogLevelDebug)
	}

	c, err := cache.New(cache.Config{Dir: cacheDir, Compression: *compress, Logger: logger})
	if err != nil {
		log.Fatalf("failed to open cache: %v", err)
	}

	start := time.Now()
	if err := cache.ConstructSA(c, text); err != nil {
		log.Fatalf("failed to construct suffix array: %v", err)
	}
	sampling.LogLatency(logger, "construct-sa", start)
	if *chars != "" {
		if err := cache.StoreSampleChars(c, []byte(*chars)); err != nil {
			log.Fatalf("failed to store sampled characters: %v", err)
		}
	}

	fmt.Printf("text: %d bytes, density %d, cache %s\n\n", len(text), *dens, cacheDir)

	builders := []struct {
		name  string
		build func() (sampling.SASampler, error)
	}{
		{"suffix-order", func() (sampling.SASampler, error) { return sampling.NewSuffixOrderSampling(c, *dens) }},
		{"text-order", func() (sampling.SASampler, error) { return sampling.NewTextOrderSampling(c, *dens) }},
		{"bwt-char", func() (sampling.SASampler, error) { return sampling.NewBWTSampling(c, *dens) }},
		{"fuzzy", func() (sampling.SASampler, error) { return sampling.NewFuzzySampling(c, *dens) }},
	}

	for _, b := range builders {
		start := time.Now()
		sa, err := b.build()
		if err != nil {
			sampling.LogError(logger, "failed to build sampling", err, "variant", b.name)
			os.Exit(1)
		}
		sampling.LogLatency(logger, "build-"+b.name, start)

		saBytes, err := sa.WriteTo(io.Discard)
		if err != nil {
			sampling.LogError(logger, "failed to serialize sampling", err, "variant", b.name)
			os.Exit(1)
		}
		isa, err := sampling.NewISASupport(c, sa)
		if err != nil {
			sampling.LogError(logger, "failed to build isa support", err, "variant", b.name)
			os.Exit(1)
		}
		isaBytes, err := isa.WriteTo(io.Discard)
		if err != nil {
			sampling.LogError(logger, "failed to serialize isa support", err, "variant", b.name)
			os.Exit(1)
		}

		fmt.Printf("%-12s  samples %8d / %d  sa %8d B  isa %8d B\n",
			b.name, sa.Samples(), sa.Len(), saBytes, isaBytes)
		if fz, ok := sa.(*sampling.FuzzySampling); ok {
			fmt.Printf("%-12s  runs %d over %d windows\n", "", fz.Runs(), fz.Windows())
		}
	}
}

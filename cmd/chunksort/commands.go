package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/config"
	"github.com/KevoDB/chunksort/pkg/extsort"
	"github.com/KevoDB/chunksort/pkg/generate"
	"github.com/KevoDB/chunksort/pkg/grpc/service"
	"github.com/KevoDB/chunksort/pkg/grpc/transport"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
	"github.com/KevoDB/chunksort/pkg/telemetry"
	"github.com/KevoDB/chunksort/pkg/verify"
)

const (
	defaultRows    = 1_000_000
	defaultAddress = "localhost:50051"
	stopTimeout    = 10 * time.Second
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: %s: unexpected argument %q", errUsage, fs.Name(), fs.Arg(0))
	}
	return nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func runGenerate(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("generate")
	out := fs.String("out", "", "file to write")
	rows := fs.Int64("rows", defaultRows, "number of people to generate")
	seed := fs.Uint64("seed", 0, "random seed for reproducible output")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("%w: generate: -out is required", errUsage)
	}

	var opts []generate.Option
	if isSet(fs, "seed") {
		opts = append(opts, generate.WithSeed(*seed))
	}

	start := time.Now()
	n, err := generate.People(ctx, *out, *rows, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Added %d rows to file in %s: %s\n", n, time.Since(start), *out)
	return nil
}

func runSort(ctx context.Context, base *config.Config, tel telemetry.Telemetry, args []string, stdout io.Writer) error {
	fs := newFlagSet("sort")
	in := fs.String("in", "", "input file")
	out := fs.String("out", "", "output file")
	chunkSize := fs.Int("chunk-size", base.ChunkSize, "records per chunk")
	parallel := fs.Int("parallel", base.Parallelism, "concurrent chunk sorts (1-10)")
	chunkDir := fs.String("chunk-dir", base.ChunkDir, "directory for chunk files")
	raw := fs.Bool("raw", base.RawChunking, "split lines without parsing them")
	compression := fs.String("compression", string(base.Compression), "codec for chunks and output: none, snappy, zstd")
	strategy := fs.String("strategy", string(base.MergeStrategy), "merge strategy: heap or scan")
	keepChunks := fs.Bool("keep-chunks", !base.RemoveChunks, "leave chunk files after a successful sort")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("%w: sort: -in and -out are required", errUsage)
	}

	codec, err := config.ParseCompression(*compression)
	if err != nil {
		return err
	}
	merge, err := config.ParseMergeStrategy(*strategy)
	if err != nil {
		return err
	}

	cfg := base.Clone()
	cfg.Update(func(c *config.Config) {
		c.ChunkSize = *chunkSize
		c.Parallelism = *parallel
		c.ChunkDir = *chunkDir
		c.RawChunking = *raw
		c.Compression = codec
		c.MergeStrategy = merge
		c.RemoveChunks = !*keepChunks
	})

	res, err := extsort.SortPeople(ctx, cfg, *in, *out,
		extsort.WithLogger(log.Component("sort")),
		extsort.WithTelemetry(tel),
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Chunked into %d files in %s\n", len(res.Chunks), res.ChunkDuration)
	fmt.Fprintf(stdout, "Sorted %d files in %s\n", len(res.Chunks), res.SortDuration)
	fmt.Fprintf(stdout, "Merged %d rows to file in %s: %s\n", res.Records, res.MergeDuration, *out)
	log.Debug("%s", extsort.FormatResult(res))
	return nil
}

func runVerify(ctx context.Context, base *config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("verify")
	in := fs.String("in", "", "unsorted input file")
	out := fs.String("out", "", "sorted output file")
	compression := fs.String("compression", string(base.Compression), "codec of the output file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("%w: verify: -in and -out are required", errUsage)
	}

	codec, err := config.ParseCompression(*compression)
	if err != nil {
		return err
	}

	start := time.Now()
	inSum, outSum, err := verify.Compare(ctx, *in, *out, record.People(), nil,
		[]recordio.Option{recordio.WithCompression(codec)})
	if inSum.Path != "" {
		fmt.Fprintf(stdout, "input:  %s\n", inSum)
	}
	if outSum.Path != "" {
		fmt.Fprintf(stdout, "output: %s\n", outSum)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Verified %d rows in %s\n", outSum.Records, time.Since(start))
	return nil
}

func runServe(ctx context.Context, base *config.Config, tel telemetry.Telemetry, args []string, stdout io.Writer) error {
	fs := newFlagSet("serve")
	address := fs.String("address", defaultAddress, "address to listen on")
	dataRoot := fs.String("data-root", base.DataRoot, "directory that confines every path a client names")
	chunkDir := fs.String("chunk-dir", base.ChunkDir, "root directory for per-job chunk files")
	maxJobs := fs.Int("max-jobs", service.DefaultMaxJobs, "concurrent sort jobs")
	certFile := fs.String("cert", "", "TLS certificate file")
	keyFile := fs.String("key", "", "TLS key file")
	caFile := fs.String("ca", "", "CA file for client certificates")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg := base.Clone()
	cfg.Update(func(c *config.Config) {
		c.DataRoot = *dataRoot
		c.ChunkDir = *chunkDir
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	handler := service.NewSortServiceServer(cfg,
		service.WithLogger(log.Component("service")),
		service.WithTelemetry(tel),
		service.WithMaxJobs(*maxJobs),
	)
	server := transport.NewGRPCServer(*address, handler, transport.Options{
		TLS: transport.TLSConfig{
			CertFile: *certFile,
			KeyFile:  *keyFile,
			CAFile:   *caFile,
		},
		Logger: log.Component("transport"),
	})
	if err := server.Start(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Listening on %s\n", server.Addr())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Server stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/paveg/datascope"
	"github.com/paveg/datascope/internal/config"
	"github.com/paveg/datascope/internal/logutil"
	"github.com/paveg/datascope/internal/pagination"
	"github.com/paveg/datascope/internal/progress"
	"github.com/paveg/datascope/internal/server"
	"github.com/paveg/datascope/internal/version"
)

const shutdownTimeout = 15 * time.Second

func usage() {
	fmt.Fprintf(os.Stderr, "datascope (version %s)\n\n", version.Version)
	fmt.Fprintf(os.Stderr, "Usage: datascope [global options] <command> [options] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  open <file>\t\tPrint row count and columns of a CSV or Parquet file\n")
	fmt.Fprintf(os.Stderr, "  page <file>\t\tPrint one page of rows as JSON\n")
	fmt.Fprintf(os.Stderr, "  thumb <file>\t\tPrint the thumbnail of one page\n")
	fmt.Fprintf(os.Stderr, "  convert <src> <dst>\tConvert a CSV file to Parquet\n")
	fmt.Fprintf(os.Stderr, "  serve\t\t\tServe the viewer API over HTTP\n")
	fmt.Fprintf(os.Stderr, "  version\t\tPrint version information\n\n")
	fmt.Fprintf(os.Stderr, "Global options:\n")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "Configuration file (.json, .yaml)")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	//nolint:reassign // Standard Go pattern for customizing flag usage message
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if args[0] == "version" {
		fmt.Print(version.Info().String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("loading configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger, err := logutil.NewLogger(cfg.Log)
	if err != nil {
		fatalf("creating logger: %v", err)
	}

	svc, err := datascope.New(cfg, logger)
	if err != nil {
		fatalf("starting service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, svc, args[0], args[1:])
	stop()
	if cerr := svc.Close(); cerr != nil {
		logger.Warn("closing service", zap.Error(cerr))
	}
	if err != nil {
		fatalf("%s: %v", args[0], err)
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg := config.NewConfig()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	return config.LoadFromEnv(cfg), nil
}

func run(ctx context.Context, svc *datascope.Service, cmd string, args []string) error {
	switch cmd {
	case "open":
		return runOpen(ctx, svc, args)
	case "page":
		return runPage(ctx, svc, args)
	case "thumb":
		return runThumb(ctx, svc, args)
	case "convert":
		return runConvert(ctx, svc, args)
	case "serve":
		return runServe(ctx, svc, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runOpen(ctx context.Context, svc *datascope.Service, args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("expected one file argument")
	}
	res, err := svc.Open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	plan, err := svc.Pagination(res.TotalRows())
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"dataset": res, "total_pages": plan.TotalPages})
}

type pageFlags struct {
	fs        *flag.FlagSet
	page      *int
	columns   *string
	delimiter *string
	progress  *bool
}

func newPageFlags(name string) pageFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return pageFlags{
		fs:        fs,
		page:      fs.Int("page", 0, "Page index"),
		columns:   fs.String("columns", "", "Comma separated Parquet column projection"),
		delimiter: fs.String("delimiter", "", "CSV delimiter override"),
		progress:  fs.Bool("progress", false, "Print progress events to stderr"),
	}
}

func (p pageFlags) projection() []string {
	if *p.columns == "" {
		return nil
	}
	return strings.Split(*p.columns, ",")
}

// openPage opens the file, applies a delimiter override and resolves the
// requested page descriptor.
func openPage(ctx context.Context, svc *datascope.Service, p pageFlags, args []string) (*datascope.OpenResult, error) {
	_ = p.fs.Parse(args)
	if p.fs.NArg() != 1 {
		return nil, errors.New("expected one file argument")
	}
	res, err := svc.Open(ctx, p.fs.Arg(0))
	if err != nil {
		return nil, err
	}
	if *p.delimiter != "" && res.CSV != nil {
		d, err := datascope.ParseDelimiter(*p.delimiter)
		if err != nil {
			return nil, err
		}
		if _, err := svc.CSV().ChangeDelimiter(ctx, d); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func stderrProgress(enabled bool) progress.Func {
	if !enabled {
		return nil
	}
	return func(ev progress.Event) {
		fmt.Fprintf(os.Stderr, "\r%s %d/%d", ev.Message, ev.Current, ev.Total)
		if ev.Current == ev.Total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func runPage(ctx context.Context, svc *datascope.Service, args []string) error {
	p := newPageFlags("page")
	res, err := openPage(ctx, svc, p, args)
	if err != nil {
		return err
	}
	desc, err := pageDescriptor(svc, res, *p.page)
	if err != nil {
		return err
	}

	fn := stderrProgress(*p.progress)
	if res.CSV != nil {
		page, err := svc.CSV().LoadPage(ctx, *p.page, desc, fn)
		if err != nil {
			return err
		}
		return printJSON(page)
	}
	page, err := svc.Parquet().LoadPage(ctx, *p.page, desc, p.projection(), fn)
	if err != nil {
		return err
	}
	return printJSON(page)
}

func runThumb(ctx context.Context, svc *datascope.Service, args []string) error {
	p := newPageFlags("thumb")
	res, err := openPage(ctx, svc, p, args)
	if err != nil {
		return err
	}
	v, err := svc.Viewer(res.Format)
	if err != nil {
		return err
	}
	thumbs, err := svc.Thumbnails(ctx, v, []int{*p.page})
	if err != nil {
		return err
	}
	return printJSON(thumbs[0])
}

func pageDescriptor(svc *datascope.Service, res *datascope.OpenResult, index int) (desc pagination.Page, err error) {
	plan, err := svc.Pagination(res.TotalRows())
	if err != nil {
		return desc, err
	}
	if index < 0 || index >= len(plan.Pages) {
		return desc, fmt.Errorf("page %d out of range, file has %d pages", index, plan.TotalPages)
	}
	return plan.Pages[index], nil
}

func runConvert(ctx context.Context, svc *datascope.Service, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	compression := fs.String("compression", "", "Codec: zstd, snappy, gzip, lz4, uncompressed")
	delimiter := fs.String("delimiter", "", "CSV delimiter (default: sniffed)")
	noHeader := fs.Bool("no-header", false, "The first record is data")
	inferRows := fs.Int("infer-rows", 0, "Records sampled for schema inference")
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		return errors.New("expected source and destination arguments")
	}

	opts := datascope.ConvertOptions{
		Delimiter:       *delimiter,
		InferSchemaRows: *inferRows,
		Compression:     *compression,
	}
	if *noHeader {
		hasHeader := false
		opts.HasHeader = &hasHeader
	}
	res, err := svc.Converter().Convert(ctx, fs.Arg(0), fs.Arg(1), opts)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runServe(ctx context.Context, svc *datascope.Service, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", svc.Config().ListenAddr, "Listen address")
	_ = fs.Parse(args)

	srv := server.New(svc, *addr)
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "datascope: "+format+"\n", args...)
	os.Exit(1)
}

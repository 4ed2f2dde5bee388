package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"adi/internal/config"
	"adi/internal/engine"
	"adi/internal/logging"
	"adi/internal/platform"
)

const usage = `usage: adi <command> [flags]

commands:
  run          execute one run document and print its metadata
  serve        host the builtin transformations over gRPC
  datasets     list | download | upload platform datasets
  templates    define a transformation template on the platform
`

func main() {
	logging.InitFromEnv()
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCmd(ctx, args)
	case "serve":
		err = serveCmd(ctx, args)
	case "datasets":
		err = datasetsCmd(ctx, args)
	case "templates":
		err = templatesCmd(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logging.L().Error("adi: "+os.Args[1], "err", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	logging.Configure(cfg.Log)
	return cfg, nil
}

func runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "adi.yml", "engine config file (optional)")
	specPath := fs.String("spec", "run.yml", "run document")
	metrics := fs.Bool("metrics", false, "expose /metrics while running")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	var opts []engine.Option
	if !*metrics {
		opts = append(opts, engine.WithoutMetrics())
	}
	e, err := engine.Bootstrap(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer e.Close()

	md, err := e.RunSpec(ctx, *specPath)
	if err != nil {
		return err
	}
	return printJSON(md)
}

func serveCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "adi.yml", "engine config file (optional)")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	e, err := engine.Bootstrap(ctx, cfg, engine.WithServer())
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer e.Close()
	return e.Run(ctx)
}

func connect(cfgPath string) (*platform.Connection, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return platform.Connect(cfg.Platform.Host, cfg.Platform.APIKey, nil)
}

func datasetsCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("datasets: want list, download or upload")
	}
	fs := flag.NewFlagSet("datasets "+args[0], flag.ExitOnError)
	cfgPath := fs.String("config", "adi.yml", "engine config file (optional)")
	org := fs.String("org", "", "organization name (default: first of the current user)")
	name := fs.String("dataset", "", "dataset uuid or name")
	format := fs.String("format", "", "download format, e.g. csv")
	file := fs.String("file", "", "file to upload")
	typ := fs.String("type", "csv", "dataset type for newly created datasets")
	fs.Parse(args[1:])

	conn, err := connect(*cfgPath)
	if err != nil {
		return err
	}
	if *org != "" {
		if err := conn.Organizations.Set(ctx, platform.OrgSelector{Name: *org}); err != nil {
			return err
		}
	}

	switch args[0] {
	case "list":
		ds, err := conn.Datasets.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(ds)
	case "download":
		b, err := conn.Datasets.Download(ctx, *name, *format)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(b)
		return err
	case "upload":
		ds, err := conn.Datasets.Upload(ctx, *name, *file, *typ)
		if err != nil {
			return err
		}
		return printJSON(ds)
	}
	return fmt.Errorf("datasets: unknown action %q", args[0])
}

type stringList []string

func (l *stringList) String() string { return fmt.Sprint(*l) }

func (l *stringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}

func templatesCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("templates", flag.ExitOnError)
	cfgPath := fs.String("config", "adi.yml", "engine config file (optional)")
	name := fs.String("name", "", "template name")
	path := fs.String("path", "", "file holding the transformation code")
	code := fs.String("code", "", "inline transformation code")
	var inputs stringList
	fs.Var(&inputs, "input", "declared input name (repeatable)")
	fs.Parse(args)

	conn, err := connect(*cfgPath)
	if err != nil {
		return err
	}
	tr, err := conn.Transformations.Define(ctx, *name, platform.TransformationSource{
		Path:   *path,
		Code:   *code,
		Inputs: inputs,
	})
	if err != nil {
		return err
	}
	return printJSON(tr)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

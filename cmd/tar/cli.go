package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/alecthomas/units"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jaddr2line/treetar"
)

const usageText = `usage to create an archive:  tar c[v] ARCHIVE DIRECTORY
usage to extract an archive: tar x[v] ARCHIVE
usage to list an archive:    tar t[v] ARCHIVE

  the v parameter is optional, and if given then every file name
  will be printed as the file is processed
`

type options struct {
	archive   string
	dir       string
	base      string
	logLevel  string
	onUnsup   string
	chunkSize units.Base2Bytes
	keepTimes bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func newApp(o *options, stdout, stderr io.Writer) *kingpin.Application {
	app := kingpin.New("tar", "Archive a directory tree into a single stream, and restore it.")
	app.UsageWriter(stdout)
	app.ErrorWriter(stderr)
	app.Terminate(nil)

	app.Flag("log-level", "log level").Default("warn").EnumVar(&o.logLevel, "debug", "info", "warn", "error")
	app.Flag("on-unsupported", "what to do with symlinks and special files").Default("skip").EnumVar(&o.onUnsup, "skip", "fail")
	app.Flag("chunk-size", "size of the buffer used to copy file content").Default("32KiB").BytesVar(&o.chunkSize)
	app.Flag("preserve-times", "restore modification times when extracting").Default("true").BoolVar(&o.keepTimes)
	app.Flag("directory", "extract into this directory instead of the current one").Short('C').StringVar(&o.base)

	for _, name := range []string{"c", "cv"} {
		cmd := app.Command(name, "create ARCHIVE from DIRECTORY")
		cmd.Arg("archive", "archive file to write").Required().StringVar(&o.archive)
		cmd.Arg("directory", "directory to archive").Required().StringVar(&o.dir)
	}
	for _, name := range []string{"x", "xv"} {
		cmd := app.Command(name, "extract ARCHIVE")
		cmd.Arg("archive", "archive file to read").Required().StringVar(&o.archive)
	}
	for _, name := range []string{"t", "tv"} {
		cmd := app.Command(name, "list the contents of ARCHIVE")
		cmd.Arg("archive", "archive file to read").Required().StringVar(&o.archive)
	}

	return app
}

func run(args []string, stdout, stderr io.Writer) int {
	var o options
	cmd, err := newApp(&o, stdout, stderr).Parse(args)
	if err != nil || cmd == "" {
		fmt.Fprint(stdout, usageText)
		return 1
	}

	logger := newLogger(o.logLevel, stderr)
	defer logger.Sync() //nolint:errcheck

	verbose := strings.HasSuffix(cmd, "v")
	var progress io.Writer
	if verbose {
		progress = stdout
	}

	switch cmd[:1] {
	case "c":
		err = create(o, progress, logger)
	case "x":
		err = extract(o, progress, logger)
	case "t":
		err = list(o, verbose, stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "tar: %v\n", err)
		return 1
	}
	return 0
}

func create(o options, progress io.Writer, logger *zap.Logger) error {
	dir := treetar.TrimTrailingSeparators(o.dir)

	// check before the archive file is created
	if _, err := treetar.CheckRoot(dir); err != nil {
		return err
	}

	f, err := os.OpenFile(o.archive, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	policy := treetar.UnsupportedSkip
	if o.onUnsup == "fail" {
		policy = treetar.UnsupportedFail
	}

	w := treetar.NewWriter(f, treetar.WriterOptions{ChunkSize: int(o.chunkSize)})
	err = treetar.Create(w, dir, treetar.CreateOptions{
		Unsupported: policy,
		Progress:    progress,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	return f.Close()
}

func extract(o options, progress io.Writer, logger *zap.Logger) error {
	f, err := os.Open(o.archive)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := treetar.NewReader(f)
	if err != nil {
		return err
	}
	return treetar.Extract(r, treetar.ExtractOptions{
		Base:            o.base,
		PreserveModTime: o.keepTimes,
		Progress:        progress,
		Logger:          logger,
	})
}

func list(o options, verbose bool, out io.Writer) error {
	f, err := os.Open(o.archive)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := treetar.NewReader(f)
	if err != nil {
		return err
	}
	for {
		e, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if !verbose {
			fmt.Fprintln(out, e.Name)
			continue
		}
		md := e.Metadata
		mode := md.Mode
		if e.IsDir() {
			mode |= os.ModeDir
		}
		fmt.Fprintf(out, "%s %9s %s %s\n", mode, humanize.IBytes(uint64(md.Size)), md.ModTime.Format("2006-01-02 15:04"), e.Name)
	}
}

func newLogger(level string, out io.Writer) *zap.Logger {
	lvl := zapcore.WarnLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.WarnLevel
	}

	encodeLevel := zapcore.CapitalLevelEncoder
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		encodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:        zapcore.OmitKey,
			LevelKey:       "L",
			NameKey:        zapcore.OmitKey,
			CallerKey:      zapcore.OmitKey,
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  zapcore.OmitKey,
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    encodeLevel,
			EncodeDuration: zapcore.StringDurationEncoder,
		}),
		zapcore.AddSync(out),
		lvl,
	))
}

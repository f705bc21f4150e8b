package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/KevoDB/chunksort/pkg/config"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
	"github.com/KevoDB/chunksort/pkg/verify"
)

const defaultHeadRows = 10

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem("HEAD"),
	readline.PcItem("COUNT"),
	readline.PcItem("CHECK"),
	readline.PcItem("FIND"),
)

const shellHelpText = `
Commands:
  .help                   - Show this help message
  .open PATH [CODEC]      - Open a person file, optionally compressed (snappy, zstd)
  .close                  - Close the current file
  .exit                   - Exit the shell

  HEAD [n]                - Print the first n records (default 10)
  COUNT                   - Count the records
  CHECK                   - Fingerprint the file and check its order
  FIND id                 - Print every record with the given ID
`

var errNoFile = errors.New("no file open")

// inspector holds the state of one inspect session. Every command makes
// its own pass over the file.
type inspector struct {
	ctx    context.Context
	path   string
	codec  config.Compression
	format record.Format[record.Person]
}

func newInspector(ctx context.Context, codec config.Compression) *inspector {
	return &inspector{ctx: ctx, codec: codec, format: record.People()}
}

func (in *inspector) prompt() string {
	if in.path == "" {
		return "chunksort> "
	}
	return fmt.Sprintf("chunksort:%s> ", filepath.Base(in.path))
}

// execute runs one command line and reports whether the session should end.
func (in *inspector) execute(line string, out io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	cmd := strings.ToUpper(parts[0])
	if strings.HasPrefix(cmd, ".") {
		cmd = strings.ToLower(cmd)
	}

	var err error
	switch cmd {
	case ".help":
		fmt.Fprint(out, shellHelpText)
	case ".exit":
		return true
	case ".open":
		err = in.open(parts[1:], out)
	case ".close":
		if in.path == "" {
			err = errNoFile
			break
		}
		fmt.Fprintf(out, "Closed %s\n", in.path)
		in.path = ""
	case "HEAD":
		err = in.head(parts[1:], out)
	case "COUNT":
		err = in.count(out)
	case "CHECK":
		err = in.check(out)
	case "FIND":
		err = in.find(parts[1:], out)
	default:
		err = fmt.Errorf("unknown command %q, enter .help for usage", parts[0])
	}

	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return false
}

func (in *inspector) open(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("missing path argument")
	}
	codec := in.codec
	if len(args) > 1 {
		c, err := config.ParseCompression(args[1])
		if err != nil {
			return err
		}
		codec = c
	}

	info, err := os.Stat(args[0])
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", args[0])
	}

	in.path = args[0]
	in.codec = codec
	fmt.Fprintf(out, "Opened %s (%d bytes, compression %s)\n", in.path, info.Size(), in.codec)
	return nil
}

// each calls fn for every record until fn returns false.
func (in *inspector) each(fn func(line int, p record.Person) bool) error {
	if in.path == "" {
		return errNoFile
	}
	r, err := recordio.Open(in.path, in.format.Decode, recordio.WithCompression(in.codec))
	if err != nil {
		return err
	}
	defer r.Close()

	for r.Next() {
		if err := in.ctx.Err(); err != nil {
			return err
		}
		if !fn(r.Line(), r.Record()) {
			return nil
		}
	}
	return r.Err()
}

func (in *inspector) head(args []string, out io.Writer) error {
	n := defaultHeadRows
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid row count %q", args[0])
		}
		n = v
	}
	if n == 0 {
		return nil
	}

	printed := 0
	return in.each(func(_ int, p record.Person) bool {
		fmt.Fprintln(out, in.format.Encode(p))
		printed++
		return printed < n
	})
}

func (in *inspector) count(out io.Writer) error {
	var n int64
	if err := in.each(func(int, record.Person) bool {
		n++
		return true
	}); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d records\n", n)
	return nil
}

func (in *inspector) check(out io.Writer) error {
	if in.path == "" {
		return errNoFile
	}
	sum, err := verify.Fingerprint(in.ctx, in.path, in.format, recordio.WithCompression(in.codec))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, sum)
	return nil
}

func (in *inspector) find(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("missing id argument")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}

	found := 0
	if err := in.each(func(line int, p record.Person) bool {
		if p.ID == id {
			fmt.Fprintf(out, "%d: %s\n", line, in.format.Encode(p))
			found++
		}
		return true
	}); err != nil {
		return err
	}
	if found == 0 {
		fmt.Fprintf(out, "No record with ID %d\n", id)
	}
	return nil
}

// runInspect starts the interactive shell, opening args[0] when given.
func runInspect(ctx context.Context, base *config.Config, args []string, stdout io.Writer) error {
	in := newInspector(ctx, base.Compression)
	fmt.Fprintln(stdout, "chunksort inspect")
	fmt.Fprintln(stdout, "Enter .help for usage hints.")
	if len(args) > 0 {
		in.execute(".open "+strings.Join(args, " "), stdout)
	}

	historyFile := filepath.Join(os.TempDir(), ".chunksort_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          in.prompt(),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
		Stdout:          stdout,
	})
	if err != nil {
		return fmt.Errorf("error initializing readline: %w", err)
	}
	defer rl.Close()

	for {
		rl.SetPrompt(in.prompt())

		line, readErr := rl.Readline()
		if readErr != nil {
			if errors.Is(readErr, readline.ErrInterrupt) {
				if len(line) == 0 {
					return nil
				}
				continue
			}
			if errors.Is(readErr, io.EOF) {
				fmt.Fprintln(stdout, "Goodbye!")
				return nil
			}
			return readErr
		}

		if in.execute(line, stdout) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

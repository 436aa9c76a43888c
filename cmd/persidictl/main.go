// Command persidictl is a thin inspector over a FileDirBackend tree: get,
// set, etag, ls, and rm, operating on raw bytes so it never needs to know
// a value's real type.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	pd "github.com/unkn0wn-root/persidict"
	"github.com/unkn0wn-root/persidict/backend/filedir"
	"github.com/unkn0wn-root/persidict/codec"
)

func usage() {
	fmt.Fprintf(os.Stderr, `persidictl -dir DIR <command> [args]

Commands:
  get KEY          print the value stored at KEY
  set KEY VALUE    write VALUE (read from args, or "-" for stdin) at KEY
  etag KEY         print the current ETag for KEY
  ls [PREFIX]      list keys under PREFIX (default: root)
  rm KEY           delete KEY

KEY is a slash-separated path, e.g. "users/42/profile".
`)
	os.Exit(2)
}

func main() {
	dir := flag.String("dir", "", "base directory backing the store")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if *dir == "" || len(args) < 1 {
		usage()
	}

	be, err := filedir.New[[]byte](pd.Config[[]byte]{}, *dir, codec.Bytes{})
	if err != nil {
		fatal(err)
	}

	ctx := context.Background()
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "get":
		runGet(ctx, be, rest)
	case "set":
		runSet(ctx, be, rest)
	case "etag":
		runEtag(ctx, be, rest)
	case "ls":
		runLs(ctx, be, rest)
	case "rm":
		runRm(ctx, be, rest)
	default:
		usage()
	}
}

func keyFromArg(s string) pd.SafeKey {
	parts := strings.Split(s, "/")
	k, err := pd.NewSafeKey(parts...)
	if err != nil {
		fatal(err)
	}
	return k
}

func runGet(ctx context.Context, be *filedir.Backend[[]byte], args []string) {
	if len(args) != 1 {
		usage()
	}
	v, err := be.Get(ctx, keyFromArg(args[0]))
	if err != nil {
		fatal(err)
	}
	os.Stdout.Write(v)
}

func runSet(ctx context.Context, be *filedir.Backend[[]byte], args []string) {
	if len(args) != 2 {
		usage()
	}
	var payload []byte
	if args[1] == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			fatal(err)
		}
		payload = b
	} else {
		payload = []byte(args[1])
	}
	if err := be.Set(ctx, keyFromArg(args[0]), pd.RealInput(payload)); err != nil {
		fatal(err)
	}
}

func runEtag(ctx context.Context, be *filedir.Backend[[]byte], args []string) {
	if len(args) != 1 {
		usage()
	}
	tag, err := be.Etag(ctx, keyFromArg(args[0]))
	if err != nil {
		fatal(err)
	}
	fmt.Println(tag)
}

func runLs(ctx context.Context, be *filedir.Backend[[]byte], args []string) {
	var d pd.PersiDict[[]byte] = be
	if len(args) == 1 {
		sub, err := be.GetSubdict(ctx, keyFromArg(args[0]))
		if err != nil {
			fatal(err)
		}
		d = sub
	}
	keys, err := d.Keys(ctx)
	if err != nil {
		fatal(err)
	}
	for _, k := range keys {
		fmt.Println(k.String())
	}
}

func runRm(ctx context.Context, be *filedir.Backend[[]byte], args []string) {
	if len(args) != 1 {
		usage()
	}
	removed, err := be.Discard(ctx, keyFromArg(args[0]))
	if err != nil {
		fatal(err)
	}
	if !removed {
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "persidictl:", err)
	os.Exit(1)
}

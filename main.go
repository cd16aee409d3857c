package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"xu/lexer"
	"xu/parser"
	"xu/runtime"
)

// frontend is the concrete Frontend capability the runtime calls for
// the entry module and for every `use` statement: lex, parse, compile.
type frontend struct{}

func (frontend) Compile(path, source string) (*runtime.Program, *runtime.Error) {
	tokens := lexer.Tokenize(source)
	p := parser.New(tokens)
	program, err := p.ParseProgram()
	if err != nil {
		return nil, err
	}
	return runtime.NewCompiler().Compile(program)
}

// fsLoader resolves import keys against the filesystem, reporting the
// canonical path and an mtime for staleness detection.
type fsLoader struct{}

func (fsLoader) Resolve(key, baseDir string) (string, string, int64, *runtime.Error) {
	path := key
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, key)
	}
	if filepath.Ext(path) == "" {
		path += ".xu"
	}
	canon, err := filepath.Abs(path)
	if err != nil {
		canon = path
	}
	info, err := os.Stat(canon)
	if err != nil {
		return "", "", 0, runtime.NewError(runtime.DiagModuleNotFound, fmt.Sprintf("cannot resolve module '%s'", key))
	}
	data, err := os.ReadFile(canon)
	if err != nil {
		return "", "", 0, runtime.NewError(runtime.DiagFileNotFound, err.Error())
	}
	return canon, string(data), info.ModTime().UnixNano(), nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: xu <filename.xu>")
		os.Exit(1)
	}

	filename := os.Args[1]
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".xu" && ext != ".dy" && ext != ".dx" {
		fmt.Fprintf(os.Stderr, "Error: only .xu, .dy and .dx files are supported (got %s)\n", ext)
		os.Exit(1)
	}

	source, readErr := os.ReadFile(filename)
	if readErr != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", readErr)
		os.Exit(1)
	}

	rt := runtime.NewRuntime()
	rt.SetFrontend(frontend{})
	rt.SetModuleLoader(fsLoader{})
	rt.SetEntryPath(filename)
	rt.SetArgs(os.Args[2:])
	if stdlib := os.Getenv("XU_STDLIB"); stdlib != "" {
		rt.SetStdlibPath(stdlib)
	}

	_, rerr := rt.ExecExecutable(string(source))
	fmt.Print(rt.TakeOutput())
	if rerr != nil {
		fmt.Fprintln(os.Stderr, rerr.Error())
		os.Exit(1)
	}
}

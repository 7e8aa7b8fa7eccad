package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dataflow/internal/compiler"
	"github.com/roach88/dataflow/internal/fusion"
	"github.com/roach88/dataflow/internal/ir"
)

// LoadMode chooses between stopping at the first bad function and
// reporting all of them.
type LoadMode int

const (
	LoadModeFailFast LoadMode = iota
	LoadModeCollectAll
)

// LoadResult holds the functions compiled from a program directory, in
// declaration order.
type LoadResult struct {
	Funcs     []*ir.Func
	FileCount int
}

// LoadError is a coded failure to turn a program directory into IR. Pos
// is set when the failure points at CUE source.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if !e.Pos.IsValid() {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
}

func loadFailure(code, format string, args ...any) []error {
	return []error{&LoadError{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// LoadPrograms builds the CUE package in dir and compiles every function
// declared under its func field.
func LoadPrograms(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return nil, loadFailure(ErrCodeNotFound, "programs directory not found: %s", dir)
	case err != nil:
		return nil, loadFailure(ErrCodeNotFound, "cannot access programs directory: %v", err)
	case !info.IsDir():
		return nil, loadFailure(ErrCodeNotFound, "not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, loadFailure(ErrCodeScanError, "scanning %s: %v", dir, err)
	}
	if len(files) == 0 {
		return nil, loadFailure(ErrCodeNoFiles, "no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, loadFailure(ErrCodeLoadFailed, "no CUE package in %s", dir)
	}
	if err := instances[0].Err; err != nil {
		return nil, loadFailure(ErrCodeLoadFailed, "loading CUE files: %v", err)
	}
	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, loadFailure(ErrCodeBuildFailed, "building CUE value: %v", err)
	}

	result := &LoadResult{FileCount: len(files)}
	errs := compileFuncs(value.LookupPath(cue.ParsePath("func")), mode, result)
	if len(result.Funcs) == 0 && len(errs) == 0 {
		errs = loadFailure(ErrCodeNoFuncs, "no functions found in programs")
	}
	return result, errs
}

func compileFuncs(funcs cue.Value, mode LoadMode, result *LoadResult) []error {
	if !funcs.Exists() {
		return nil
	}
	iter, err := funcs.Fields()
	if err != nil {
		return loadFailure(ErrCodeGeneric, "iterating functions: %v", err)
	}

	var errs []error
	for iter.Next() {
		fn, err := compiler.CompileFunc(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "func."+iter.Label()))
			if mode == LoadModeFailFast {
				break
			}
			continue
		}
		result.Funcs = append(result.Funcs, fn)
	}
	return errs
}

// loadFusionConfig reads the pass configuration at path, or returns the
// default configuration when path is empty.
func loadFusionConfig(path string) (fusion.Config, *LoadError) {
	if path == "" {
		return fusion.DefaultConfig(), nil
	}
	cfg, err := fusion.LoadConfig(path)
	if err != nil {
		return fusion.Config{}, &LoadError{Code: ErrCodeConfig, Message: err.Error()}
	}
	return cfg, nil
}

// asLoadError returns err as a LoadError, coding unknown errors E001.
func asLoadError(err error) *LoadError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// SelectFunc narrows funcs to the one named name. An empty name keeps
// every function.
func SelectFunc(funcs []*ir.Func, name string) ([]*ir.Func, error) {
	if name == "" {
		return funcs, nil
	}
	for _, fn := range funcs {
		if fn.Name == name {
			return []*ir.Func{fn}, nil
		}
	}
	return nil, &LoadError{Code: ErrCodeFunc, Message: fmt.Sprintf("function %q not found", name)}
}

// FindCUEFiles lists the .cue files under dir, recursively.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}
		return err
	})
	return files, err
}

// convertCompileError attaches the error code of the failing field to a
// compiler error. context names the function being compiled.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if !errors.As(err, &compileErr) {
		return &LoadError{Code: ErrCodeGeneric, Message: context + ": " + err.Error()}
	}
	return &LoadError{
		Code:    MapFieldToErrorCode(compileErr.Field),
		Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
		Pos:     compileErr.Pos,
	}
}

// Error codes shared by all commands. E1xx codes come from
// compiler.Validate and are reported as-is.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004" // cue/load rejected the package
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006" // CUE evaluation error
	ErrCodeWriteFailed = "E007"
	ErrCodeConfig      = "E008" // unreadable or invalid fusion config
	ErrCodeNoFuncs     = "E009"

	// Program compile errors
	ErrCodeFunc      = "E201" // Missing or unnamed function
	ErrCodeArgs      = "E202" // Invalid argument list
	ErrCodeOp        = "E203" // Invalid operation kind or results
	ErrCodeUndefined = "E204" // Operand or return names an undefined value
	ErrCodeAttrs     = "E205" // Invalid attribute
	ErrCodeReturn    = "E206" // Missing return

	// Pass output errors
	ErrCodeCyclicCapture = "E301" // Task nodes capture each other's results
)

// MapFieldToErrorCode maps a compiler error field to an error code.
// Fields are paths such as "args[0].name" or "ops[2].operands[1]".
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "func":
		return ErrCodeFunc
	case field == "return":
		return ErrCodeReturn
	case strings.HasPrefix(field, "args"):
		return ErrCodeArgs
	case strings.HasPrefix(field, "return["), strings.Contains(field, ".operands"):
		return ErrCodeUndefined
	case strings.Contains(field, ".attrs"):
		return ErrCodeAttrs
	case strings.HasPrefix(field, "ops"):
		return ErrCodeOp
	default:
		return ErrCodeGeneric
	}
}

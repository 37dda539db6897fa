package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fusion/internal/compiler"
)

// LoadMode controls how errors are handled during config loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading a config directory.
type LoadResult struct {
	Bundle    *compiler.Bundle
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during config loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the error's source line, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadConfig loads and compiles the CUE config in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, every rule is compiled and all errors are
// returned. Compiled-but-invalid content is not checked here; callers run
// Bundle.Validate.
func LoadConfig(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	value, err := compiler.BuildDir(dir)
	if err != nil {
		return nil, []error{convertCompileError(err, ErrCodeLoadFailed)}
	}

	result := &LoadResult{
		Bundle:    &compiler.Bundle{Config: compiler.DefaultConfigSpec()},
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	if cfgVal := value.LookupPath(cue.ParsePath("config")); cfgVal.Exists() {
		cfg, err := compiler.CompileConfig(cfgVal)
		if err != nil {
			errs = append(errs, convertCompileError(err, ErrCodeGeneric))
			if mode == LoadModeFailFast {
				return result, errs
			}
		} else {
			result.Bundle.Config = cfg
		}
	}

	if rulesVal := value.LookupPath(cue.ParsePath("rule")); rulesVal.Exists() {
		iter, iterErr := rulesVal.Fields()
		if iterErr != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating rules: %v", iterErr)})
			return result, errs
		}
		for iter.Next() {
			spec, err := compiler.CompileRule(iter.Label(), iter.Value())
			if err != nil {
				errs = append(errs, convertCompileError(err, ErrCodeGeneric))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Bundle.Rules = append(result.Bundle.Rules, spec)
		}
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position
// info. fallback is the code used for errors without a compiler field.
func convertCompileError(err error, fallback string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    fallback,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
// Semantic validation codes (E1xx) come from the compiler package.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Directory scan error
	ErrCodeNoFiles      = "E003" // No CUE files found
	ErrCodeLoadFailed   = "E004" // CUE load failed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE build failed
	ErrCodeWriteFailed  = "E007" // File or database write error
	ErrCodeInvalidValue = "E008" // Field has the wrong CUE kind (e.g., float)
	ErrCodeBadEvents    = "E009" // Malformed events input
	ErrCodeStore        = "E010" // Session database error
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case strings.HasSuffix(field, ".fuser"):
		return compiler.ErrUnknownFuser
	case strings.HasSuffix(field, ".input_types"):
		return compiler.ErrUnknownInputType
	case strings.HasPrefix(field, "default_priority."):
		return compiler.ErrPriorityUnknownType
	case field != "":
		return ErrCodeInvalidValue
	default:
		return ErrCodeGeneric
	}
}

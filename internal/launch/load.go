package launch

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource []byte

const schemaFile = "schema.cue"

// Error codes reported by LoadError.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeSchema      = "E007" // Schema violation

	ErrCodeNoNodes         = "E201" // No nodes
	ErrCodeInvalidName     = "E202" // Invalid node, namespace or topic name
	ErrCodeInvalidDuration = "E203" // Unparseable or non-positive duration
	ErrCodeUnknownRef      = "E204" // Reference to an undefined group or publisher
	ErrCodeInvalidGroup    = "E205" // Invalid callback group
	ErrCodeInvalidExecutor = "E206" // Invalid executor settings
	ErrCodeInvalidQoS      = "E207" // Unknown QoS profile
)

// LoadError is a launch description error with its CUE position when
// known.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	field := ""
	if e.Field != "" {
		field = e.Field + ": "
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s%s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, field, e.Message)
	}
	return fmt.Sprintf("%s: %s%s", e.Code, field, e.Message)
}

// Errors collects every problem found in a description.
type Errors []*LoadError

func (errs Errors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// LoadFile loads a launch description from a .cue file or from a directory
// holding a CUE package.
func LoadFile(path string) (*Description, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("launch file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing launch file: %v", err)}
	}
	if info.IsDir() {
		return loadDir(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading launch file: %v", err)}
	}
	return LoadBytes(path, src)
}

// LoadBytes loads a launch description from CUE (or JSON) source. name is
// used in error positions.
func LoadBytes(name string, src []byte) (*Description, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, fromCUEError(ErrCodeBuildFailed, err)
	}
	return decode(ctx, v, name)
}

func loadDir(dir string) (*Description, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(matches) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, fromCUEError(ErrCodeBuildFailed, err)
	}
	return decode(ctx, v, dir)
}

// decode unifies v with the schema, fills in defaults and checks the
// result.
func decode(ctx *cue.Context, v cue.Value, source string) (*Description, error) {
	schema := ctx.CompileBytes(schemaSource, cue.Filename(schemaFile))
	if err := schema.Err(); err != nil {
		return nil, fromCUEError(ErrCodeBuildFailed, err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Launch")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUEError(ErrCodeSchema, err)
	}

	var desc Description
	if err := unified.Decode(&desc); err != nil {
		return nil, fromCUEError(ErrCodeSchema, err)
	}
	desc.Source = source
	if errs := Check(&desc); len(errs) > 0 {
		return nil, errs
	}
	return &desc, nil
}

// fromCUEError converts every error in a CUE error list, keeping positions.
func fromCUEError(code string, err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	out := make(Errors, 0, len(list))
	for _, e := range list {
		le := &LoadError{
			Code:    code,
			Field:   strings.Join(e.Path(), "."),
			Message: cueMessage(e),
		}
		le.Pos = userPos(cueerrors.Positions(e))
		out = append(out, le)
	}
	return out
}

// userPos prefers a position in the launch source over one in the schema.
func userPos(positions []token.Pos) token.Pos {
	for _, p := range positions {
		if p.Filename() != schemaFile {
			return p
		}
	}
	if len(positions) > 0 {
		return positions[0]
	}
	return token.NoPos
}

// cueMessage formats e without the path prefix CUE adds.
func cueMessage(e cueerrors.Error) string {
	format, args := e.Msg()
	return fmt.Sprintf(format, args...)
}

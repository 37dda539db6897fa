package compiler

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// BuildDir loads the CUE files in dir as one instance and builds it.
func BuildDir(dir string) (cue.Value, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return value, nil
}

// LoadDir builds dir and compiles it into a validated Bundle. Validation
// errors are joined into one error.
func LoadDir(dir string) (*Bundle, error) {
	value, err := BuildDir(dir)
	if err != nil {
		return nil, err
	}
	b, err := CompileBundle(value)
	if err != nil {
		return nil, err
	}
	if verrs := b.Validate(); len(verrs) > 0 {
		return nil, joinValidation(verrs)
	}
	return b, nil
}

func joinValidation(verrs []ValidationError) error {
	errs := make([]error, len(verrs))
	for i, v := range verrs {
		errs[i] = v
	}
	return errors.Join(errs...)
}

package workflow

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/cartograph-dev/cartograph/taskerror"
)

var (
	validateOnce  sync.Once
	validatorInst *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validatorInst = validator.New(validator.WithRequiredStructEnabled())
	})
	return validatorInst
}

// DecodeArgs decodes the opaque task-argument map into dest (a pointer to a
// struct tagged with `json` and `validate` tags) and runs struct-tag
// validation. Both decode and validation failures are reported as a
// validation error at step "validate", so missing or invalid workflow args
// surface as a failed task rather than an uncaught exception.
func DecodeArgs(args map[string]any, dest any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return taskerror.Validation("validate", "encode args: %s", err)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return taskerror.Validation("validate", "decode args: %s", err)
	}
	if err := validatorInstance().Struct(dest); err != nil {
		return taskerror.Validation("validate", "%s", err)
	}
	return nil
}

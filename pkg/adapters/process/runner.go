// Package process runs transform operations as local processes.
//
// The input array is written to the command's stdin in the raster codec and
// the output array is read back from its stdout in the same format. Parameters
// travel as environment variables (STRATA_PARAM_<NAME>) and as one JSON
// document in STRATA_PARAMS, never as command-line flags.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/aretw0/strata/pkg/registry"
)

var paramsValidate = validator.New()

// Option configures how commands run.
type Option func(*options)

type options struct {
	baseDir string
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// Register adds every configured operation to reg. Only the listed commands
// can ever run.
func Register(reg *registry.Registry, ops map[string]ProcessConfig, opts ...Option) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	for name, cfg := range ops {
		reg.Register(name, operation(cfg, o))
	}
}

func operation(cfg ProcessConfig, o options) registry.OpFunc {
	return func(ctx context.Context, in *raster.Array, op domain.Operation) (*raster.Array, error) {
		if err := checkParams(cfg, op.Params); err != nil {
			return nil, err
		}

		var stdin bytes.Buffer
		if err := raster.Encode(&stdin, in); err != nil {
			return nil, fmt.Errorf("failed to encode input for %s: %w", cfg.Name, err)
		}

		env, err := paramEnv(op)
		if err != nil {
			return nil, err
		}
		for k, v := range cfg.Environment {
			env = append(env, k+"="+v)
		}

		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		cmd.Dir = o.baseDir
		cmd.Env = append(cmd.Environ(), env...)
		cmd.Stdin = &stdin

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", domain.ErrExecutorUnavailable, cfg.Name, ctx.Err())
			}
			return nil, fmt.Errorf("operation %s failed: %v: %s", cfg.Name, err, strings.TrimSpace(stderr.String()))
		}

		out, err := raster.Decode(&stdout)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidExecutorResponse, cfg.Name, err)
		}
		return out, nil
	}
}

func paramEnv(op domain.Operation) ([]string, error) {
	doc, err := json.Marshal(op.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidParameters, op.Name, err)
	}
	env := []string{"STRATA_OP=" + op.Name, "STRATA_PARAMS=" + string(doc)}
	for k, v := range op.Params {
		var val string
		switch v.(type) {
		case string, int, int64, float32, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidParameters, k, err)
			}
			val = string(b)
		}
		env = append(env, fmt.Sprintf("STRATA_PARAM_%s=%s", strings.ToUpper(k), val))
	}
	return env, nil
}

// checkParams applies the configured validator tags to params.
func checkParams(cfg ProcessConfig, params map[string]any) error {
	if len(cfg.Params) == 0 {
		return nil
	}
	rules := make(map[string]any, len(cfg.Params))
	for name, tag := range cfg.Params {
		rules[name] = tag
	}
	if params == nil {
		params = map[string]any{}
	}
	failed := paramsValidate.ValidateMap(params, rules)
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, fmt.Sprintf("%s: %v", name, failed[name]))
	}
	return fmt.Errorf("%w: %s: %s", domain.ErrInvalidParameters, cfg.Name, strings.Join(msgs, "; "))
}

package registry

import (
	"context"
	"fmt"
	"math"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/raster"
)

// Names of the operations that exist only in the local executor.
const (
	OpIdentity = "identity"
	OpInvert   = "invert"
)

// Builtin returns a registry holding the operations implemented in-process.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(OpIdentity, identity)
	r.Register(OpInvert, invert)
	r.Register(domain.OpBlur, blur)
	return r
}

func identity(_ context.Context, in *raster.Array, _ domain.Operation) (*raster.Array, error) {
	return in.Clone(), nil
}

// invert mirrors every element within the array's own value range.
func invert(_ context.Context, in *raster.Array, _ domain.Operation) (*raster.Array, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	n := in.Len()
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		v := in.At(i)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := in.Clone()
	for i := 0; i < n; i++ {
		out.Set(i, lo+hi-in.At(i))
	}
	return out, nil
}

func blurParams(op domain.Operation) (*domain.BlurParams, error) {
	if p, ok := op.Typed.(*domain.BlurParams); ok {
		return p, nil
	}
	parsed, err := domain.ParseOperation(op.Name, op.Params)
	if err != nil {
		return nil, err
	}
	return parsed.Typed.(*domain.BlurParams), nil
}

// kernel returns normalized 1-D weights of length 2*radius+1.
func kernel(p *domain.BlurParams) []float64 {
	k := make([]float64, 2*p.Radius+1)
	sigma := p.Sigma
	if sigma == 0 {
		sigma = float64(p.Radius) / 2
	}
	var sum float64
	for i := range k {
		x := float64(i - p.Radius)
		w := 1.0
		if p.Kernel == "gaussian" {
			w = math.Exp(-x * x / (2 * sigma * sigma))
		}
		k[i] = w
		sum += w
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// blur applies a separable smoothing filter per channel. Edges are clamped.
func blur(ctx context.Context, in *raster.Array, op domain.Operation) (*raster.Array, error) {
	p, err := blurParams(op)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	h, w, c, err := in.Dims()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
	}
	k := kernel(p)
	r := p.Radius

	clamp := func(v, n int) int {
		if v < 0 {
			return 0
		}
		if v >= n {
			return n - 1
		}
		return v
	}

	tmp := make([]float64, h*w*c)
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				var acc float64
				for i, wt := range k {
					acc += wt * in.At((y*w+clamp(x+i-r, w))*c+ch)
				}
				tmp[(y*w+x)*c+ch] = acc
			}
		}
	}

	out := in.Clone()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				var acc float64
				for i, wt := range k {
					acc += wt * tmp[(clamp(y+i-r, h)*w+x)*c+ch]
				}
				if out.DType != raster.Float32 && out.DType != raster.Float64 {
					acc = math.Round(acc)
				}
				out.Set((y*w+x)*c+ch, acc)
			}
		}
	}
	return out, nil
}

package autodiff

import (
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/born-ml/gradtape/internal/tensor"
	"gonum.org/v1/gonum/floats/scalar"
)

// GradcheckConfig controls numeric gradient checking.
type GradcheckConfig struct {
	// Samples is the number of entries checked per array leaf, taken in
	// order of decreasing analytic gradient magnitude. Zero or less checks
	// every entry.
	Samples int

	// Delta is the perturbation step. Zero selects cbrt(eps) of the leaf's
	// element type.
	Delta float64

	// Atol and Rtol are the tolerances of the comparison. Zero selects
	// cbrt(eps) of the leaf's element type.
	Atol float64
	Rtol float64

	// Verbose logs every mismatch at level 0 instead of level 2.
	Verbose bool

	// Seed drives the random projection used for non-scalar outputs.
	Seed uint64
}

// DefaultGradcheckConfig returns the standard gradcheck configuration.
func DefaultGradcheckConfig() GradcheckConfig {
	return GradcheckConfig{Samples: 10, Seed: 1}
}

var (
	cbrtEps32 = math.Cbrt(float64(math.Nextafter32(1, 2) - 1))
	cbrtEps64 = math.Cbrt(math.Nextafter(1, 2) - 1)
)

// Gradcheck compares the gradient of f with respect to w against central
// differences. x are passed to f unchanged. A function returning an array
// with more than one element is checked through sum(f(w) * r) for a fixed
// random r. It reports false if any checked entry is out of tolerance.
func (e *Engine) Gradcheck(f Func, cfg GradcheckConfig, w Value, x ...Value) (bool, error) {
	args := append([]Value{GetVal(w)}, x...)

	scalarF, err := e.scalarize(f, cfg, args)
	if err != nil {
		return false, err
	}
	grad, _, err := e.GradLoss(scalarF, 0)(args...)
	if err != nil {
		return false, err
	}

	eval := func(nw Value) (float64, error) {
		callArgs := slices.Clone(args)
		callArgs[0] = nw
		y, err := scalarF(callArgs...)
		if err != nil {
			return 0, err
		}
		return ScalarValue(y)
	}

	ok := true
	var checked int
	var walkErr error
	walkLeaves(args[0], nil, func(path []pathStep, leaf Value) {
		if walkErr != nil {
			return
		}
		g := leafAt(grad, path)
		var good bool
		var n int
		good, n, walkErr = e.checkLeaf(cfg, args[0], path, leaf, g, eval)
		checked += n
		ok = ok && good
	})
	if walkErr != nil {
		return false, walkErr
	}
	e.log.V(2).Info("gradcheck done", "checked", checked, "ok", ok)
	return ok, nil
}

// scalarize returns f unchanged when its output is a scalar, otherwise a
// function projecting the output onto a random array.
func (e *Engine) scalarize(f Func, cfg GradcheckConfig, args []Value) (Func, error) {
	y, err := f(args...)
	if err != nil {
		return nil, err
	}
	arr, isArray := GetVal(y).(Array)
	if !isArray || arr.T.NumElements() == 1 {
		return f, nil
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	vals := make([]float64, arr.T.NumElements())
	for i := range vals {
		vals[i] = rng.NormFloat64()
	}
	r, err := tensor.FromFloat64s(arr.T.Context(), vals, arr.T.Shape(), arr.T.DType())
	if err != nil {
		return nil, err
	}
	proj := Array{T: r}
	return func(args ...Value) (Value, error) {
		y, err := f(args...)
		if err != nil {
			return nil, err
		}
		p, err := e.Mul(y, proj)
		if err != nil {
			return nil, err
		}
		return e.Sum(p)
	}, nil
}

func (e *Engine) checkLeaf(
	cfg GradcheckConfig,
	w Value,
	path []pathStep,
	leaf, g Value,
	eval func(Value) (float64, error),
) (ok bool, checked int, err error) {
	switch lv := leaf.(type) {
	case Scalar:
		delta, atol, rtol := cfg.tolerances(cbrtEps64)
		analytic, err := ScalarValue(g)
		if err != nil {
			return false, 0, err
		}
		fp, err := eval(replaceLeaf(w, path, lv+Scalar(delta)))
		if err != nil {
			return false, 0, err
		}
		fm, err := eval(replaceLeaf(w, path, lv-Scalar(delta)))
		if err != nil {
			return false, 0, err
		}
		numeric := (fp - fm) / (2 * delta)
		ok = scalar.EqualWithinAbsOrRel(analytic, numeric, atol, rtol)
		if !ok {
			e.reportMismatch(cfg, path, 0, analytic, numeric)
		}
		return ok, 1, nil

	case Array:
		dtype := lv.T.DType()
		if !dtype.IsFloat() {
			return true, 0, nil
		}
		eps := cbrtEps64
		if dtype == tensor.Float32 {
			eps = cbrtEps32
		}
		delta, atol, rtol := cfg.tolerances(eps)

		vals, err := lv.T.Float64s()
		if err != nil {
			return false, 0, err
		}
		gvals, err := g.(Array).T.Float64s()
		if err != nil {
			return false, 0, err
		}
		order := make([]int, len(vals))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			return -cmpFloat(math.Abs(gvals[a]), math.Abs(gvals[b]))
		})
		if cfg.Samples > 0 && cfg.Samples < len(order) {
			order = order[:cfg.Samples]
		}

		ok = true
		perturbed := slices.Clone(vals)
		for _, i := range order {
			at := func(v float64) (float64, error) {
				perturbed[i] = v
				defer func() { perturbed[i] = vals[i] }()
				t, err := tensor.FromFloat64s(lv.T.Context(), perturbed, lv.T.Shape(), dtype)
				if err != nil {
					return 0, err
				}
				defer t.Release()
				return eval(replaceLeaf(w, path, Array{T: t}))
			}
			fp, err := at(vals[i] + delta)
			if err != nil {
				return false, checked, err
			}
			fm, err := at(vals[i] - delta)
			if err != nil {
				return false, checked, err
			}
			numeric := (fp - fm) / (2 * delta)
			checked++
			if !scalar.EqualWithinAbsOrRel(gvals[i], numeric, atol, rtol) {
				ok = false
				e.reportMismatch(cfg, path, i, gvals[i], numeric)
			}
		}
		return ok, checked, nil

	default:
		return true, 0, nil
	}
}

func (cfg GradcheckConfig) tolerances(eps float64) (delta, atol, rtol float64) {
	delta, atol, rtol = cfg.Delta, cfg.Atol, cfg.Rtol
	if delta == 0 {
		delta = eps
	}
	if atol == 0 {
		atol = eps
	}
	if rtol == 0 {
		rtol = eps
	}
	return delta, atol, rtol
}

func (e *Engine) reportMismatch(cfg GradcheckConfig, path []pathStep, index int, analytic, numeric float64) {
	log := e.log.V(2)
	if cfg.Verbose {
		log = e.log.V(0)
	}
	log.Info("gradient mismatch", "leaf", formatPath(path), "index", index,
		"analytic", analytic, "numeric", numeric)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// pathStep addresses one level of a Tuple (index) or Dict (key).
type pathStep struct {
	index int
	key   string
	dict  bool
}

func formatPath(path []pathStep) string {
	if len(path) == 0 {
		return "w"
	}
	var sb strings.Builder
	sb.WriteString("w")
	for _, p := range path {
		if p.dict {
			fmt.Fprintf(&sb, "[%q]", p.key)
		} else {
			fmt.Fprintf(&sb, "[%d]", p.index)
		}
	}
	return sb.String()
}

// walkLeaves calls fn for every Scalar and Array inside v, visiting dict
// keys in sorted order.
func walkLeaves(v Value, path []pathStep, fn func([]pathStep, Value)) {
	switch x := v.(type) {
	case Tuple:
		for i, e := range x {
			walkLeaves(e, append(slices.Clip(path), pathStep{index: i}), fn)
		}
	case Dict:
		for _, k := range slices.Sorted(maps.Keys(x)) {
			walkLeaves(x[k], append(slices.Clip(path), pathStep{key: k, dict: true}), fn)
		}
	default:
		fn(path, v)
	}
}

func leafAt(v Value, path []pathStep) Value {
	for _, p := range path {
		if p.dict {
			v = v.(Dict)[p.key]
		} else {
			v = v.(Tuple)[p.index]
		}
	}
	return v
}

// replaceLeaf returns a copy of v with the leaf at path set to nv. Containers
// along the path are copied, everything else is shared.
func replaceLeaf(v Value, path []pathStep, nv Value) Value {
	if len(path) == 0 {
		return nv
	}
	p := path[0]
	if p.dict {
		d := maps.Clone(v.(Dict))
		d[p.key] = replaceLeaf(d[p.key], path[1:], nv)
		return d
	}
	t := slices.Clone(v.(Tuple))
	t[p.index] = replaceLeaf(t[p.index], path[1:], nv)
	return t
}

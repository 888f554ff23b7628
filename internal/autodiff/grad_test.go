package autodiff_test

import (
	"testing"

	"github.com/born-ml/gradtape/internal/autodiff"
	"github.com/born-ml/gradtape/internal/autodiff/prims"
	"github.com/born-ml/gradtape/internal/memory"
	"github.com/born-ml/gradtape/internal/tensor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*tensor.Context, *autodiff.Engine) {
	t.Helper()
	ctx := tensor.NewSimContext(0, memory.DefaultConfig())
	return ctx, autodiff.New(prims.NewRegistry(), autodiff.DefaultConfig())
}

func array(t *testing.T, ctx *tensor.Context, vals []float64, shape ...int) autodiff.Array {
	t.Helper()
	x, err := tensor.FromFloat64s(ctx, vals, shape, tensor.Float64)
	require.NoError(t, err)
	return autodiff.Array{T: x}
}

func valuesOf(t *testing.T, v autodiff.Value) []float64 {
	t.Helper()
	a, ok := v.(autodiff.Array)
	require.True(t, ok, "expected array, got %T", v)
	vals, err := a.T.Float64s()
	require.NoError(t, err)
	return vals
}

func TestGrad_SquaredError(t *testing.T) {
	ctx, eng := newEngine(t)

	// sum((w*x - y)^2) at w=2, x=3, y=5 has gradient 2*(w*x-y)*x = 6.
	loss := func(args ...autodiff.Value) (autodiff.Value, error) {
		wx, err := eng.Mul(args[0], args[1])
		if err != nil {
			return nil, err
		}
		d, err := eng.Sub(wx, args[2])
		if err != nil {
			return nil, err
		}
		sq, err := eng.Pow(d, autodiff.Scalar(2))
		if err != nil {
			return nil, err
		}
		return eng.Sum(sq)
	}

	w := array(t, ctx, []float64{2}, 1)
	x := array(t, ctx, []float64{3}, 1)
	y := array(t, ctx, []float64{5}, 1)

	g, l, err := eng.GradLoss(loss, 0)(w, x, y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{6}, valuesOf(t, g), 1e-12)
	assert.Equal(t, autodiff.Scalar(1), l)
	assert.Equal(t, 0, eng.Depth())

	// Same loss differentiated with respect to y.
	gy, err := eng.Grad(loss, 2)(w, x, y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-2}, valuesOf(t, gy), 1e-12)
}

func TestGrad_DiamondFanIn(t *testing.T) {
	ctx, eng := newEngine(t)

	// c = (2x)(3x) = 6x², dc/dx = 12x.
	f := func(args ...autodiff.Value) (autodiff.Value, error) {
		a, err := eng.Mul(args[0], autodiff.Scalar(2))
		if err != nil {
			return nil, err
		}
		b, err := eng.Mul(args[0], autodiff.Scalar(3))
		if err != nil {
			return nil, err
		}
		c, err := eng.Mul(a, b)
		if err != nil {
			return nil, err
		}
		return eng.Sum(c)
	}
	g, err := eng.Grad(f, 0)(array(t, ctx, []float64{1, 2}, 2))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{12, 24}, valuesOf(t, g), 1e-12)

	twice := func(args ...autodiff.Value) (autodiff.Value, error) {
		return eng.Add(args[0], args[0])
	}
	g, err = eng.Grad(twice, 0)(autodiff.Scalar(5))
	require.NoError(t, err)
	assert.Equal(t, autodiff.Scalar(2), g)
}

func TestGrad_ZeroGradPrimitive(t *testing.T) {
	ctx, eng := newEngine(t)
	x := array(t, ctx, []float64{-2, 0.5, 3}, 3)

	onlySign := func(args ...autodiff.Value) (autodiff.Value, error) {
		s, err := eng.Sign(args[0])
		if err != nil {
			return nil, err
		}
		return eng.Sum(s)
	}
	g, err := eng.Grad(onlySign, 0)(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, valuesOf(t, g))

	plusSign := func(args ...autodiff.Value) (autodiff.Value, error) {
		s, err := eng.Sign(args[0])
		if err != nil {
			return nil, err
		}
		y, err := eng.Add(args[0], s)
		if err != nil {
			return nil, err
		}
		return eng.Sum(y)
	}
	g, err = eng.Grad(plusSign, 0)(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, valuesOf(t, g))
}

func TestGetVal(t *testing.T) {
	_, eng := newEngine(t)

	plain := autodiff.Tuple{autodiff.Scalar(1), autodiff.Dict{"a": autodiff.Scalar(2)}}
	assert.Equal(t, plain, autodiff.GetVal(plain))
	assert.Equal(t, autodiff.GetVal(plain), autodiff.GetVal(autodiff.GetVal(plain)))

	// w * getval(w) only differentiates through the first factor.
	f := func(args ...autodiff.Value) (autodiff.Value, error) {
		_, boxed := args[0].(*autodiff.Box)
		assert.True(t, boxed)
		d := autodiff.GetVal(args[0])
		_, stillBoxed := d.(*autodiff.Box)
		assert.False(t, stillBoxed)
		return eng.Mul(args[0], d)
	}
	g, err := eng.Grad(f, 0)(autodiff.Scalar(3))
	require.NoError(t, err)
	assert.Equal(t, autodiff.Scalar(3), g)
}

func TestGrad_DisconnectedIsZero(t *testing.T) {
	ctx, eng := newEngine(t)

	constant := func(args ...autodiff.Value) (autodiff.Value, error) {
		return eng.Sum(args[1])
	}
	w := array(t, ctx, []float64{1, 2, 3, 4}, 2, 2)
	x := array(t, ctx, []float64{5, 6}, 2)

	g, l, err := eng.GradLoss(constant, 0)(w, x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, g.(autodiff.Array).T.Shape())
	assert.Equal(t, []float64{0, 0, 0, 0}, valuesOf(t, g))
	assert.Equal(t, autodiff.Scalar(11), l)

	g, err = eng.Grad(constant, 0)(autodiff.Tuple{autodiff.Scalar(1), w}, x)
	require.NoError(t, err)
	tup := g.(autodiff.Tuple)
	assert.Equal(t, autodiff.Scalar(0), tup[0])
	assert.Equal(t, []float64{0, 0, 0, 0}, valuesOf(t, tup[1]))
}

func TestGrad_TupleAndDict(t *testing.T) {
	ctx, eng := newEngine(t)

	tupleLoss := func(args ...autodiff.Value) (autodiff.Value, error) {
		p := args[0].(autodiff.Tuple)
		y, err := eng.Mul(p[1], p[0])
		if err != nil {
			return nil, err
		}
		return eng.Sum(y)
	}
	w := autodiff.Tuple{autodiff.Scalar(2), array(t, ctx, []float64{1, 2}, 2)}
	g, err := eng.Grad(tupleLoss, 0)(w)
	require.NoError(t, err)
	gt := g.(autodiff.Tuple)
	assert.Equal(t, autodiff.Scalar(3), gt[0])
	assert.Equal(t, []float64{2, 2}, valuesOf(t, gt[1]))

	dictLoss := func(args ...autodiff.Value) (autodiff.Value, error) {
		p := args[0].(autodiff.Dict)
		return eng.Mul(p["a"], p["b"])
	}
	d := autodiff.Dict{"a": autodiff.Scalar(3), "b": autodiff.Scalar(4), "unused": autodiff.Scalar(1)}
	g, err = eng.Grad(dictLoss, 0)(d)
	require.NoError(t, err)
	assert.Equal(t, autodiff.Dict{
		"a":      autodiff.Scalar(4),
		"b":      autodiff.Scalar(3),
		"unused": autodiff.Scalar(0),
	}, g)
}

func TestGrad_ContainerArgumentPrimitive(t *testing.T) {
	_, eng := newEngine(t)
	reg := eng.Registry()
	require.NoError(t, reg.Register("first", []autodiff.Kind{autodiff.TupleKind},
		func(args ...autodiff.Value) (autodiff.Value, error) {
			return args[0].(autodiff.Tuple)[0], nil
		},
		func(g, _ autodiff.Value, _ ...autodiff.Value) (autodiff.Value, error) {
			return autodiff.Tuple{g, autodiff.Scalar(0)}, nil
		},
	))
	require.NoError(t, reg.Register("pick", []autodiff.Kind{autodiff.DictKind},
		func(args ...autodiff.Value) (autodiff.Value, error) {
			return args[0].(autodiff.Dict)["a"], nil
		},
		func(g, _ autodiff.Value, _ ...autodiff.Value) (autodiff.Value, error) {
			return autodiff.Dict{"a": g}, nil
		},
	))

	first := func(args ...autodiff.Value) (autodiff.Value, error) {
		x, err := eng.Call("first", args[0])
		if err != nil {
			return nil, err
		}
		return eng.Mul(x, autodiff.Scalar(3))
	}
	g, err := eng.Grad(first, 0)(autodiff.Tuple{autodiff.Scalar(2), autodiff.Scalar(5)})
	require.NoError(t, err)
	assert.Equal(t, autodiff.Tuple{autodiff.Scalar(3), autodiff.Scalar(0)}, g)

	// Both uses of the dict reach the same leaf box.
	square := func(args ...autodiff.Value) (autodiff.Value, error) {
		a, err := eng.Call("pick", args[0])
		if err != nil {
			return nil, err
		}
		b, err := eng.Call("pick", args[0])
		if err != nil {
			return nil, err
		}
		return eng.Mul(a, b)
	}
	g, err = eng.Grad(square, 0)(autodiff.Dict{"a": autodiff.Scalar(2), "b": autodiff.Scalar(5)})
	require.NoError(t, err)
	assert.Equal(t, autodiff.Dict{"a": autodiff.Scalar(4), "b": autodiff.Scalar(0)}, g)
	assert.Equal(t, 0, eng.Depth())
}

func TestGrad_AllocationFailureLeavesEngineClean(t *testing.T) {
	ctx := tensor.NewSimContext(200, memory.DefaultConfig())
	eng := autodiff.New(prims.NewRegistry(), autodiff.DefaultConfig())

	chain := func(args ...autodiff.Value) (autodiff.Value, error) {
		y := args[0]
		for range 20 {
			var err error
			if y, err = eng.Exp(y); err != nil {
				return nil, err
			}
		}
		return eng.Sum(y)
	}
	w := array(t, ctx, []float64{0.1, 0.2, 0.3, 0.4}, 4)

	_, err := eng.Grad(chain, 0)(w)
	require.Error(t, err)
	assert.True(t, errors.Is(err, memory.ErrAllocationFailure), "got %v", err)
	assert.Equal(t, 0, eng.Depth())

	// Scalars need no device memory.
	sq := func(args ...autodiff.Value) (autodiff.Value, error) {
		return eng.Mul(args[0], args[0])
	}
	g, err := eng.Grad(sq, 0)(autodiff.Scalar(3))
	require.NoError(t, err)
	assert.Equal(t, autodiff.Scalar(6), g)
}

func TestGrad_NestedTapes(t *testing.T) {
	_, eng := newEngine(t)

	square := func(args ...autodiff.Value) (autodiff.Value, error) {
		return eng.Mul(args[0], args[0])
	}
	// Inside the outer call the inner gradient 2w is a constant, so the
	// outer gradient of w * 2w is 2w rather than 4w.
	outer := func(args ...autodiff.Value) (autodiff.Value, error) {
		assert.Equal(t, 1, eng.Depth())
		inner, err := eng.Grad(square, 0)(args[0])
		if err != nil {
			return nil, err
		}
		_, boxed := inner.(*autodiff.Box)
		assert.False(t, boxed)
		assert.Equal(t, 1, eng.Depth())
		return eng.Mul(args[0], inner)
	}
	g, err := eng.Grad(outer, 0)(autodiff.Scalar(3))
	require.NoError(t, err)
	assert.Equal(t, autodiff.Scalar(6), g)
	assert.Equal(t, 0, eng.Depth())
}

func TestGrad_NonScalarOutput(t *testing.T) {
	ctx, eng := newEngine(t)

	identity := func(args ...autodiff.Value) (autodiff.Value, error) {
		return eng.Mul(args[0], autodiff.Scalar(1))
	}
	_, err := eng.Grad(identity, 0)(array(t, ctx, []float64{1, 2, 3}, 3))
	assert.True(t, errors.Is(err, autodiff.ErrNonScalarOutput))
	assert.Equal(t, 0, eng.Depth())

	// A one-element array is a valid result.
	g, err := eng.Grad(identity, 0)(array(t, ctx, []float64{4}, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, valuesOf(t, g))
}

func TestGrad_NonDifferentiableArgument(t *testing.T) {
	_, eng := newEngine(t)
	sig := []autodiff.Kind{autodiff.ScalarKind, autodiff.ScalarKind}
	require.NoError(t, eng.Registry().Register("scale", sig,
		func(args ...autodiff.Value) (autodiff.Value, error) {
			return args[0].(autodiff.Scalar) * args[1].(autodiff.Scalar), nil
		},
		nil,
		func(g, _ autodiff.Value, args ...autodiff.Value) (autodiff.Value, error) {
			return g.(autodiff.Scalar) * args[0].(autodiff.Scalar), nil
		},
	))

	f := func(args ...autodiff.Value) (autodiff.Value, error) {
		return eng.Call("scale", args[0], args[1])
	}

	// Differentiable in the second argument.
	g, err := eng.Grad(f, 1)(autodiff.Scalar(3), autodiff.Scalar(5))
	require.NoError(t, err)
	assert.Equal(t, autodiff.Scalar(3), g)

	_, err = eng.Grad(f, 0)(autodiff.Scalar(3), autodiff.Scalar(5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, autodiff.ErrNonDifferentiable))
	var opErr *autodiff.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "scale", opErr.Op)
	assert.Equal(t, 0, opErr.Arg)

	// The failed call left no live tape behind.
	assert.Equal(t, 0, eng.Depth())
	g, err = eng.Grad(f, 1)(autodiff.Scalar(2), autodiff.Scalar(5))
	require.NoError(t, err)
	assert.Equal(t, autodiff.Scalar(2), g)
}

func TestGrad_NonConformingBackward(t *testing.T) {
	ctx, eng := newEngine(t)
	require.NoError(t, eng.Registry().Register("bad", []autodiff.Kind{autodiff.ArrayKind},
		func(args ...autodiff.Value) (autodiff.Value, error) {
			s, err := tensor.Sum(args[0].(autodiff.Array).T)
			return autodiff.Scalar(s), err
		},
		func(g, _ autodiff.Value, args ...autodiff.Value) (autodiff.Value, error) {
			return autodiff.Scalar(1), nil
		},
	))

	f := func(args ...autodiff.Value) (autodiff.Value, error) {
		return eng.Call("bad", args[0])
	}
	_, err := eng.Grad(f, 0)(array(t, ctx, []float64{1, 2}, 2))
	assert.True(t, errors.Is(err, autodiff.ErrShapeMismatch))
	var opErr *autodiff.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "bad", opErr.Op)
	assert.Equal(t, 0, eng.Depth())
}

func TestGrad_ArgumentIndexOutOfRange(t *testing.T) {
	_, eng := newEngine(t)
	f := func(args ...autodiff.Value) (autodiff.Value, error) { return args[0], nil }

	_, err := eng.Grad(f, 1)(autodiff.Scalar(1))
	assert.True(t, errors.Is(err, autodiff.ErrInvalidArgument))
	assert.Equal(t, 0, eng.Depth())
}

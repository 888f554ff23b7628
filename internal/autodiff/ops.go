package autodiff

// Op ids of the builtin primitives.
const (
	OpAdd       = "add"
	OpSub       = "sub"
	OpMul       = "mul"
	OpDiv       = "div"
	OpPow       = "pow"
	OpNeg       = "neg"
	OpExp       = "exp"
	OpLog       = "log"
	OpTanh      = "tanh"
	OpSigmoid   = "sigmoid"
	OpReLU      = "relu"
	OpSqrt      = "sqrt"
	OpAbs       = "abs"
	OpSign      = "sign"
	OpFloor     = "floor"
	OpSum       = "sum"
	OpMean      = "mean"
	OpSumAxis   = "sum_axis"
	OpMatMul    = "matmul"
	OpTranspose = "transpose"
	OpReshape   = "reshape"
	OpSlice     = "slice"
	OpIndex     = "index"
)

// Add returns a + b with broadcasting.
func (e *Engine) Add(a, b Value) (Value, error) { return e.Call(OpAdd, a, b) }

// Sub returns a - b with broadcasting.
func (e *Engine) Sub(a, b Value) (Value, error) { return e.Call(OpSub, a, b) }

// Mul returns a * b element-wise with broadcasting.
func (e *Engine) Mul(a, b Value) (Value, error) { return e.Call(OpMul, a, b) }

// Div returns a / b element-wise with broadcasting.
func (e *Engine) Div(a, b Value) (Value, error) { return e.Call(OpDiv, a, b) }

// Pow returns a raised to b element-wise with broadcasting.
func (e *Engine) Pow(a, b Value) (Value, error) { return e.Call(OpPow, a, b) }

// Neg returns -x.
func (e *Engine) Neg(x Value) (Value, error) { return e.Call(OpNeg, x) }

// Exp returns e^x.
func (e *Engine) Exp(x Value) (Value, error) { return e.Call(OpExp, x) }

// Log returns the natural logarithm of x.
func (e *Engine) Log(x Value) (Value, error) { return e.Call(OpLog, x) }

// Tanh returns tanh(x).
func (e *Engine) Tanh(x Value) (Value, error) { return e.Call(OpTanh, x) }

// Sigmoid returns 1/(1+e^-x).
func (e *Engine) Sigmoid(x Value) (Value, error) { return e.Call(OpSigmoid, x) }

// ReLU returns max(x, 0).
func (e *Engine) ReLU(x Value) (Value, error) { return e.Call(OpReLU, x) }

// Sqrt returns the square root of x.
func (e *Engine) Sqrt(x Value) (Value, error) { return e.Call(OpSqrt, x) }

// Abs returns |x|.
func (e *Engine) Abs(x Value) (Value, error) { return e.Call(OpAbs, x) }

// Sign returns -1, 0 or 1. The result is never tracked.
func (e *Engine) Sign(x Value) (Value, error) { return e.Call(OpSign, x) }

// Floor rounds down. The result is never tracked.
func (e *Engine) Floor(x Value) (Value, error) { return e.Call(OpFloor, x) }

// Sum adds all elements of an array into a Scalar.
func (e *Engine) Sum(x Value) (Value, error) { return e.Call(OpSum, x) }

// Mean averages all elements of an array into a Scalar.
func (e *Engine) Mean(x Value) (Value, error) { return e.Call(OpMean, x) }

// SumAxis sums along axis, keeping it with size 1.
func (e *Engine) SumAxis(x Value, axis int) (Value, error) {
	return e.Call(OpSumAxis, x, Scalar(axis))
}

// MatMul multiplies two 2-D arrays.
func (e *Engine) MatMul(a, b Value) (Value, error) { return e.Call(OpMatMul, a, b) }

// Transpose swaps the dimensions of a 2-D array.
func (e *Engine) Transpose(x Value) (Value, error) { return e.Call(OpTranspose, x) }

// Reshape changes the shape of an array keeping its elements.
func (e *Engine) Reshape(x Value, shape ...int) (Value, error) {
	return e.Call(OpReshape, x, intsTuple(shape))
}

// Slice selects [start, end) along dim.
func (e *Engine) Slice(x Value, dim, start, end int) (Value, error) {
	return e.Call(OpSlice, x, Scalar(dim), Scalar(start), Scalar(end))
}

// Index gathers rows of x along the first dimension.
func (e *Engine) Index(x Value, indices ...int) (Value, error) {
	return e.Call(OpIndex, x, intsTuple(indices))
}

func intsTuple(ints []int) Tuple {
	t := make(Tuple, len(ints))
	for i, v := range ints {
		t[i] = Scalar(v)
	}
	return t
}

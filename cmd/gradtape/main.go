// Package main provides the gradtape CLI.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/born-ml/gradtape/autodiff"
	"github.com/born-ml/gradtape/memory"
	"github.com/born-ml/gradtape/tensor"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	capacity := flag.Int("capacity", 1<<20, "simulated device capacity in bytes (0 = unlimited)")
	iterations := flag.Int("iterations", 100, "allocation rounds for memstats")
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	var err error
	switch flag.Arg(0) {
	case "version":
		fmt.Printf("gradtape %s\n", version)
	case "demo":
		err = demo(*capacity)
	case "memstats":
		err = memstats(*capacity, *iterations)
	default:
		usage()
		return
	}
	if err != nil {
		klog.ErrorS(err, "command failed", "command", flag.Arg(0))
		klog.Flush()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("gradtape - trace-based reverse-mode autodiff over pooled device tensors")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Usage: gradtape [flags] <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  demo       Differentiate sum((w*x-y)^2) and gradcheck it")
	fmt.Println("  memstats   Exercise the allocator and print pool statistics")
	fmt.Println("")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func demo(capacity int) error {
	ctx := tensor.NewSimContext(capacity, memory.DefaultConfig())
	eng := autodiff.NewEngine()

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

	w, err := tensor.ToDevice(ctx, []float64{2, -1, 0.5}, tensor.Shape{3})
	if err != nil {
		return err
	}
	x, err := tensor.ToDevice(ctx, []float64{3, 1, 4}, tensor.Shape{3})
	if err != nil {
		return err
	}
	y, err := tensor.ToDevice(ctx, []float64{5, 0, 1}, tensor.Shape{3})
	if err != nil {
		return err
	}
	args := []autodiff.Value{autodiff.Array{T: w}, autodiff.Array{T: x}, autodiff.Array{T: y}}

	g, l, err := eng.GradLoss(loss, 0)(args...)
	if err != nil {
		return err
	}
	grad, err := tensor.ToHost[float64](g.(autodiff.Array).T)
	if err != nil {
		return err
	}
	fmt.Printf("loss     = %v\n", l)
	fmt.Printf("dloss/dw = %v\n", grad)

	ok, err := eng.Gradcheck(loss, autodiff.DefaultGradcheckConfig(), args[0], args[1:]...)
	if err != nil {
		return err
	}
	fmt.Printf("gradcheck: %v\n", ok)
	return nil
}

func memstats(capacity, iterations int) error {
	ctx := tensor.NewSimContext(capacity, memory.DefaultConfig())
	alloc := ctx.Allocator()
	dev := ctx.ActiveDevice()

	sizes := []tensor.Shape{{64}, {32, 32}, {128, 16}, {7, 3}}
	for i := range iterations {
		shape := sizes[i%len(sizes)]
		t, err := tensor.Zeros(ctx, shape, tensor.Float32)
		if err != nil {
			return err
		}
		// Every other tensor is dropped without Release and left to the
		// collection pass.
		if i%2 == 0 {
			t.Release()
		}
	}

	before, err := alloc.Stats(dev)
	if err != nil {
		return err
	}
	collected := alloc.Collect()
	if err := ctx.ForceReclaim(dev); err != nil {
		return err
	}
	after, err := alloc.Stats(dev)
	if err != nil {
		return err
	}

	fmt.Printf("device %v\n", dev)
	fmt.Printf("  hits=%d misses=%d device-allocs=%d device-frees=%d collections=%d flushes=%d failures=%d\n",
		before.Hits, before.Misses, before.DeviceAllocs, before.DeviceFrees,
		before.Collections, before.Flushes, before.Failures)
	fmt.Printf("  pooled before reclaim: %d blocks, %d bytes\n", before.PooledBlocks, before.PooledBytes)
	fmt.Printf("  collected after loop:  %d blocks\n", collected)
	fmt.Printf("  pooled after reclaim:  %d blocks, %d bytes\n", after.PooledBlocks, after.PooledBytes)
	fmt.Printf("  live:                  %d blocks, %d bytes\n", after.LiveBlocks, after.LiveBytes)
	return nil
}

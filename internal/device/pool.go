package device

import (
	"fmt"
	"runtime"
	"sync"
)

// FaultFunc lets tests and diagnostics inject device failures. A non-nil
// return fails the batch before any kernel runs.
type FaultFunc func(b Batch) error

// Options configure a Pool.
type Options struct {
	// Workers is the number of batch executors; 0 means GOMAXPROCS.
	Workers int
	// Fault, if set, is consulted before executing each batch.
	Fault FaultFunc
}

// Pool executes batches on a fixed set of worker goroutines, standing in for
// an accelerator command queue: submission is asynchronous, execution order
// across batches is unspecified, and each batch completes exactly once.
type Pool struct {
	prog Program

	in  chan Batch
	out chan Result

	fault FaultFunc

	wg   sync.WaitGroup
	once sync.Once
}

func NewPool(prog Program, opts Options) *Pool {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		prog:  prog,
		in:    make(chan Batch, 256),
		out:   make(chan Result, 256),
		fault: opts.Fault,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for b := range p.in {
				p.out <- p.run(b)
			}
		}()
	}
	return p
}

// Program reports the program the pool was built with.
func (p *Pool) Program() Program { return p.prog }

func (p *Pool) Submit(b Batch)         { p.in <- b }
func (p *Pool) Results() <-chan Result { return p.out }

// Close drains the queue and releases the workers. Pending batches still
// complete; callers must consume Results until it closes.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.in)
		go func() {
			p.wg.Wait()
			close(p.out)
		}()
	})
}

func (p *Pool) run(b Batch) Result {
	res := Result{Tick: b.Tick, Seq: b.Seq, Keys: b.Keys()}
	if p.fault != nil {
		if err := p.fault(b); err != nil {
			res.Err = fmt.Errorf("%w: %v", ErrDeviceFault, err)
			return res
		}
	}
	if b.Program != p.prog.ID {
		res.Err = fmt.Errorf("%w: program %q not resident (pool has %q)", ErrDeviceFault, b.Program, p.prog.ID)
		return res
	}
	for _, job := range b.Jobs {
		p.prog.Kernel(b.Geom, job.In, job.Out)
	}
	return res
}

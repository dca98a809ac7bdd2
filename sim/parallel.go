package sim

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/systems"
)

// Evaluator computes Next from Cur for every pedestrian in a frame.
// Implementations must write only frame.Next.Pos and frame.Next.Vel.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, frame *systems.Frame) error
	Close() error
}

// batch is one tick's work shared by every worker.
type batch struct {
	frame  *systems.Frame
	n      int
	chunk  int
	cursor atomic.Int64
}

// next claims the next chunk; ok is false once the range is exhausted.
func (b *batch) next() (start, end int, ok bool) {
	start = int(b.cursor.Add(int64(b.chunk))) - b.chunk
	if start >= b.n {
		return 0, 0, false
	}
	return start, min(start+b.chunk, b.n), true
}

// CPUEvaluator runs the social force model on a persistent worker pool.
// Workers pull fixed-size chunks from a shared cursor until the tick's range
// is exhausted. Small crowds are evaluated inline.
type CPUEvaluator struct {
	numWorkers int
	threshold  int
	chunkSize  int

	// Worker pool channels
	workChan chan *batch   // one send per worker per tick
	doneChan chan struct{} // workers signal completion
	stopChan chan struct{} // signals workers to exit
	wg       sync.WaitGroup
	running  bool
}

// NewCPUEvaluator creates an evaluator; workers start on first parallel use.
func NewCPUEvaluator(cfg config.ParallelConfig) *CPUEvaluator {
	numWorkers := cfg.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 32
	}
	return &CPUEvaluator{
		numWorkers: numWorkers,
		threshold:  cfg.Threshold,
		chunkSize:  chunk,
	}
}

// Name implements Evaluator.
func (e *CPUEvaluator) Name() string { return string(config.BackendCPU) }

// Workers returns the pool size.
func (e *CPUEvaluator) Workers() int { return e.numWorkers }

// Evaluate implements Evaluator.
func (e *CPUEvaluator) Evaluate(ctx context.Context, frame *systems.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := frame.Cur.Len()
	if n == 0 {
		return nil
	}

	if n < e.threshold || e.numWorkers == 1 {
		systems.StepRange(frame, 0, n)
		return nil
	}

	e.startWorkers()

	b := &batch{frame: frame, n: n, chunk: e.chunkSize}
	for w := 0; w < e.numWorkers; w++ {
		e.workChan <- b
	}
	for w := 0; w < e.numWorkers; w++ {
		<-e.doneChan
	}
	return nil
}

// startWorkers launches persistent worker goroutines.
func (e *CPUEvaluator) startWorkers() {
	if e.running {
		return
	}

	e.workChan = make(chan *batch, e.numWorkers)
	e.doneChan = make(chan struct{}, e.numWorkers)
	e.stopChan = make(chan struct{})
	e.running = true

	for i := 0; i < e.numWorkers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
}

// Close stops the workers and waits for them to exit.
func (e *CPUEvaluator) Close() error {
	if !e.running {
		return nil
	}

	close(e.stopChan)
	e.wg.Wait()
	e.running = false
	return nil
}

func (e *CPUEvaluator) worker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopChan:
			return
		case b := <-e.workChan:
			for {
				start, end, ok := b.next()
				if !ok {
					break
				}
				systems.StepRange(b.frame, start, end)
			}
			e.doneChan <- struct{}{}
		}
	}
}

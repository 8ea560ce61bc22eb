package utils

import "sync"

type CompletedTask[In any, Out any] struct {
	Input  In
	Result Out
	Error  error
}

// RunInPool drains queue with up to maxWorkers goroutines and sends one
// CompletedTask per input to completed, which is closed once every worker
// has returned. The queue must be closed by the caller.
func RunInPool[In any, Out any](worker func(In) (Out, error), queue chan In, completed chan CompletedTask[In, Out], maxWorkers int) {
	workers := max(1, min(len(queue), maxWorkers))

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for next := range queue {
					res, err := worker(next)
					if err != nil {
						completed <- CompletedTask[In, Out]{Input: next, Error: err}
					} else {
						completed <- CompletedTask[In, Out]{Input: next, Result: res}
					}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()
}

// RunAll runs worker over every item in the pool and returns the outcomes in
// input order.
func RunAll[In any, Out any](items []In, maxWorkers int, worker func(In) (Out, error)) []CompletedTask[In, Out] {
	type indexed struct {
		idx  int
		item In
	}

	queue := make(chan indexed, len(items))
	for i, item := range items {
		queue <- indexed{idx: i, item: item}
	}
	close(queue)

	completed := make(chan CompletedTask[indexed, Out], len(items))
	RunInPool(func(in indexed) (Out, error) { return worker(in.item) }, queue, completed, maxWorkers)

	results := make([]CompletedTask[In, Out], len(items))
	for task := range completed {
		results[task.Input.idx] = CompletedTask[In, Out]{Input: task.Input.item, Result: task.Result, Error: task.Error}
	}
	return results
}

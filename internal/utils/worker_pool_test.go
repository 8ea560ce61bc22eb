package utils_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"docsift/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInpool(t *testing.T) {
	worker := func(i int) (string, error) {
		if i%4 == 3 {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return "", fmt.Errorf("error")
		}
		return fmt.Sprintf("%d-%d", i, i), nil
	}

	queue := make(chan int, 10)

	for i := 0; i < 10; i++ {
		queue <- i
	}

	close(queue)

	output := make(chan utils.CompletedTask[int, string], 10)

	utils.RunInPool(worker, queue, output, 5)

	success, errors := 0, 0
	for result := range output {
		if result.Error != nil {
			errors++
			assert.Equal(t, 3, result.Input%4)
		} else {
			success++
			assert.Equal(t, fmt.Sprintf("%d-%d", result.Input, result.Input), result.Result)
		}
	}

	assert.Equal(t, 8, success)
	assert.Equal(t, 2, errors)
}

func TestRunInPoolEmptyQueue(t *testing.T) {
	queue := make(chan int)
	close(queue)

	output := make(chan utils.CompletedTask[int, int])
	utils.RunInPool(func(i int) (int, error) { return i, nil }, queue, output, 4)

	count := 0
	for range output {
		count++
	}
	assert.Zero(t, count)
}

func TestRunAllPreservesOrderAndBoundsWorkers(t *testing.T) {
	var running, peak atomic.Int32

	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	results := utils.RunAll(items, 3, func(i int) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)

		if i == 7 {
			return 0, fmt.Errorf("bad item")
		}
		return i * i, nil
	})

	require.Len(t, results, 50)
	for i, res := range results {
		assert.Equal(t, i, res.Input)
		if i == 7 {
			assert.Error(t, res.Error)
			continue
		}
		assert.NoError(t, res.Error)
		assert.Equal(t, i*i, res.Result)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

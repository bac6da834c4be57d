package mapping

import (
	"context"
	"sync"

	"github.com/Sternrassler/idmapping-client/pkg/client"
)

// runChunks processes chunks with a bounded worker pool and returns one
// outcome per chunk, indexed by chunk. Without IsolateChunkErrors the first
// failure cancels the chunks that have not finished yet.
func (m *Mapper) runChunks(ctx context.Context, p plan, chunks [][]string) []chunkOutcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]chunkOutcome, len(chunks))
	queue := make(chan int, len(chunks))
	for i := range chunks {
		queue <- i
	}
	close(queue)

	workers := min(m.config.Concurrency, len(chunks))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go m.worker(ctx, cancel, p, chunks, queue, outcomes, &wg, i)
	}
	wg.Wait()

	return outcomes
}

// worker drains the chunk queue. Each index is written by exactly one worker.
func (m *Mapper) worker(ctx context.Context, cancel context.CancelFunc, p plan, chunks [][]string, queue <-chan int, outcomes []chunkOutcome, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for index := range queue {
		if err := ctx.Err(); err != nil {
			outcomes[index] = chunkOutcome{
				index: index,
				size:  len(chunks[index]),
				err:   &client.CancelledError{Err: err},
			}
			continue
		}

		outcomes[index] = m.runChunk(ctx, p, index, chunks[index])
		processed++

		if outcomes[index].err != nil && !m.config.IsolateChunkErrors {
			cancel()
		}
	}

	if processed > 0 {
		m.logger.Debug().
			Int("worker_id", workerID).
			Int("chunks_processed", processed).
			Msg("Worker completed")
	}
}

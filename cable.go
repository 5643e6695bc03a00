/*
 * Copyright 2026 The NeoRPC Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package neorpc

import (
	"context"
	"errors"
	"sync"
	"time"
)

// AppendCable buffers rows and sends them through an Appender in batches,
// once BatchSize rows are pending or every BatchInterval.
type AppendCable struct {
	a *Appender

	pending []*cableRow
	sendCh  chan *cableRow
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once

	// BatchSize is the number of rows that triggers a flush.
	BatchSize int
	// BatchInterval is the longest time a row waits before it is sent.
	BatchInterval time.Duration
}

type cableRow struct {
	values []any
	err    chan error
}

// Cable returns a buffered front end of the appender. Set the batch options
// before calling Start.
func (a *Appender) Cable() *AppendCable {
	return &AppendCable{
		a:             a,
		sendCh:        make(chan *cableRow),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		BatchSize:     1024,
		BatchInterval: time.Second,
	}
}

// Start runs the batching loop until Close is called or ctx is done.
func (c *AppendCable) Start(ctx context.Context) {
	go func() {
		defer close(c.done)

		ticker := time.NewTicker(c.BatchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.flush(ctx)
				return
			case <-ticker.C:
				c.flush(ctx)
			case <-c.stop:
				c.flush(ctx)
				return
			case row := <-c.sendCh:
				c.pending = append(c.pending, row)
				if len(c.pending) >= c.BatchSize {
					c.flush(ctx)
				}
			}
		}
	}()
}

// Send queues one row. The returned channel yields the error of the row, if
// any, and is closed once the row has been sent.
func (c *AppendCable) Send(values ...any) <-chan error {
	row := &cableRow{values: values, err: make(chan error, 1)}
	select {
	case c.sendCh <- row:
	case <-c.done:
		row.err <- newError(KindTransport, "Append", c.a.h.id, "cable is stopped")
		close(row.err)
	}
	return row.err
}

// Close flushes the pending rows and waits for the loop to stop. It must
// follow Start, and it does not finalize the appender.
func (c *AppendCable) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

func (c *AppendCable) flush(ctx context.Context) {
	if len(c.pending) == 0 {
		return
	}
	rows := c.pending
	c.pending = nil

	batch := make([][]any, len(rows))
	for i, row := range rows {
		batch[i] = row.values
	}

	err := c.a.AppendBatch(ctx, batch)
	rejected := make(map[int]error)
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		for _, r := range pf.Rejected {
			rejected[r.Index] = r.Err
		}
		err = nil
	}

	for i, row := range rows {
		if rerr, ok := rejected[i]; ok {
			row.err <- rerr
		} else if err != nil {
			row.err <- err
		}
		close(row.err)
	}
}

// Copyright 2025 Pathmapd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pathdb

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	defaultExecutorWorkers = 4
	defaultExecutorQueue   = 1024
)

type job struct {
	name string
	fn   func() error
}

// executor runs fire-and-forget background tasks on a bounded queue.
// Failures are logged, never propagated to the submitting caller.
// Close drains the queue and waits for running tasks.
type executor struct {
	mu     sync.Mutex
	jobs   chan job
	wg     sync.WaitGroup
	closed bool
}

func newExecutor(workers, queueSize int) *executor {
	if workers <= 0 {
		workers = defaultExecutorWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultExecutorQueue
	}
	e := &executor{jobs: make(chan job, queueSize)}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e
}

func (e *executor) worker() {
	defer e.wg.Done()
	for j := range e.jobs {
		runJob(j)
	}
}

func runJob(j job) {
	if err := j.fn(); err != nil {
		log.WithError(err).Errorf("Background job failed: %s", j.name)
	}
}

// submit enqueues a task, blocking when the queue is full. After
// close, the task runs on the caller so queued side-effects are never
// silently lost during shutdown.
func (e *executor) submit(name string, fn func() error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		runJob(job{name: name, fn: fn})
		return
	}
	e.jobs <- job{name: name, fn: fn}
	e.mu.Unlock()
}

// close stops intake, drains the queue, and joins the workers.
func (e *executor) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()
	e.wg.Wait()
}

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
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutorRunsSubmittedJobs(t *testing.T) {
	e := newExecutor(2, 16)

	var ran atomic.Int64
	for i := 0; i < 50; i++ {
		e.submit("count", func() error {
			ran.Add(1)
			return nil
		})
	}
	e.close()

	assert.Equal(t, int64(50), ran.Load())
}

func TestExecutorCloseDrainsQueue(t *testing.T) {
	// One worker and a deep queue: close must wait for everything.
	e := newExecutor(1, 64)

	var ran atomic.Int64
	for i := 0; i < 64; i++ {
		e.submit("drain", func() error {
			ran.Add(1)
			return nil
		})
	}
	e.close()

	assert.Equal(t, int64(64), ran.Load())
}

func TestExecutorSubmitAfterCloseRunsInline(t *testing.T) {
	e := newExecutor(1, 4)
	e.close()

	var ran atomic.Int64
	e.submit("late", func() error {
		ran.Add(1)
		return nil
	})

	assert.Equal(t, int64(1), ran.Load())
}

func TestExecutorJobErrorDoesNotStopWorkers(t *testing.T) {
	e := newExecutor(1, 4)

	var ran atomic.Int64
	e.submit("fail", func() error { return errors.New("boom") })
	e.submit("after", func() error {
		ran.Add(1)
		return nil
	})
	e.close()

	assert.Equal(t, int64(1), ran.Load())
}

func TestExecutorCloseTwice(t *testing.T) {
	e := newExecutor(1, 4)
	e.close()
	e.close()
}

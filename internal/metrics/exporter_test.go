/*
SPDX-License-Identifier: Apache-2.0

Copyright 2025 ConfigButler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitOTLPExporterSuccess(t *testing.T) {
	ctx := context.Background()

	e, shutdown, err := InitOTLPExporter(ctx)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.NotNil(t, shutdown)
	defer shutdown(ctx)

	assert.NotNil(t, e.childWatchCount)
	assert.NotNil(t, e.syncChildToParent)
	assert.NotNil(t, e.syncParentToChild)
	assert.NotNil(t, e.echoDropped)
	assert.NotNil(t, e.malformedMount)
}

func TestExporterRecordsWithoutPanicking(t *testing.T) {
	ctx := context.Background()
	e, shutdown, err := InitOTLPExporter(ctx)
	require.NoError(t, err)
	defer shutdown(ctx)

	assert.NotPanics(t, func() {
		e.ChildWatchCount(3)
		e.ChildWatchCount(5)
		e.ChildWatchCount(1)
		e.SyncChildToParent("ok")
		e.SyncChildToParent("error")
		e.SyncParentToChild("ok")
		e.EchoDropped("parent")
		e.EchoDropped("child")
		e.MalformedMount(2)
		e.MalformedMount(0)
	})
}

func TestChildWatchCountTracksDelta(t *testing.T) {
	ctx := context.Background()
	full, shutdown, err := InitOTLPExporter(ctx)
	require.NoError(t, err)
	defer shutdown(ctx)

	e := &Exporter{childWatchCount: full.childWatchCount}

	assert.NotPanics(t, func() {
		e.ChildWatchCount(4)
		e.ChildWatchCount(4)
		e.ChildWatchCount(2)
	})
	assert.EqualValues(t, 2, e.lastChildWatchCount)
}

func TestConcurrentExporterUsage(t *testing.T) {
	ctx := context.Background()
	e, shutdown, err := InitOTLPExporter(ctx)
	require.NoError(t, err)
	defer shutdown(ctx)

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		for i := 0; i < 50; i++ {
			e.SyncChildToParent("ok")
		}
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		for i := 0; i < 50; i++ {
			e.ChildWatchCount(i)
		}
	}()
	<-done
	<-done
}

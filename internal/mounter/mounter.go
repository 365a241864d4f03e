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

// Package mounter implements mount semantics: a parent model's
// spec.mount subtree names zero or more child models whose intent
// flows down from the parent and whose status flows back up, with the
// runtime's own writes suppressed from re-triggering themselves.
//
// Concurrency shape: one actor goroutine owns all mount state, fed by
// an inbox channel that every Watch callback (parent or child) enqueues
// onto. No Mounter-wide mutex is needed; the ledger's own mutex is the
// only lock guarding mount state.
package mounter

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/digi-dev/mounter/internal/bridge"
	"github.com/digi-dev/mounter/internal/ledger"
	"github.com/digi-dev/mounter/internal/model"
	"github.com/digi-dev/mounter/internal/modelref"
	"github.com/digi-dev/mounter/internal/store"
	"github.com/digi-dev/mounter/internal/watch"
)

// inboxCapacity bounds how many pending jobs the actor buffers before a
// Watch's own dispatch goroutine blocks handing one over.
const inboxCapacity = 64

// Mounter owns the mount lifecycle for a single parent model.
type Mounter struct {
	gvr modelref.GVR
	nsn modelref.NSN

	store  *store.StoreClient
	ledger *ledger.Ledger
	bridge ReconcileBridge
	log    logr.Logger
	metric Metrics

	parentWatch *watch.Watch

	// childWatches is keyed by gvr string then nsn string, and is only
	// ever touched from the actor goroutine.
	childWatches map[string]map[string]*watch.Watch

	// lastChildPush/lastParentPush cache the content hash of the most
	// recent payload actually written in each direction for a child, so
	// a sync triggered by an event that didn't change the relevant
	// subtree folds into zero writes instead of a redundant patch. Only
	// ever touched from the actor goroutine.
	lastChildPush  map[modelref.ChildKey]uint64
	lastParentPush map[modelref.ChildKey]uint64

	inbox    chan func()
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	cancel   context.CancelFunc
	runCtx   context.Context
}

// Option configures a Mounter at construction.
type Option func(*Mounter)

// WithBridge overrides the default ledger-backed ReconcileBridge.
func WithBridge(b ReconcileBridge) Option {
	return func(m *Mounter) { m.bridge = b }
}

// WithMetrics attaches an observability sink.
func WithMetrics(metric Metrics) Option {
	return func(m *Mounter) { m.metric = metric }
}

// New builds a Mounter for the parent identified by (gvr, nsn). Call
// Start to begin watching.
func New(sc *store.StoreClient, l *ledger.Ledger, gvr modelref.GVR, nsn modelref.NSN, log logr.Logger, opts ...Option) *Mounter {
	m := &Mounter{
		gvr:            gvr,
		nsn:            nsn,
		store:          sc,
		ledger:         l,
		log:            log.WithValues("parentGVR", gvr.String(), "parentNSN", nsn.String()),
		metric:         noopMetrics{},
		childWatches:   make(map[string]map[string]*watch.Watch),
		lastChildPush:  make(map[modelref.ChildKey]uint64),
		lastParentPush: make(map[modelref.ChildKey]uint64),
		inbox:          make(chan func(), inboxCapacity),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bridge == nil {
		m.bridge = bridge.New(l)
	}
	return m
}

// enqueue hands a unit of work to the actor goroutine. Safe to call
// from any goroutine; it blocks while the inbox is full until the actor
// takes a job or the Mounter stops, so a call from within the actor
// itself blocks for good once the inbox is full.
func (m *Mounter) enqueue(job func()) {
	select {
	case m.inbox <- job:
	case <-m.stopCh:
	}
}

func (m *Mounter) actorLoop() {
	defer close(m.doneCh)
	for {
		select {
		case <-m.stopCh:
			return
		case job := <-m.inbox:
			job()
		}
	}
}

// Start subscribes to the parent model and begins processing events.
// Blocks until the parent watch's cache has synced.
func (m *Mounter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.runCtx = runCtx

	w, err := watch.New(m.store.Dynamic, m.gvr, m.nsn, watch.Callbacks{
		OnCreate: m.onParentCreate,
		OnResume: m.onParentCreate,
		Field:    model.AttrMount,
		OnField:  m.onMountAttrUpdate,
		OnDelete: m.onParentDelete,
	}, m.log)
	if err != nil {
		cancel()
		return err
	}
	m.parentWatch = w

	go m.actorLoop()

	if err := w.Start(runCtx); err != nil {
		cancel()
		return err
	}
	return nil
}

// Stop tears down the parent watch, every child watch, and the actor
// goroutine. Idempotent.
func (m *Mounter) Stop() {
	m.stopOnce.Do(func() {
		if m.parentWatch != nil {
			m.parentWatch.Stop()
		}
		close(m.stopCh)
		if m.cancel != nil {
			// Every child watch was started under runCtx and stops
			// itself on cancellation; the actor goroutine owns the
			// childWatches map, so Stop must not iterate it here.
			m.cancel()
		}
	})
}

// Done closes once the actor goroutine has exited.
func (m *Mounter) Done() <-chan struct{} { return m.doneCh }

func (m *Mounter) onParentCreate(spec map[string]any, meta watch.Meta) {
	m.enqueue(func() {
		m.updateChildWatches(spec)
	})
}

func (m *Mounter) onMountAttrUpdate(spec map[string]any, meta watch.Meta, diff []model.Diff) {
	m.enqueue(func() {
		if m.ledger.IsParentEcho(meta.Generation) {
			m.metric.EchoDropped("parent")
			return
		}
		m.updateChildWatches(spec)
		m.syncToChildren(m.runCtx, spec, diff)
	})
}

func (m *Mounter) onParentDelete(spec map[string]any) {
	m.enqueue(func() {
		m.log.Info("parent deleted, stopping mounter")
		m.Stop()
	})
}

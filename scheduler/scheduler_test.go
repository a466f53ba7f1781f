// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielhkuo/elvox/models"
)

type fakeElections struct {
	mu        sync.Mutex
	ids       []string
	listErr   error
	status    map[string]models.Status
	failOn    map[string]bool
	advanced  []string
	reminded  []string
	gate      chan struct{}
	entered   chan struct{}
	listCalls atomic.Int32
}

func (f *fakeElections) ActiveElectionIDs(ctx context.Context) ([]string, error) {
	f.listCalls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.ids, f.listErr
}

func (f *fakeElections) Advance(ctx context.Context, id string) (models.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanced = append(f.advanced, id)
	if f.failOn[id] {
		return "", errors.New("boom")
	}
	if st, ok := f.status[id]; ok {
		return st, nil
	}
	return models.StatusVoting, nil
}

func (f *fakeElections) SendDeadlineReminders(ctx context.Context, id string, tick time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminded = append(f.reminded, id)
	return 0, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickAdvancesEveryElection(t *testing.T) {
	f := &fakeElections{
		ids:    []string{"a", "b", "c"},
		status: map[string]models.Status{"b": models.StatusClosed},
		failOn: map[string]bool{"a": true},
	}
	s := New(f, time.Minute, quietLogger())

	if !s.Tick(context.Background()) {
		t.Fatal("Expected tick to run")
	}

	if len(f.advanced) != 3 {
		t.Errorf("Expected 3 elections advanced, got %v", f.advanced)
	}
	// a failed, b closed: only c gets reminders
	if len(f.reminded) != 1 || f.reminded[0] != "c" {
		t.Errorf("Expected reminders only for c, got %v", f.reminded)
	}
}

func TestTickListError(t *testing.T) {
	f := &fakeElections{listErr: errors.New("db down")}
	s := New(f, time.Minute, quietLogger())

	s.Tick(context.Background())

	if len(f.advanced) != 0 {
		t.Errorf("Expected nothing advanced, got %v", f.advanced)
	}
}

func TestTickDoesNotOverlap(t *testing.T) {
	f := &fakeElections{
		ids:     []string{"a"},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := New(f, time.Minute, quietLogger())

	done := make(chan bool)
	go func() { done <- s.Tick(context.Background()) }()
	<-f.entered

	if s.Tick(context.Background()) {
		t.Error("Expected overlapping tick to be skipped")
	}

	close(f.gate)
	if !<-done {
		t.Error("Expected first tick to run")
	}
	if got := f.listCalls.Load(); got != 1 {
		t.Errorf("Expected 1 listing, got %d", got)
	}

	// The guard is released once the tick finishes.
	if !s.Tick(context.Background()) {
		t.Error("Expected tick to run after the previous one finished")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := &fakeElections{ids: []string{"a"}}
	s := New(f, 10*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for f.listCalls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for ticks")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

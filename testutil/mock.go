package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/c360/semflow/component"
	"github.com/c360/semflow/message"
)

// MockBehavior records lifecycle calls and received messages. The optional
// funcs override the default no-op hooks.
type MockBehavior struct {
	Node component.Node

	InitFunc  func(ctx context.Context, n component.Node) error
	InputFunc func(ctx context.Context, n component.Node, msg message.Msg) error
	CloseFunc func(ctx context.Context, n component.Node) error

	mu         sync.Mutex
	received   []message.Msg
	initCalls  int
	closeCalls int
}

func (m *MockBehavior) Init(ctx context.Context) error {
	m.mu.Lock()
	m.initCalls++
	fn := m.InitFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, m.Node)
	}
	return nil
}

func (m *MockBehavior) OnInput(ctx context.Context, msg message.Msg) error {
	m.mu.Lock()
	m.received = append(m.received, msg)
	fn := m.InputFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, m.Node, msg)
	}
	return nil
}

func (m *MockBehavior) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closeCalls++
	fn := m.CloseFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, m.Node)
	}
	return nil
}

// Received returns a copy of the messages seen so far.
func (m *MockBehavior) Received() []message.Msg {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]message.Msg(nil), m.received...)
}

// InitCalls returns how often Init ran.
func (m *MockBehavior) InitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCalls
}

// CloseCalls returns how often Close ran.
func (m *MockBehavior) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// MockSet tracks every instance built for a mock type, keyed by node id.
// Redeploys append new instances, so History shows rebuilds.
type MockSet struct {
	mu        sync.Mutex
	instances map[string][]*MockBehavior
}

// MockType registers typ in reg. setup, when non-nil, customizes each
// instance before it is returned to the runtime.
func MockType(t testing.TB, reg *component.Registry, typ string, setup func(b *MockBehavior)) *MockSet {
	t.Helper()

	set := &MockSet{instances: make(map[string][]*MockBehavior)}
	err := reg.Register(component.Registration{
		Type:        typ,
		Category:    component.CategoryProcessor,
		Description: "test double",
		Inputs:      1,
		Outputs:     1,
		Factory: func(n component.Node) (component.Behavior, error) {
			b := &MockBehavior{Node: n}
			if setup != nil {
				setup(b)
			}
			set.mu.Lock()
			set.instances[n.ID()] = append(set.instances[n.ID()], b)
			set.mu.Unlock()
			return b, nil
		},
	})
	if err != nil {
		t.Fatalf("register mock type %s: %v", typ, err)
	}
	return set
}

// Get returns the latest instance built for id, or nil.
func (s *MockSet) Get(id string) *MockBehavior {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.instances[id]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// History returns every instance built for id, oldest first.
func (s *MockSet) History(id string) []*MockBehavior {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*MockBehavior(nil), s.instances[id]...)
}

// Received returns the messages the latest instance of id has seen.
func (s *MockSet) Received(id string) []message.Msg {
	if b := s.Get(id); b != nil {
		return b.Received()
	}
	return nil
}

// WaitFor blocks until the latest instance of id has received at least n
// messages, failing the test after two seconds.
func (s *MockSet) WaitFor(t testing.TB, id string, n int) []message.Msg {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := s.Received(id)
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("node %s received %d messages, want %d", id, len(got), n)
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
}

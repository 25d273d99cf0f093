package finch_test

import (
	"context"
	"sync"

	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/graphql"
)

var testDoc = graphql.MustParse(`
  query foo {
    bar
  }
`)

// mockSender records every sent envelope and delegates to impl.
type mockSender struct {
	mu    sync.Mutex
	calls []finch.Envelope
	impl  func(env finch.Envelope, callback func(finch.Reply))
}

func (m *mockSender) SendMessage(_ context.Context, env finch.Envelope, callback func(finch.Reply)) {
	m.mu.Lock()
	m.calls = append(m.calls, env)
	m.mu.Unlock()
	m.impl(env, callback)
}

func (m *mockSender) Calls() []finch.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]finch.Envelope(nil), m.calls...)
}

func barResponse() *graphql.Response {
	return &graphql.Response{Data: []byte(`{"bar":true}`)}
}

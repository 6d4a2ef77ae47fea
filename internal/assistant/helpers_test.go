package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/supportbot/internal/corpus"
	"github.com/mohammad-safakhou/supportbot/models"
	"github.com/mohammad-safakhou/supportbot/provider"
)

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c, err := corpus.New([]models.DocEntry{
		{Title: "Hours", Content: "We are open 9 to 5 Monday to Friday."},
		{Title: "Returns", Content: "Products may be returned within thirty days of delivery with the original receipt."},
		{Title: "Shipping", Content: "Standard shipping takes between three and seven business days."},
	})
	if err != nil {
		t.Fatalf("corpus.New: %v", err)
	}
	return c
}

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	touched  map[string]int
	messages []models.Message
	failOn   string
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]time.Time{}, touched: map[string]int{}}
}

var errDisk = errors.New("disk I/O error")

func (m *memStore) EnsureSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "ensure" {
		return errDisk
	}
	if _, ok := m.sessions[id]; !ok {
		m.sessions[id] = time.Now()
	}
	return nil
}

func (m *memStore) AppendMessage(_ context.Context, sessionID string, role models.Role, content string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "append-"+string(role) {
		return models.Message{}, errDisk
	}
	msg := models.Message{
		ID:        int64(len(m.messages) + 1),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *memStore) RecentMessages(_ context.Context, sessionID string, beforeID int64, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "recent" {
		return nil, errDisk
	}
	var out []models.Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID && (beforeID <= 0 || msg.ID < beforeID) {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) TouchSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "touch" {
		return errDisk
	}
	m.touched[id]++
	return nil
}

func (m *memStore) forSession(id string) []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.SessionID == id {
			out = append(out, msg)
		}
	}
	return out
}

// stubGenerator records prompts and replays a canned result.
type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	result  *provider.Result
	err     error
	block   bool
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (*provider.Result, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.result, g.err
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *stubGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

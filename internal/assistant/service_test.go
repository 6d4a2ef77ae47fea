package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/supportbot/models"
	"github.com/mohammad-safakhou/supportbot/provider"
)

func TestChatHoursScenario(t *testing.T) {
	st := newMemStore()
	gen := &stubGenerator{result: &provider.Result{Text: "We are open 9 to 5 Monday to Friday.", TokensUsed: 57}}
	svc := NewService(st, gen, testCorpus(t))

	reply, err := svc.Chat(context.Background(), "s1", "  What are your hours?  ")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Reply != "We are open 9 to 5 Monday to Friday." || reply.TokensUsed != 57 || reply.Overridden {
		t.Fatalf("unexpected reply %+v", reply)
	}

	msgs := st.forSession("s1")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 stored messages got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[0].Content != "What are your hours?" {
		t.Fatalf("unexpected user message %+v", msgs[0])
	}
	if msgs[1].Role != models.RoleAssistant || msgs[1].Content != reply.Reply {
		t.Fatalf("unexpected assistant message %+v", msgs[1])
	}
	if st.touched["s1"] != 1 {
		t.Fatalf("expected session to be touched once, got %d", st.touched["s1"])
	}

	p := gen.lastPrompt()
	if !strings.Contains(p, "Conversation History:\nNo previous conversation.") {
		t.Fatalf("first turn should have no history:\n%s", p)
	}
	if !strings.Contains(p, "### Hours\n") || strings.Contains(p, "### Returns") {
		t.Fatalf("expected only the Hours entry:\n%s", p)
	}
}

func TestChatHistoryExcludesCurrentQuestion(t *testing.T) {
	st := newMemStore()
	gen := &stubGenerator{result: &provider.Result{Text: "We are open 9 to 5 Monday to Friday."}}
	svc := NewService(st, gen, testCorpus(t))
	ctx := context.Background()

	if _, err := svc.Chat(ctx, "s1", "What are your hours?"); err != nil {
		t.Fatalf("first Chat: %v", err)
	}
	if _, err := svc.Chat(ctx, "s1", "And on Saturday?"); err != nil {
		t.Fatalf("second Chat: %v", err)
	}

	p := gen.lastPrompt()
	if !strings.Contains(p, "Conversation History:\nUser: What are your hours?\nAssistant: We are open 9 to 5 Monday to Friday.\n\n") {
		t.Fatalf("unexpected history:\n%s", p)
	}
	if strings.Contains(p, "User: And on Saturday?") {
		t.Fatalf("current question duplicated in history:\n%s", p)
	}
}

func TestChatHistoryCapped(t *testing.T) {
	st := newMemStore()
	gen := &stubGenerator{result: &provider.Result{Text: "ok"}}
	svc := NewService(st, gen, testCorpus(t))
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := svc.Chat(ctx, "s1", fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}
	p := gen.lastPrompt()
	start := strings.Index(p, "Conversation History:\n") + len("Conversation History:\n")
	end := strings.Index(p, "\n\nCurrent Question:")
	lines := strings.Split(p[start:end], "\n")
	if len(lines) != HistoryLimit {
		t.Fatalf("expected %d history lines got %d:\n%s", HistoryLimit, len(lines), p[start:end])
	}
	if lines[0] != "User: question 2" {
		t.Fatalf("unexpected oldest line %q", lines[0])
	}
}

func TestChatInvalidRequest(t *testing.T) {
	for _, tc := range []struct{ session, message string }{
		{"", "hi"},
		{"s1", ""},
		{"   ", "hi"},
		{"s1", " \n\t"},
	} {
		st := newMemStore()
		gen := &stubGenerator{result: &provider.Result{Text: "x"}}
		svc := NewService(st, gen, testCorpus(t))

		_, err := svc.Chat(context.Background(), tc.session, tc.message)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("(%q, %q): expected ErrInvalidRequest got %v", tc.session, tc.message, err)
		}
		if len(st.sessions) != 0 || len(st.messages) != 0 || gen.calls() != 0 {
			t.Fatalf("invalid request must not have side effects")
		}
	}
}

func TestChatUpstreamAuth(t *testing.T) {
	st := newMemStore()
	gen := &stubGenerator{err: fmt.Errorf("%w: status 401: bad key", provider.ErrUnauthorized)}
	svc := NewService(st, gen, testCorpus(t))

	_, err := svc.Chat(context.Background(), "s1", "What are your hours?")
	if !errors.Is(err, ErrUpstreamAuth) || !errors.Is(err, provider.ErrUnauthorized) {
		t.Fatalf("expected upstream auth error got %v", err)
	}
	if errors.Is(err, ErrUpstream) {
		t.Fatalf("auth failure must not be reported as a generic upstream failure")
	}
	msgs := st.forSession("s1")
	if len(msgs) != 1 || msgs[0].Role != models.RoleUser {
		t.Fatalf("user turn should be kept without an answer: %+v", msgs)
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	st := newMemStore()
	gen := &stubGenerator{err: fmt.Errorf("%w: status 500: boom", provider.ErrProviderFailed)}
	svc := NewService(st, gen, testCorpus(t))

	_, err := svc.Chat(context.Background(), "s1", "What are your hours?")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream got %v", err)
	}
	if st.touched["s1"] != 0 {
		t.Fatal("session must not be touched after a failed model call")
	}
}

func TestChatTimeout(t *testing.T) {
	st := newMemStore()
	gen := &stubGenerator{block: true}
	svc := NewService(st, gen, testCorpus(t), WithTimeout(20*time.Millisecond))

	_, err := svc.Chat(context.Background(), "s1", "What are your hours?")
	if !errors.Is(err, ErrUpstream) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline upstream error got %v", err)
	}
}

func TestChatStoreFailures(t *testing.T) {
	for _, stage := range []string{"ensure", "append-user", "recent", "append-assistant", "touch"} {
		t.Run(stage, func(t *testing.T) {
			st := newMemStore()
			st.failOn = stage
			gen := &stubGenerator{result: &provider.Result{Text: "We are open 9 to 5 Monday to Friday."}}
			svc := NewService(st, gen, testCorpus(t))

			_, err := svc.Chat(context.Background(), "s1", "What are your hours?")
			if !errors.Is(err, ErrStore) || !errors.Is(err, errDisk) {
				t.Fatalf("expected store error got %v", err)
			}
			beforeModel := stage == "ensure" || stage == "append-user" || stage == "recent"
			if beforeModel && gen.calls() != 0 {
				t.Fatal("model must not be called after a store failure")
			}
		})
	}
}

func TestChatEmptyModelText(t *testing.T) {
	st := newMemStore()
	gen := &stubGenerator{result: &provider.Result{Text: "   ", TokensUsed: 3}}
	svc := NewService(st, gen, testCorpus(t))

	reply, err := svc.Chat(context.Background(), "s1", "What are your hours?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Reply != NotFoundReply || reply.TokensUsed != 3 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if msgs := st.forSession("s1"); msgs[1].Content != NotFoundReply {
		t.Fatalf("refusal should be stored, got %q", msgs[1].Content)
	}
}

func TestChatOverridesUngroundedReply(t *testing.T) {
	st := newMemStore()
	gen := &stubGenerator{result: &provider.Result{Text: "Our galaxy-class starships depart hourly towards Jupiter tomorrow"}}
	svc := NewService(st, gen, testCorpus(t))

	reply, err := svc.Chat(context.Background(), "s1", "When does the next flight leave?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Reply != NotFoundReply || !reply.Overridden {
		t.Fatalf("expected override, got %+v", reply)
	}
}

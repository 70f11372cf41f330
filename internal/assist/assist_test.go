package assist

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeCompleter struct {
	reply string
	err   error
	asked []string
}

func (f *fakeCompleter) complete(_ context.Context, q string) (string, error) {
	f.asked = append(f.asked, q)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type queryRecord struct {
	query    string
	answered bool
}

type mockSink struct {
	records []queryRecord
}

func (s *mockSink) AIQuery(_, query string, answered bool, _ time.Duration) {
	s.records = append(s.records, queryRecord{query, answered})
}

func newTestService(llm completer, sink Sink) *Service {
	logger, _ := zap.NewDevelopment()
	return &Service{llm: llm, sink: sink, logger: logger}
}

func TestAskReturnsAnswerAndRecordsQuery(t *testing.T) {
	llm := &fakeCompleter{reply: "Dosage is listed on the label."}
	sink := &mockSink{}
	s := newTestService(llm, sink)

	ans, err := s.Ask(context.Background(), "u1", "What is the dosage of NP-500?")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != llm.reply {
		t.Errorf("text = %q", ans.Text)
	}
	if len(sink.records) != 1 || !sink.records[0].answered {
		t.Errorf("records = %+v, want one answered query", sink.records)
	}
}

func TestAskFailureStillRecordsQuery(t *testing.T) {
	llm := &fakeCompleter{err: fmt.Errorf("rate limited")}
	sink := &mockSink{}
	s := newTestService(llm, sink)

	if _, err := s.Ask(context.Background(), "u1", "Anything?"); err == nil {
		t.Fatal("expected error")
	}
	if len(sink.records) != 1 || sink.records[0].answered {
		t.Errorf("records = %+v, want one unanswered query", sink.records)
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	llm := &fakeCompleter{reply: "unused"}
	sink := &mockSink{}
	s := newTestService(llm, sink)

	if _, err := s.Ask(context.Background(), "u1", "   "); err == nil {
		t.Fatal("expected error for blank question")
	}
	if len(llm.asked) != 0 {
		t.Error("model called for a blank question")
	}
	if len(sink.records) != 0 {
		t.Error("analytics recorded a blank question")
	}
}

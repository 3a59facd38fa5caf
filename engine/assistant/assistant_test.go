package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

type stubExtractor struct {
	ex  Extraction
	err error
}

func (s stubExtractor) Extract(context.Context, string) (Extraction, error) { return s.ex, s.err }

type stubGenerator struct {
	reply  string
	err    error
	prompt string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, s.err
}

type stubSearch struct {
	byPhrase map[string][]domain.Product
	calls    [][]string
}

func (s *stubSearch) FanOut(_ context.Context, phrases []string, _ domain.Conversation, _ int) ([]domain.Product, error) {
	s.calls = append(s.calls, phrases)
	var out []domain.Product
	for _, p := range phrases {
		out = append(out, s.byPhrase[p]...)
	}
	return out, nil
}

var (
	gateA = domain.Product{ID: "1", Name: "Sliding Gate", Category: "gate", URL: "https://aikondistribution.com/products/sliding-gate-1"}
	gateB = domain.Product{ID: "2", Name: "Swing Gate", Category: "gate", URL: "https://aikondistribution.com/products/swing-gate-2"}
	door  = domain.Product{ID: "3", Name: "Oak Door", Category: "door", URL: "https://aikondistribution.com/products/oak-door-3"}
)

func TestReplyRejectsInjection(t *testing.T) {
	a := New(stubExtractor{}, &stubGenerator{}, &stubSearch{}, DefaultOptions(), nil)
	_, err := a.Reply(context.Background(), "gates; DROP TABLE products", nil)
	if !errors.Is(err, domain.ErrQueryInjection) {
		t.Fatalf("err = %v", err)
	}
	if _, err := a.Reply(context.Background(), "   ", nil); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("err = %v", err)
	}
}

func TestReplyAsksForClarification(t *testing.T) {
	gen := &stubGenerator{}
	a := New(stubExtractor{}, gen, &stubSearch{}, DefaultOptions(), nil)
	resp, err := a.Reply(context.Background(), "hello there", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Reply, "Could you clarify?") || gen.prompt != "" {
		t.Fatalf("reply = %q, generator called = %v", resp.Reply, gen.prompt != "")
	}
}

func TestReplyNothingFound(t *testing.T) {
	a := New(stubExtractor{ex: Extraction{Product: "skylights"}}, &stubGenerator{}, &stubSearch{}, DefaultOptions(), nil)
	resp, err := a.Reply(context.Background(), "do you sell skylights", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "Sorry, I couldn't find any skylights in our catalog." {
		t.Fatalf("reply = %q", resp.Reply)
	}
	if resp.Debug.ProductsFound == nil {
		t.Fatal("debug products should be an empty list")
	}
}

func TestReplyMergesAttributesAndStripsThink(t *testing.T) {
	search := &stubSearch{byPhrase: map[string][]domain.Product{
		"gates":       {gateA},
		"color gates": {gateB, door, gateA},
	}}
	gen := &stubGenerator{reply: "<think>\nlet me see\n</think>\nWe have the Sliding Gate."}
	a := New(stubExtractor{ex: Extraction{Product: "gates", Attributes: []string{"color"}}}, gen, search, DefaultOptions(), nil)

	resp, err := a.Reply(context.Background(), "what colors do your gates come in", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "We have the Sliding Gate." {
		t.Fatalf("reply = %q", resp.Reply)
	}
	var ids []string
	for _, p := range resp.Debug.ProductsFound {
		ids = append(ids, p.ID)
	}
	if strings.Join(ids, ",") != "1,2" {
		t.Fatalf("products = %v (door must be filtered, gate 1 deduped)", ids)
	}
	if len(search.calls) != 2 || search.calls[1][0] != "color gates" {
		t.Fatalf("searches = %v", search.calls)
	}
	if !strings.Contains(gen.prompt, gateB.URL) || strings.Contains(gen.prompt, door.URL) {
		t.Fatalf("prompt products wrong:\n%s", gen.prompt)
	}
	if strings.Contains(gen.prompt, "Previous question") {
		t.Fatal("first question treated as follow-up")
	}
}

func TestReplyFollowUpUsesHistory(t *testing.T) {
	conv := domain.Conversation{
		{Role: "user", Content: "show me gates"},
		{Role: "assistant", Content: "Try the [Sliding Gate](https://aikondistribution.com/products/sliding-gate-1)."},
	}
	gen := &stubGenerator{reply: "It is steel."}
	search := &stubSearch{byPhrase: map[string][]domain.Product{"gate": {gateA}}}
	a := New(stubExtractor{ex: Extraction{Product: "gate"}}, gen, search, DefaultOptions(), nil)

	if _, err := a.Reply(context.Background(), "what is it made of", conv); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Previously discussed: Sliding Gate", "Previous question: show me gates"} {
		if !strings.Contains(gen.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, gen.prompt)
		}
	}
}

func TestReplyPropagatesErrors(t *testing.T) {
	boom := errors.New("model offline")
	a := New(stubExtractor{err: boom}, &stubGenerator{}, &stubSearch{}, DefaultOptions(), nil)
	if _, err := a.Reply(context.Background(), "gates", nil); !errors.Is(err, boom) {
		t.Fatalf("extract err = %v", err)
	}

	search := &stubSearch{byPhrase: map[string][]domain.Product{"gate": {gateA}}}
	a = New(stubExtractor{ex: Extraction{Product: "gate"}}, &stubGenerator{err: boom}, search, DefaultOptions(), nil)
	if _, err := a.Reply(context.Background(), "gates", nil); !errors.Is(err, boom) {
		t.Fatalf("generate err = %v", err)
	}
}

func TestIsFollowUpMatchesWholeWords(t *testing.T) {
	h := history{lastQuery: "gates"}
	if isFollowUp("doors with glass", h) {
		t.Error("'with' must not match 'it'")
	}
	if !isFollowUp("Is it insulated?", h) {
		t.Error("'it' should mark a follow-up")
	}
	if isFollowUp("is it insulated", history{}) {
		t.Error("no previous question means no follow-up")
	}
}

func TestLLMExtractorParsing(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  Extraction
	}{
		{
			"fenced",
			"Sure!\n```json\n{\"product\": \"garage doors\", \"attributes\": [\"color\", \" \"], \"special_requirements\": [\"passive house compatible\"]}\n```",
			Extraction{Product: "garage doors", Attributes: []string{"color"}, SpecialRequirements: []string{"passive house compatible"}},
		},
		{
			"bare with think",
			"<think>{\"product\": \"wrong\"}</think>{\"product\": \"windows\"}",
			Extraction{Product: "windows", Attributes: []string{}, SpecialRequirements: []string{}},
		},
		{"prose", "I am not sure what you mean.", Extraction{}},
		{"null product", "{\"product\": null}", Extraction{Attributes: []string{}, SpecialRequirements: []string{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewLLMExtractor(&stubGenerator{reply: tc.reply}).Extract(context.Background(), "q")
			if err != nil {
				t.Fatal(err)
			}
			if got.Product != tc.want.Product ||
				strings.Join(got.Attributes, "|") != strings.Join(tc.want.Attributes, "|") ||
				strings.Join(got.SpecialRequirements, "|") != strings.Join(tc.want.SpecialRequirements, "|") {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

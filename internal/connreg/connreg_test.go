package connreg

import "testing"

func TestRemoveIdempotent(t *testing.T) {
	r := New()
	tok := r.NextToken()
	r.Insert(tok, nil)
	r.Bind(tok, "g", "t")

	r.Remove(tok)
	r.Remove(tok) // must not panic or corrupt state

	if toks := r.TokensFor("g", "t"); len(toks) != 0 {
		t.Fatalf("expected no bound tokens after remove, got %v", toks)
	}
	if _, ok := r.BindingFor(tok); ok {
		t.Fatalf("expected no binding for removed token")
	}
	if r.Count() != 0 {
		t.Fatalf("expected zero live connections, got %d", r.Count())
	}
}

func TestHandleOnRemovedTokenIsNoop(t *testing.T) {
	r := New()
	tok := r.NextToken()
	r.Insert(tok, nil)
	r.Remove(tok)

	called := false
	ok, err := r.Handle(tok, func(*Connection) error {
		called = true
		return nil
	})
	if ok || called || err != nil {
		t.Fatalf("expected Handle on removed token to be a no-op, got ok=%v called=%v err=%v", ok, called, err)
	}
}

func TestBindReplacesPreviousBinding(t *testing.T) {
	r := New()
	tok := r.NextToken()
	r.Insert(tok, nil)
	r.Bind(tok, "g1", "t1")
	r.Bind(tok, "g2", "t2")

	if toks := r.TokensFor("g1", "t1"); len(toks) != 0 {
		t.Fatalf("expected g1/t1 to have no bound tokens, got %v", toks)
	}
	toks := r.TokensFor("g2", "t2")
	if len(toks) != 1 || toks[0] != tok {
		t.Fatalf("expected token %d bound to g2/t2, got %v", tok, toks)
	}
}

func TestTokensForUnbound(t *testing.T) {
	r := New()
	if toks := r.TokensFor("nope", "nope"); toks != nil {
		t.Fatalf("expected nil for unbound (group, topic), got %v", toks)
	}
	if _, ok := r.RandomTokenFor("nope", "nope"); ok {
		t.Fatalf("expected no random token for unbound (group, topic)")
	}
}

func TestMultipleTokensBoundSameTopic(t *testing.T) {
	r := New()
	tokens := make(map[int]bool)
	for i := 0; i < 3; i++ {
		tok := r.NextToken()
		r.Insert(tok, nil)
		r.Bind(tok, "g", "t")
		tokens[tok] = true
	}
	got := r.TokensFor("g", "t")
	if len(got) != 3 {
		t.Fatalf("expected 3 bound tokens, got %d", len(got))
	}
	for _, tok := range got {
		if !tokens[tok] {
			t.Fatalf("unexpected token %d in TokensFor result", tok)
		}
	}
}

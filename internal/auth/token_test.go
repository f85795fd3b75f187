package auth

import (
	"testing"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)

	actor := domain.Actor{ID: "staff-1", Kind: domain.ActorKindStaff}
	token, _, err := tm.GenerateToken(actor)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.SubjectID != actor.ID {
		t.Errorf("subject = %s, want %s", claims.SubjectID, actor.ID)
	}
	if claims.Kind != domain.ActorKindStaff {
		t.Errorf("kind = %s, want %s", claims.Kind, domain.ActorKindStaff)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", 60)
	verifier := NewTokenManager("secret-b", 60)

	token, _, err := issuer.GenerateToken(domain.Actor{ID: "user-1", Kind: domain.ActorKindUser})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatal("token signed with another secret was accepted")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)
	if _, err := tm.ParseToken("not-a-token"); err == nil {
		t.Fatal("garbage token was accepted")
	}
}

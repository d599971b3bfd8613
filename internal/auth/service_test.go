package auth

import (
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)
	tok, err := svc.IssueJWT(42, "s@x.dev", "student", false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "42" || claims.Email != "s@x.dev" || claims.Role != "student" || claims.Staff {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	tok, err := NewAuthService("secret-a", time.Hour).IssueJWT(1, "x@x.dev", "teacher", true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewAuthService("secret-b", time.Hour).Parse(tok); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	svc := NewAuthService("test-secret", time.Nanosecond)
	tok, err := svc.IssueJWT(1, "x@x.dev", "student", false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := svc.Parse(tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestJWTRejectsGarbage(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)
	if _, err := svc.Parse("not-a-token"); err == nil {
		t.Fatal("garbage accepted")
	}
}

package authpw

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "correct-horse" {
		t.Fatal("hash must not equal the plain password")
	}
	if err := VerifyPassword(hash, "correct-horse"); err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if err := VerifyPassword(hash, "wrong-horse"); err == nil {
		t.Fatal("expected VerifyPassword() to reject a wrong password")
	}
}

func TestHashPasswordRejectsShort(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatal("expected HashPassword() to reject a short password")
	}
}

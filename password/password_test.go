package password

import (
	"errors"
	"strings"
	"testing"
)

func testArgon2(t *testing.T) *Argon2 {
	t.Helper()
	a, err := NewArgon2(Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return a
}

func TestArgon2HashVerify(t *testing.T) {
	a := testArgon2(t)
	encoded, err := a.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	ok, err := a.Verify("correct horse battery staple", encoded)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = a.Verify("wrong", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestArgon2RejectsWeakParams(t *testing.T) {
	if _, err := NewArgon2(Argon2Params{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); !errors.Is(err, ErrWeakArgon2Settings) {
		t.Fatalf("expected ErrWeakArgon2Settings, got %v", err)
	}
}

func TestArgon2RejectsMalformed(t *testing.T) {
	a := testArgon2(t)
	cases := []string{
		"$argon2id$v=19$m=8192,t=1,p=1$onlysalt",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=0$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5",
	}
	for _, encoded := range cases {
		if _, err := a.Verify("x", encoded); err == nil {
			t.Fatalf("expected error for %q", encoded)
		}
	}
}

func TestArgon2NeedsRehash(t *testing.T) {
	weak := testArgon2(t)
	encoded, err := weak.Hash("secret-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	strong, err := NewArgon2(Argon2Params{Memory: 16 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	if !strong.NeedsRehash(encoded) {
		t.Fatalf("expected rehash for weaker parameters")
	}
	if weak.NeedsRehash(encoded) {
		t.Fatalf("expected no rehash for identical parameters")
	}
}

func TestVerifierDispatch(t *testing.T) {
	a := testArgon2(t)
	v := NewVerifier(a)

	argonHash, err := a.Hash("argon-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	bcryptHash, err := HashBcrypt("bcrypt-secret", 4)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	if ok, err := v.Verify("argon-secret", argonHash); err != nil || !ok {
		t.Fatalf("argon verify: ok=%v err=%v", ok, err)
	}
	if ok, err := v.Verify("bcrypt-secret", bcryptHash); err != nil || !ok {
		t.Fatalf("bcrypt verify: ok=%v err=%v", ok, err)
	}
	if ok, err := v.Verify("nope", bcryptHash); err != nil || ok {
		t.Fatalf("bcrypt mismatch: ok=%v err=%v", ok, err)
	}
	if _, err := v.Verify("x", "plaintext"); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
	v.Burn("anything")
}

func TestPolicyAcceptsStrongPasswords(t *testing.T) {
	cases := []struct{ password, username, email string }{
		{"Str0ng!Passw0rd", "bob", "bob@example.com"},
		{"Tr0ub4dor&3xyZ", "alice", "alice@example.org"},
		{"ÄpfelBaum#2024x", "", ""},
	}
	for _, tc := range cases {
		if err := Check(tc.password, tc.username, tc.email); err != nil {
			t.Fatalf("Check(%q): expected success, got %v", tc.password, err)
		}
	}
}

func TestPolicySingleRuleViolations(t *testing.T) {
	cases := []struct {
		name     string
		password string
		want     error
	}{
		{"too short", "Sh0rt!pw", ErrTooShort},
		{"no upper", "str0ng!passw0rd", ErrMissingCharacterClass},
		{"no lower", "STR0NG!PASSW0RD", ErrMissingCharacterClass},
		{"no digit", "Strong!Password", ErrMissingCharacterClass},
		{"no symbol", "Str0ngPassw0rd", ErrMissingCharacterClass},
		{"contains username", "Str0ng!Bob-pass1", ErrContainsIdentifier},
		{"contains email", "x!BOB@EXAMPLE.COM1", ErrContainsIdentifier},
	}
	for _, tc := range cases {
		err := Check(tc.password, "bob", "bob@example.com")
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if !errors.Is(err, ErrPolicy) {
			t.Fatalf("%s: expected ErrPolicy, got %v", tc.name, err)
		}
		var pe *PolicyError
		if !errors.As(err, &pe) || len(pe.Violations) != 1 {
			t.Fatalf("%s: expected a single violation, got %v", tc.name, err)
		}
	}
}

func TestPolicyShortExample(t *testing.T) {
	err := Check("short1!", "bob", "bob@example.com")
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestPolicyAggregatesViolations(t *testing.T) {
	err := Check("bob", "bob", "")
	var pe *PolicyError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PolicyError, got %v", err)
	}
	if len(pe.Violations) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(pe.Violations), err)
	}
	missing := pe.Violations[1].Missing
	if len(missing) != 3 || missing[0] != ClassUpper || missing[1] != ClassDigit || missing[2] != ClassSymbol {
		t.Fatalf("unexpected missing classes %v", missing)
	}
	if !strings.Contains(err.Error(), "uppercase, digit, symbol") {
		t.Fatalf("expected missing classes in message, got %q", err.Error())
	}
}

func TestPolicyCustomRules(t *testing.T) {
	p := Policy{MinLength: 16, Symbols: "#"}
	if err := p.Check("Str0ng!Passw0rd", "", ""); !errors.Is(err, ErrTooShort) || !errors.Is(err, ErrMissingCharacterClass) {
		t.Fatalf("expected too short and missing symbol, got %v", err)
	}
	if err := p.Check("Str0ng#Passw0rdXY", "", ""); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

package signing

import "testing"

func TestSignKnownVector(t *testing.T) {
	got := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"event":"feedback.created"}`)
	if Sign("s3cr3t", body) != Sign("s3cr3t", body) {
		t.Fatalf("expected identical digests for identical input")
	}
}

func TestSignChangesWithInputs(t *testing.T) {
	base := Sign("s3cr3t", []byte(`{"a":1}`))
	if base == Sign("other", []byte(`{"a":1}`)) {
		t.Fatalf("expected digest to change with secret")
	}
	if base == Sign("s3cr3t", []byte(`{"a":2}`)) {
		t.Fatalf("expected digest to change with body")
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"event":"feedback.created","data":{"type":"bug"}}`)
	header := Header(Sign("s3cr3t", body))

	if !Verify("s3cr3t", body, header) {
		t.Fatalf("expected signature to verify")
	}
	if Verify("wrong", body, header) {
		t.Fatalf("expected verification to fail with wrong secret")
	}
	if Verify("s3cr3t", append(body, ' '), header) {
		t.Fatalf("expected verification to fail for modified body")
	}
	if Verify("s3cr3t", body, Sign("s3cr3t", body)) {
		t.Fatalf("expected verification to fail without sha256= prefix")
	}
}

package service

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"testing"
)

// signFor 按微信算法计算签名，测试独立实现避免与被测代码互证
func signFor(token, timestamp, nonce string) string {
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

func TestVerifyValidSignature(t *testing.T) {
	v := NewSignatureVerifier("my-token")

	sig := signFor("my-token", "1700000000", "abc123")
	if !v.Verify(sig, "1700000000", "abc123") {
		t.Error("expected valid signature to pass")
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	v := NewSignatureVerifier("my-token")

	sig := signFor("my-token", "1700000000", "abc123")

	if v.Verify(sig, "1700000001", "abc123") {
		t.Error("expected tampered timestamp to fail")
	}
	if v.Verify(sig, "1700000000", "abc124") {
		t.Error("expected tampered nonce to fail")
	}
	if v.Verify(sig[:len(sig)-1]+"0", "1700000000", "abc123") {
		t.Error("expected tampered signature to fail")
	}
}

func TestVerifyCaseSensitive(t *testing.T) {
	v := NewSignatureVerifier("my-token")

	sig := signFor("my-token", "1700000000", "abc123")
	upper := strings.ToUpper(sig)
	if upper == sig {
		t.Skip("signature has no letters to upcase")
	}
	if v.Verify(upper, "1700000000", "abc123") {
		t.Error("expected uppercase signature to fail, comparison must be case sensitive")
	}
}

func TestVerifyMissingInputs(t *testing.T) {
	v := NewSignatureVerifier("my-token")

	if v.Verify("", "1700000000", "abc123") {
		t.Error("expected empty signature to fail")
	}
	if v.Verify("deadbeef", "", "abc123") {
		t.Error("expected empty timestamp to fail")
	}
	if v.Verify("deadbeef", "1700000000", "") {
		t.Error("expected empty nonce to fail")
	}
}

func TestVerifyUnconfiguredToken(t *testing.T) {
	v := NewSignatureVerifier("")

	// 未配置Token时一律拒绝，包括用空Token算出来的"正确"签名
	sig := signFor("", "1700000000", "abc123")
	if v.Verify(sig, "1700000000", "abc123") {
		t.Error("expected verification to fail when token is not configured")
	}
}

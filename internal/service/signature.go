package service

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
)

// SignatureVerifier 微信服务器签名校验服务
type SignatureVerifier interface {
	// Verify 校验回调签名，返回是否合法
	Verify(signature, timestamp, nonce string) bool
}

type signatureVerifier struct {
	token string
}

// NewSignatureVerifier 创建签名校验服务
func NewSignatureVerifier(token string) SignatureVerifier {
	return &signatureVerifier{token: token}
}

func (s *signatureVerifier) Verify(signature, timestamp, nonce string) bool {
	if s.token == "" || signature == "" || timestamp == "" || nonce == "" {
		return false
	}

	parts := []string{s.token, timestamp, nonce}
	sort.Strings(parts)

	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:]) == signature
}

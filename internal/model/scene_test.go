package model

import (
	"testing"
	"time"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Now()

	pending := &LoginScene{Status: ScenePending, ExpiresAt: now.Add(time.Minute)}
	if got := pending.EffectiveStatus(now); got != ScenePending {
		t.Errorf("live pending scene: got %q", got)
	}

	stale := &LoginScene{Status: ScenePending, ExpiresAt: now.Add(-time.Minute)}
	if got := stale.EffectiveStatus(now); got != SceneExpired {
		t.Errorf("stale pending scene: got %q", got)
	}

	// scanned是终态，过了有效期也不回退
	scanned := &LoginScene{Status: SceneScanned, ExpiresAt: now.Add(-time.Minute)}
	if got := scanned.EffectiveStatus(now); got != SceneScanned {
		t.Errorf("scanned scene after expiry: got %q", got)
	}
}

func TestIsExpiredBoundary(t *testing.T) {
	now := time.Now()
	scene := &LoginScene{ExpiresAt: now}

	// 恰好到期时刻尚未过期，之后才算过期
	if scene.IsExpired(now) {
		t.Error("scene must not be expired exactly at expires_at")
	}
	if !scene.IsExpired(now.Add(time.Nanosecond)) {
		t.Error("scene must be expired after expires_at")
	}
}

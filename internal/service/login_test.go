package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"wxauth/internal/model"
	"wxauth/internal/repository"
	"wxauth/pkg/config"

	"github.com/google/uuid"
)

// fakeSceneRepo 内存场景仓储，条件更新语义与数据库实现一致
type fakeSceneRepo struct {
	mu     sync.Mutex
	scenes map[string]*model.LoginScene
}

func newFakeSceneRepo() *fakeSceneRepo {
	return &fakeSceneRepo{scenes: make(map[string]*model.LoginScene)}
}

func (r *fakeSceneRepo) Create(ctx context.Context, scene *model.LoginScene) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scenes[scene.SceneID]; ok {
		return repository.ErrSceneExists
	}
	if scene.Status == "" {
		scene.Status = model.ScenePending
	}
	if scene.CreatedAt.IsZero() {
		scene.CreatedAt = time.Now()
	}
	cp := *scene
	r.scenes[scene.SceneID] = &cp
	return nil
}

func (r *fakeSceneRepo) GetBySceneID(ctx context.Context, sceneID string) (*model.LoginScene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scene, ok := r.scenes[sceneID]
	if !ok {
		return nil, nil
	}
	if scene.Status == model.ScenePending && scene.IsExpired(time.Now()) {
		scene.Status = model.SceneExpired
	}
	cp := *scene
	return &cp, nil
}

func (r *fakeSceneRepo) MarkScanned(ctx context.Context, sceneID, userInfo, tokens string) (repository.MarkScannedResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scene, ok := r.scenes[sceneID]
	if !ok {
		return repository.MarkScannedNotFoundOrExpired, nil
	}
	now := time.Now()
	if scene.Status == model.ScenePending && !scene.IsExpired(now) {
		scene.Status = model.SceneScanned
		scene.UserInfo = userInfo
		scene.Tokens = tokens
		scene.ScannedAt = &now
		return repository.MarkScannedSuccess, nil
	}
	if scene.Status == model.SceneScanned {
		return repository.MarkScannedAlready, nil
	}
	return repository.MarkScannedNotFoundOrExpired, nil
}

func (r *fakeSceneRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, scene := range r.scenes {
		if scene.IsExpired(time.Now()) {
			delete(r.scenes, id)
			deleted++
		}
	}
	return deleted, nil
}

// expire 将场景直接推到过期时刻（仅测试用）
func (r *fakeSceneRepo) expire(sceneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if scene, ok := r.scenes[sceneID]; ok {
		scene.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// fakeUserRepo 内存用户仓储
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByOpenID(ctx context.Context, openID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.OpenID == openID {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByUnionID(ctx context.Context, unionID string) (*model.User, error) {
	if unionID == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.UnionID == unionID {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return errors.New("user not found")
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

func (r *fakeUserRepo) UpdateLastLogin(ctx context.Context, userID string, lastLoginTime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		user.LastLoginAt = &lastLoginTime
	}
	return nil
}

// fakeTokenService 计数式令牌服务
type fakeTokenService struct {
	mu      sync.Mutex
	issued  int
	revoked []string
}

func (s *fakeTokenService) GenerateTokenPair(ctx context.Context, user *model.User) (*model.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return &model.TokenPair{
		AccessToken:          fmt.Sprintf("access-%s-%d", user.ID, s.issued),
		RefreshToken:         fmt.Sprintf("refresh-%s-%d", user.ID, s.issued),
		AccessTokenExpireIn:  2 * time.Hour,
		RefreshTokenExpireIn: 7 * 24 * time.Hour,
	}, nil
}

func (s *fakeTokenService) ValidateToken(ctx context.Context, tokenString string, tokenType model.TokenType) (*model.TokenClaims, error) {
	return nil, ErrInvalidToken
}

func (s *fakeTokenService) RefreshToken(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	return nil, ErrInvalidToken
}

func (s *fakeTokenService) RevokeToken(ctx context.Context, tokenString string, tokenType model.TokenType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = append(s.revoked, tokenString)
	return nil
}

func (s *fakeTokenService) RevokeUserRefreshToken(ctx context.Context, userID string) error {
	return nil
}

// fakeWechatClient 可编排的微信API客户端
type fakeWechatClient struct {
	configured    bool
	qrErr         error
	subscriberErr error
	subscribers   map[string]*model.WechatUserInfo
}

func newFakeWechatClient() *fakeWechatClient {
	return &fakeWechatClient{
		configured:  true,
		subscribers: make(map[string]*model.WechatUserInfo),
	}
}

func (c *fakeWechatClient) IsConfigured() bool { return c.configured }

func (c *fakeWechatClient) GetAccessToken(ctx context.Context) (string, error) {
	if !c.configured {
		return "", ErrWechatNotConfigured
	}
	return "fake-token", nil
}

func (c *fakeWechatClient) GetSubscriberInfo(ctx context.Context, openID string) (*model.WechatUserInfo, error) {
	if c.subscriberErr != nil {
		return nil, c.subscriberErr
	}
	if info, ok := c.subscribers[openID]; ok {
		return info, nil
	}
	return &model.WechatUserInfo{OpenID: openID, Subscribe: 1}, nil
}

func (c *fakeWechatClient) CreateTempQRTicket(ctx context.Context, sceneValue string, expireSeconds int) (*model.WechatQRTicketResponse, error) {
	if c.qrErr != nil {
		return nil, c.qrErr
	}
	return &model.WechatQRTicketResponse{
		Ticket:        "ticket-" + sceneValue,
		ExpireSeconds: expireSeconds,
		URL:           "http://weixin.qq.com/q/" + sceneValue,
	}, nil
}

func (c *fakeWechatClient) CreatePermanentQRTicket(ctx context.Context, sceneValue string) (*model.WechatQRTicketResponse, error) {
	if c.qrErr != nil {
		return nil, c.qrErr
	}
	return &model.WechatQRTicketResponse{
		Ticket: "perm-ticket-" + sceneValue,
		URL:    "http://weixin.qq.com/q/" + sceneValue,
	}, nil
}

func (c *fakeWechatClient) BuildAuthURL(scope, state string) (string, error) {
	if !c.configured {
		return "", ErrWechatNotConfigured
	}
	return "https://open.weixin.qq.com/connect/oauth2/authorize?state=" + state, nil
}

func (c *fakeWechatClient) GetOAuthToken(ctx context.Context, code string) (*model.WechatOAuthTokenResponse, error) {
	if code != "good-code" {
		return nil, ErrProviderUnavailable
	}
	return &model.WechatOAuthTokenResponse{
		AccessToken: "oauth-token",
		OpenID:      "oauth-openid",
		Scope:       "snsapi_base",
	}, nil
}

func (c *fakeWechatClient) GetOAuthUserInfo(ctx context.Context, accessToken, openID string) (*model.WechatUserInfo, error) {
	return &model.WechatUserInfo{OpenID: openID}, nil
}

func (c *fakeWechatClient) QRCodeURL(ticket string) string {
	return "https://mp.weixin.qq.com/cgi-bin/showqrcode?ticket=" + ticket
}

// newTestLoginService 组装登录服务与全部内存依赖
func newTestLoginService() (LoginService, *fakeSceneRepo, *fakeUserRepo, *fakeTokenService, *fakeWechatClient) {
	scenes := newFakeSceneRepo()
	users := newFakeUserRepo()
	tokens := &fakeTokenService{}
	client := newFakeWechatClient()
	cfg := &config.WeChatConfig{LoginSceneTTL: 300}
	svc := NewLoginService(cfg, client, scenes, users, tokens)
	return svc, scenes, users, tokens, client
}

func TestBeginLoginCreatesPendingScene(t *testing.T) {
	svc, scenes, _, _, _ := newTestLoginService()

	resp, err := svc.BeginLogin(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}
	if resp.SceneValue == "" {
		t.Fatal("expected generated scene value")
	}
	if !IsLoginScene(resp.SceneValue) {
		t.Errorf("expected login scene prefix, got %q", resp.SceneValue)
	}
	if resp.IsMock {
		t.Error("expected real ticket, got mock")
	}

	scene, err := scenes.GetBySceneID(context.Background(), resp.SceneValue)
	if err != nil {
		t.Fatalf("GetBySceneID error: %v", err)
	}
	if scene == nil {
		t.Fatal("expected scene row to be created")
	}
	if scene.Status != model.ScenePending {
		t.Errorf("expected pending status, got %q", scene.Status)
	}
}

func TestBeginLoginUniqueSceneValues(t *testing.T) {
	svc, _, _, _, _ := newTestLoginService()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		resp, err := svc.BeginLogin(context.Background(), "", 0)
		if err != nil {
			t.Fatalf("BeginLogin error: %v", err)
		}
		if seen[resp.SceneValue] {
			t.Fatalf("duplicate scene value generated: %q", resp.SceneValue)
		}
		seen[resp.SceneValue] = true
	}
}

func TestBeginLoginMockFallbackOnUnauthorized(t *testing.T) {
	svc, scenes, _, _, client := newTestLoginService()
	client.qrErr = fmt.Errorf("%w: errmsg=api unauthorized", ErrQRCodeUnauthorized)

	resp, err := svc.BeginLogin(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}
	if !resp.IsMock {
		t.Fatal("expected mock qrcode on 48001")
	}
	if resp.ErrorInfo == nil || resp.ErrorInfo.Code != 48001 {
		t.Error("expected error info with code 48001")
	}
	if resp.Fallback == nil || resp.Fallback.URL == "" {
		t.Error("expected fallback info")
	}

	// 降级模式下场景仍要入库，模拟扫码才能走通
	scene, _ := scenes.GetBySceneID(context.Background(), resp.SceneValue)
	if scene == nil {
		t.Fatal("expected scene row for mock qrcode")
	}
}

func TestBeginLoginOtherProviderErrors(t *testing.T) {
	svc, _, _, _, client := newTestLoginService()
	client.qrErr = fmt.Errorf("%w: errcode=40001", ErrProviderUnavailable)

	if _, err := svc.BeginLogin(context.Background(), "", 0); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestPollUnknownSceneNormalizedToExpired(t *testing.T) {
	svc, _, _, _, _ := newTestLoginService()

	resp, err := svc.Poll(context.Background(), "login_does_not_exist")
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if resp.Status != model.SceneExpired {
		t.Errorf("expected expired status for unknown scene, got %q", resp.Status)
	}
	if resp.Tokens != nil {
		t.Error("expected no tokens for unknown scene")
	}
}

func TestPollExpiredScene(t *testing.T) {
	svc, scenes, _, _, _ := newTestLoginService()

	created, err := svc.BeginLogin(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}
	scenes.expire(created.SceneValue)

	resp, err := svc.Poll(context.Background(), created.SceneValue)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if resp.Status != model.SceneExpired {
		t.Errorf("expected expired status, got %q", resp.Status)
	}
}

func TestScanLoginRendezvous(t *testing.T) {
	svc, _, users, _, _ := newTestLoginService()
	ctx := context.Background()

	created, err := svc.BeginLogin(ctx, "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}

	if err := svc.CompleteLogin(ctx, "oTestOpenID123456", created.SceneValue); err != nil {
		t.Fatalf("CompleteLogin error: %v", err)
	}

	resp, err := svc.Poll(ctx, created.SceneValue)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if resp.Status != model.SceneScanned {
		t.Fatalf("expected scanned status, got %q", resp.Status)
	}
	if resp.Tokens == nil || resp.Tokens.AccessToken == "" {
		t.Fatal("expected tokens in scanned response")
	}
	if resp.UserInfo == nil || resp.UserInfo.ID == "" {
		t.Fatal("expected user info in scanned response")
	}
	if resp.ScannedAt == nil {
		t.Error("expected scanned_at timestamp")
	}

	// 重复轮询读到同一结果
	again, err := svc.Poll(ctx, created.SceneValue)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if again.Tokens.AccessToken != resp.Tokens.AccessToken {
		t.Error("expected repeatable reads after scan")
	}

	if count, _ := users.Count(ctx); count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestDuplicateScanKeepsFirstResult(t *testing.T) {
	svc, _, _, _, _ := newTestLoginService()
	ctx := context.Background()

	created, err := svc.BeginLogin(ctx, "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}

	if err := svc.CompleteLogin(ctx, "oTestOpenID123456", created.SceneValue); err != nil {
		t.Fatalf("first CompleteLogin error: %v", err)
	}

	first, _ := svc.Poll(ctx, created.SceneValue)

	// 微信会重投同一条回调，第二次完成必须不覆盖已写入的结果
	err = svc.CompleteLogin(ctx, "oTestOpenID123456", created.SceneValue)
	if !errors.Is(err, ErrSceneAlreadyScanned) {
		t.Fatalf("expected ErrSceneAlreadyScanned, got %v", err)
	}

	second, _ := svc.Poll(ctx, created.SceneValue)
	if second.Tokens.AccessToken != first.Tokens.AccessToken {
		t.Error("duplicate scan overwrote the stored tokens")
	}
}

func TestScanAfterExpiryRejected(t *testing.T) {
	svc, scenes, _, tokens, _ := newTestLoginService()
	ctx := context.Background()

	created, err := svc.BeginLogin(ctx, "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}
	scenes.expire(created.SceneValue)

	err = svc.CompleteLogin(ctx, "oTestOpenID123456", created.SceneValue)
	if !errors.Is(err, ErrSceneNotFoundOrExpired) {
		t.Fatalf("expected ErrSceneNotFoundOrExpired, got %v", err)
	}

	resp, _ := svc.Poll(ctx, created.SceneValue)
	if resp.Status != model.SceneExpired {
		t.Errorf("expected scene to stay expired, got %q", resp.Status)
	}
	if resp.Tokens != nil {
		t.Error("expired scene must not expose tokens")
	}
	if tokens.issued > 0 && len(tokens.revoked) == 0 {
		t.Error("tokens issued for expired scene were not revoked")
	}
}

func TestResolveWechatUserUpsert(t *testing.T) {
	svc, _, users, _, _ := newTestLoginService()
	ctx := context.Background()

	info := &model.WechatUserInfo{
		OpenID:    "oTestOpenID123456",
		Nickname:  "张三",
		Subscribe: 1,
	}
	first, err := svc.ResolveWechatUser(ctx, info)
	if err != nil {
		t.Fatalf("ResolveWechatUser error: %v", err)
	}
	if first.Nickname != "张三" {
		t.Errorf("expected nickname preserved, got %q", first.Nickname)
	}

	// 同一openid再次出现必须命中同一账号
	info.Nickname = "李四"
	second, err := svc.ResolveWechatUser(ctx, info)
	if err != nil {
		t.Fatalf("ResolveWechatUser error: %v", err)
	}
	if second.ID != first.ID {
		t.Error("expected same user for same openid")
	}
	if second.Nickname != "李四" {
		t.Errorf("expected last-write-wins nickname, got %q", second.Nickname)
	}

	if count, _ := users.Count(ctx); count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestResolveWechatUserMergesByUnionID(t *testing.T) {
	svc, _, users, _, _ := newTestLoginService()
	ctx := context.Background()

	existing := &model.User{
		Username: "existing",
		OpenID:   "oOtherAppOpenID00",
		UnionID:  "uUnionShared00001",
		Status:   model.UserStatusEnabled,
	}
	if err := users.Create(ctx, existing); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	resolved, err := svc.ResolveWechatUser(ctx, &model.WechatUserInfo{
		OpenID:  "oThisAppOpenID000",
		UnionID: "uUnionShared00001",
	})
	if err != nil {
		t.Fatalf("ResolveWechatUser error: %v", err)
	}
	if resolved.ID != existing.ID {
		t.Error("expected unionid match to reuse existing account")
	}
	if resolved.OpenID != "oThisAppOpenID000" {
		t.Errorf("expected openid relinked, got %q", resolved.OpenID)
	}
	if count, _ := users.Count(ctx); count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestResolveWechatUserPlaceholderNickname(t *testing.T) {
	svc, _, _, _, _ := newTestLoginService()

	resolved, err := svc.ResolveWechatUser(context.Background(), &model.WechatUserInfo{
		OpenID: "oTestOpenID123456",
	})
	if err != nil {
		t.Fatalf("ResolveWechatUser error: %v", err)
	}
	if resolved.Nickname != "微信用户_123456" {
		t.Errorf("expected placeholder nickname from openid tail, got %q", resolved.Nickname)
	}
}

func TestMarkUnsubscribedKeepsAccount(t *testing.T) {
	svc, _, users, _, _ := newTestLoginService()
	ctx := context.Background()

	resolved, err := svc.ResolveWechatUser(ctx, &model.WechatUserInfo{
		OpenID:    "oTestOpenID123456",
		Subscribe: 1,
	})
	if err != nil {
		t.Fatalf("ResolveWechatUser error: %v", err)
	}
	if !resolved.Subscribed {
		t.Fatal("expected subscribed flag set")
	}

	if err := svc.MarkUnsubscribed(ctx, "oTestOpenID123456"); err != nil {
		t.Fatalf("MarkUnsubscribed error: %v", err)
	}

	user, _ := users.GetByOpenID(ctx, "oTestOpenID123456")
	if user == nil {
		t.Fatal("expected account to survive unsubscribe")
	}
	if user.Subscribed {
		t.Error("expected subscribed flag cleared")
	}

	// 陌生openid的取关事件不报错
	if err := svc.MarkUnsubscribed(ctx, "oNeverSeenOpenID0"); err != nil {
		t.Errorf("MarkUnsubscribed for unknown openid: %v", err)
	}
}

func TestSimulateScanCompletesLogin(t *testing.T) {
	svc, _, _, _, client := newTestLoginService()
	client.qrErr = fmt.Errorf("%w", ErrQRCodeUnauthorized)
	ctx := context.Background()

	created, err := svc.BeginLogin(ctx, "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}

	if err := svc.SimulateScan(ctx, "", created.SceneValue); err != nil {
		t.Fatalf("SimulateScan error: %v", err)
	}

	resp, _ := svc.Poll(ctx, created.SceneValue)
	if resp.Status != model.SceneScanned {
		t.Errorf("expected scanned after simulate, got %q", resp.Status)
	}
}

func TestOAuthLogin(t *testing.T) {
	svc, _, _, _, _ := newTestLoginService()

	resp, err := svc.OAuthLogin(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("OAuthLogin error: %v", err)
	}
	if resp.User == nil || resp.Tokens == nil {
		t.Fatal("expected user and tokens in oauth login response")
	}

	if _, err := svc.OAuthLogin(context.Background(), "bad-code"); err == nil {
		t.Error("expected error for bad code")
	}
}

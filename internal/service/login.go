package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"wxauth/internal/model"
	"wxauth/internal/repository"
	"wxauth/pkg/config"
	"wxauth/pkg/logger"

	"github.com/google/uuid"
)

const (
	// LoginScenePrefix 登录场景值前缀，带此前缀的扫码事件进入登录汇合流程
	LoginScenePrefix = "login_"

	// qrscenePrefix 关注事件中微信附加的场景前缀
	qrscenePrefix = "qrscene_"

	// defaultLoginSceneTTL 登录二维码默认有效期
	defaultLoginSceneTTL = 300
)

// NormalizeSceneKey 去掉关注事件EventKey上的qrscene_前缀
func NormalizeSceneKey(eventKey string) string {
	return strings.TrimPrefix(eventKey, qrscenePrefix)
}

// IsLoginScene 判断场景值是否属于扫码登录
func IsLoginScene(sceneKey string) bool {
	return strings.HasPrefix(sceneKey, LoginScenePrefix)
}

// LoginService 扫码登录服务接口，浏览器轮询与微信回调在此汇合
type LoginService interface {
	// BeginLogin 创建登录场景并生成二维码；sceneValue为空时自动生成
	BeginLogin(ctx context.Context, sceneValue string, expireSeconds int) (*model.QRCodeResponse, error)

	// CreatePermanentQR 创建永久场景二维码（推广码等非登录场景）
	CreatePermanentQR(ctx context.Context, sceneValue string) (*model.QRCodeResponse, error)

	// Poll 查询场景状态；不存在或已过期的场景统一按expired返回
	Poll(ctx context.Context, sceneID string) (*model.SceneStatusResponse, error)

	// CompleteLogin 处理扫码回调：拉取用户信息、登录并写入场景结果
	CompleteLogin(ctx context.Context, openID, sceneID string) error

	// SimulateScan 模拟扫码完成登录（仅测试接口使用）
	SimulateScan(ctx context.Context, openID, sceneID string) error

	// ResolveWechatUser 按openid→unionid→新建的顺序关联本地用户
	ResolveWechatUser(ctx context.Context, info *model.WechatUserInfo) (*model.User, error)

	// MarkUnsubscribed 取消关注时保留账号关联，仅翻转关注标记
	MarkUnsubscribed(ctx context.Context, openID string) error

	// OAuthLogin 网页授权登录：code换token、拉取用户信息、签发令牌
	OAuthLogin(ctx context.Context, code string) (*model.WechatLoginResponse, error)
}

// loginService 扫码登录服务实现
type loginService struct {
	cfg    *config.WeChatConfig
	client WechatClient
	scenes repository.SceneRepository
	users  repository.UserRepository
	tokens TokenService
}

// NewLoginService 创建扫码登录服务实例
func NewLoginService(
	cfg *config.WeChatConfig,
	client WechatClient,
	scenes repository.SceneRepository,
	users repository.UserRepository,
	tokens TokenService,
) LoginService {
	return &loginService{
		cfg:    cfg,
		client: client,
		scenes: scenes,
		users:  users,
		tokens: tokens,
	}
}

// generateSceneValue 生成不可预测的登录场景值
func generateSceneValue() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s%d_%s", LoginScenePrefix, time.Now().UnixMilli(), raw[:9])
}

// BeginLogin 创建登录场景并生成二维码
func (s *loginService) BeginLogin(ctx context.Context, sceneValue string, expireSeconds int) (*model.QRCodeResponse, error) {
	if expireSeconds <= 0 {
		expireSeconds = s.cfg.LoginSceneTTL
	}
	if expireSeconds <= 0 {
		expireSeconds = defaultLoginSceneTTL
	}
	if sceneValue == "" {
		sceneValue = generateSceneValue()
	}

	resp, err := s.createTicket(ctx, sceneValue, expireSeconds)
	if err != nil {
		return nil, err
	}

	scene := &model.LoginScene{
		SceneID:   sceneValue,
		Status:    model.ScenePending,
		ExpiresAt: time.Now().Add(time.Duration(expireSeconds) * time.Second),
	}
	if err := s.scenes.Create(ctx, scene); err != nil {
		return nil, fmt.Errorf("failed to create login scene: %w", err)
	}

	logger.Info("[QRCode] login scene created: %s (ttl=%ds, mock=%v)", sceneValue, expireSeconds, resp.IsMock)
	return resp, nil
}

// createTicket 调用二维码接口，48001时降级为模拟二维码
func (s *loginService) createTicket(ctx context.Context, sceneValue string, expireSeconds int) (*model.QRCodeResponse, error) {
	ticket, err := s.client.CreateTempQRTicket(ctx, sceneValue, expireSeconds)
	if err == nil {
		return &model.QRCodeResponse{
			Ticket:        ticket.Ticket,
			ExpireSeconds: ticket.ExpireSeconds,
			URL:           ticket.URL,
			QRCodeURL:     s.client.QRCodeURL(ticket.Ticket),
			SceneValue:    sceneValue,
		}, nil
	}
	if !errors.Is(err, ErrQRCodeUnauthorized) {
		return nil, err
	}

	// 订阅号/测试号没有二维码接口权限，返回模拟二维码让流程可以走通
	logger.Warn("[QRCode] qrcode api unauthorized (48001), falling back to mock qrcode")
	mockTicket := fmt.Sprintf("mock_ticket_%d_%s", time.Now().UnixMilli(), sceneValue)
	return &model.QRCodeResponse{
		Ticket:        mockTicket,
		ExpireSeconds: expireSeconds,
		URL:           s.client.QRCodeURL(mockTicket),
		QRCodeURL:     s.client.QRCodeURL(mockTicket),
		SceneValue:    sceneValue,
		IsMock:        true,
		ErrorInfo: &model.QRErrorInfo{
			Code:    48001,
			Message: "API unauthorized - using mock QR code for testing",
			Suggestions: []string{
				"Upgrade to WeChat Service Account (服务号)",
				"Enable QR code interface in WeChat admin panel",
				"Check account type and permissions",
			},
		},
		Fallback: &model.QRFallback{
			Type:        "subscription_qr",
			Description: "使用公众号关注二维码",
			URL:         fmt.Sprintf("https://mp.weixin.qq.com/mp/qrcode?scene=%s&size=L", url.QueryEscape(sceneValue)),
		},
	}, nil
}

// CreatePermanentQR 创建永久场景二维码
func (s *loginService) CreatePermanentQR(ctx context.Context, sceneValue string) (*model.QRCodeResponse, error) {
	ticket, err := s.client.CreatePermanentQRTicket(ctx, sceneValue)
	if err != nil {
		return nil, err
	}
	return &model.QRCodeResponse{
		Ticket:     ticket.Ticket,
		URL:        ticket.URL,
		QRCodeURL:  s.client.QRCodeURL(ticket.Ticket),
		SceneValue: sceneValue,
	}, nil
}

// Poll 查询场景状态
func (s *loginService) Poll(ctx context.Context, sceneID string) (*model.SceneStatusResponse, error) {
	scene, err := s.scenes.GetBySceneID(ctx, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to query login scene: %w", err)
	}

	// 不存在与过期对外不可区分，避免场景值探测
	if scene == nil {
		return &model.SceneStatusResponse{
			Status:  model.SceneExpired,
			Message: "二维码不存在或已过期",
		}, nil
	}

	now := time.Now()
	switch scene.EffectiveStatus(now) {
	case model.SceneScanned:
		resp := &model.SceneStatusResponse{
			Status:    model.SceneScanned,
			CreatedAt: &scene.CreatedAt,
			ScannedAt: scene.ScannedAt,
		}
		if scene.UserInfo != "" {
			var info model.UserSimpleInfo
			if err := json.Unmarshal([]byte(scene.UserInfo), &info); err == nil {
				resp.UserInfo = &info
			}
		}
		if scene.Tokens != "" {
			var pair model.TokenPair
			if err := json.Unmarshal([]byte(scene.Tokens), &pair); err == nil {
				resp.Tokens = &pair
			}
		}
		return resp, nil
	case model.SceneExpired:
		return &model.SceneStatusResponse{
			Status:  model.SceneExpired,
			Message: "二维码不存在或已过期",
		}, nil
	default:
		return &model.SceneStatusResponse{
			Status:    model.ScenePending,
			CreatedAt: &scene.CreatedAt,
		}, nil
	}
}

// CompleteLogin 处理扫码回调
func (s *loginService) CompleteLogin(ctx context.Context, openID, sceneID string) error {
	info, err := s.client.GetSubscriberInfo(ctx, openID)
	if err != nil {
		// 拉取失败时退化为仅openid登录，不阻断扫码流程
		logger.Warn("[WeChat] failed to fetch subscriber info for %s: %v", openID, err)
		info = &model.WechatUserInfo{OpenID: openID, Subscribe: 1}
	}
	return s.completeWithInfo(ctx, sceneID, info)
}

// SimulateScan 模拟扫码完成登录
func (s *loginService) SimulateScan(ctx context.Context, openID, sceneID string) error {
	if openID == "" {
		openID = "mock_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	}
	info := &model.WechatUserInfo{
		OpenID:    openID,
		Nickname:  "测试用户_" + lastChars(openID, 6),
		Subscribe: 1,
	}
	return s.completeWithInfo(ctx, sceneID, info)
}

// completeWithInfo 关联用户、签发令牌并原子写入场景结果
func (s *loginService) completeWithInfo(ctx context.Context, sceneID string, info *model.WechatUserInfo) error {
	// 先做一次状态预检，重复投递的回调在签发令牌前就能拦下
	scene, err := s.scenes.GetBySceneID(ctx, sceneID)
	if err != nil {
		return fmt.Errorf("failed to query login scene: %w", err)
	}
	if scene == nil {
		return ErrSceneNotFoundOrExpired
	}
	switch scene.EffectiveStatus(time.Now()) {
	case model.SceneScanned:
		return ErrSceneAlreadyScanned
	case model.SceneExpired:
		return ErrSceneNotFoundOrExpired
	}

	user, err := s.ResolveWechatUser(ctx, info)
	if err != nil {
		return err
	}
	if user.Status == model.UserStatusDisabled {
		return ErrUserDisabled
	}

	pair, err := s.tokens.GenerateTokenPair(ctx, user)
	if err != nil {
		return err
	}

	userJSON, err := json.Marshal(user.SimpleInfo())
	if err != nil {
		return fmt.Errorf("failed to marshal user info: %w", err)
	}
	tokensJSON, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	result, err := s.scenes.MarkScanned(ctx, sceneID, string(userJSON), string(tokensJSON))
	if err != nil {
		return fmt.Errorf("failed to mark scene scanned: %w", err)
	}

	switch result {
	case repository.MarkScannedSuccess:
		if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
			logger.Warn("[WeChat] failed to update last login for %s: %v", user.ID, err)
		}
		logger.Info("[WeChat] scan login completed: scene=%s user=%s", sceneID, user.ID)
		return nil
	case repository.MarkScannedAlready:
		// 另一条回调已经写入结果，本次签发的令牌对直接作废不下发
		logger.Info("[WeChat] duplicate scan for scene %s, issued tokens discarded", sceneID)
		return ErrSceneAlreadyScanned
	default:
		// 过期后才到达的扫码：作废刚签发的令牌对
		if err := s.tokens.RevokeToken(ctx, pair.RefreshToken, model.RefreshToken); err != nil {
			logger.Warn("[WeChat] failed to revoke tokens for expired scene %s: %v", sceneID, err)
		}
		return ErrSceneNotFoundOrExpired
	}
}

// ResolveWechatUser 按openid→unionid→新建的顺序关联本地用户
func (s *loginService) ResolveWechatUser(ctx context.Context, info *model.WechatUserInfo) (*model.User, error) {
	user, err := s.users.GetByOpenID(ctx, info.OpenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user by openid: %w", err)
	}
	if user == nil {
		// openid未命中时尝试unionid，同一微信号在其他入口注册过的账号在这里合并
		user, err = s.users.GetByUnionID(ctx, info.UnionID)
		if err != nil {
			return nil, fmt.Errorf("failed to query user by unionid: %w", err)
		}
	}

	if user == nil {
		user = &model.User{
			Username: "wx_" + lastChars(info.OpenID, 12),
			Password: uuid.New().String(),
			Status:   model.UserStatusEnabled,
		}
		applyWechatInfo(user, info)
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		logger.Info("[WeChat] new user created from openid %s", info.OpenID)
		return user, nil
	}

	applyWechatInfo(user, info)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// applyWechatInfo 用微信资料覆盖用户的微信字段（最后一次为准）
func applyWechatInfo(user *model.User, info *model.WechatUserInfo) {
	user.OpenID = info.OpenID
	user.UnionID = info.UnionID
	if info.Nickname != "" {
		user.Nickname = info.Nickname
	} else if user.Nickname == "" {
		user.Nickname = "微信用户_" + lastChars(info.OpenID, 6)
	}
	if info.HeadImgURL != "" {
		user.Avatar = info.HeadImgURL
	}
	user.Subscribed = info.Subscribe == 1
	if info.SubscribeTime > 0 {
		t := time.Unix(info.SubscribeTime, 0)
		user.SubscribeTime = &t
	}
	user.SubscribeScene = info.SubscribeScene
	user.QRSceneStr = info.QRSceneStr
	if info.QRScene != 0 {
		user.QRScene = fmt.Sprintf("%d", info.QRScene)
	}
	user.Language = info.Language
	user.Province = info.Province
	user.City = info.City
	user.Country = info.Country
	user.Remark = info.Remark
}

// lastChars 取字符串末尾n个字符
func lastChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// MarkUnsubscribed 取消关注时保留账号关联，仅翻转关注标记
func (s *loginService) MarkUnsubscribed(ctx context.Context, openID string) error {
	user, err := s.users.GetByOpenID(ctx, openID)
	if err != nil {
		return fmt.Errorf("failed to query user by openid: %w", err)
	}
	if user == nil {
		return nil
	}
	user.Subscribed = false
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to mark user unsubscribed: %w", err)
	}
	logger.Info("[WeChat] user %s unsubscribed", user.ID)
	return nil
}

// OAuthLogin 网页授权登录
func (s *loginService) OAuthLogin(ctx context.Context, code string) (*model.WechatLoginResponse, error) {
	oauthToken, err := s.client.GetOAuthToken(ctx, code)
	if err != nil {
		return nil, err
	}

	var info *model.WechatUserInfo
	if strings.Contains(oauthToken.Scope, "snsapi_userinfo") {
		info, err = s.client.GetOAuthUserInfo(ctx, oauthToken.AccessToken, oauthToken.OpenID)
		if err != nil {
			logger.Warn("[WeChat] failed to fetch oauth user info: %v", err)
			info = nil
		}
	}
	if info == nil {
		info = &model.WechatUserInfo{
			OpenID:  oauthToken.OpenID,
			UnionID: oauthToken.UnionID,
		}
	}

	user, err := s.ResolveWechatUser(ctx, info)
	if err != nil {
		return nil, err
	}
	if user.Status == model.UserStatusDisabled {
		return nil, ErrUserDisabled
	}

	pair, err := s.tokens.GenerateTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		logger.Warn("[WeChat] failed to update last login for %s: %v", user.ID, err)
	}

	return &model.WechatLoginResponse{
		User:      user.SimpleInfo(),
		Tokens:    pair,
		ExpiresIn: int64(pair.AccessTokenExpireIn.Seconds()),
	}, nil
}

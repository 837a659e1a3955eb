package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wxauth/internal/model"
	"wxauth/pkg/config"
	"wxauth/pkg/logger"
	"wxauth/pkg/redis"
)

const (
	wechatAPIBase   = "https://api.weixin.qq.com"
	wechatOpenBase  = "https://open.weixin.qq.com"
	wechatShowQRURL = "https://mp.weixin.qq.com/cgi-bin/showqrcode"

	// accessTokenKey 公众号凭证在Redis中的缓存键
	accessTokenKey = "wechat:access_token"
	// accessTokenSafety 凭证缓存提前失效的安全余量(秒)
	accessTokenSafety = 300

	defaultAPITimeout = 10 * time.Second
)

// WechatClient 微信公众号API客户端
type WechatClient interface {
	// IsConfigured 是否已配置AppID和AppSecret
	IsConfigured() bool

	// GetAccessToken 获取公众号接口调用凭证(带Redis缓存)
	GetAccessToken(ctx context.Context) (string, error)

	// GetSubscriberInfo 通过openid拉取关注者信息
	GetSubscriberInfo(ctx context.Context, openID string) (*model.WechatUserInfo, error)

	// CreateTempQRTicket 创建临时场景二维码ticket
	CreateTempQRTicket(ctx context.Context, sceneValue string, expireSeconds int) (*model.WechatQRTicketResponse, error)

	// CreatePermanentQRTicket 创建永久场景二维码ticket
	CreatePermanentQRTicket(ctx context.Context, sceneValue string) (*model.WechatQRTicketResponse, error)

	// BuildAuthURL 构造网页授权跳转地址
	BuildAuthURL(scope, state string) (string, error)

	// GetOAuthToken 通过网页授权code换取access_token
	GetOAuthToken(ctx context.Context, code string) (*model.WechatOAuthTokenResponse, error)

	// GetOAuthUserInfo 用网页授权access_token拉取用户信息
	GetOAuthUserInfo(ctx context.Context, accessToken, openID string) (*model.WechatUserInfo, error)

	// QRCodeURL 由ticket拼出二维码图片地址
	QRCodeURL(ticket string) string
}

type wechatClient struct {
	cfg    *config.WeChatConfig
	redis  *redis.Client
	client *http.Client
}

// NewWechatClient 创建微信API客户端
func NewWechatClient(cfg *config.WeChatConfig, redisClient *redis.Client) WechatClient {
	timeout := defaultAPITimeout
	if cfg.APITimeout > 0 {
		timeout = time.Duration(cfg.APITimeout) * time.Second
	}
	return &wechatClient{
		cfg:    cfg,
		redis:  redisClient,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *wechatClient) IsConfigured() bool {
	return c.cfg.AppID != "" && c.cfg.AppSecret != ""
}

// getJSON 发送GET请求并解析JSON响应
func (c *wechatClient) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// postJSON 发送JSON体POST请求并解析JSON响应
func (c *wechatClient) postJSON(ctx context.Context, rawURL string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// GetAccessToken 获取公众号接口调用凭证(带Redis缓存)
func (c *wechatClient) GetAccessToken(ctx context.Context) (string, error) {
	if !c.IsConfigured() {
		return "", ErrWechatNotConfigured
	}

	// 先查缓存
	cached, err := c.redis.Get(ctx, accessTokenKey)
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && !redis.IsNil(err) {
		logger.Warn("failed to read cached access token: %v", err)
	}

	tokenURL := fmt.Sprintf("%s/cgi-bin/token?grant_type=client_credential&appid=%s&secret=%s",
		wechatAPIBase, url.QueryEscape(c.cfg.AppID), url.QueryEscape(c.cfg.AppSecret))

	var result model.WechatAccessTokenResponse
	if err := c.getJSON(ctx, tokenURL, &result); err != nil {
		return "", err
	}
	if result.ErrCode != 0 || result.AccessToken == "" {
		return "", fmt.Errorf("%w: errcode=%d errmsg=%s", ErrProviderUnavailable, result.ErrCode, result.ErrMsg)
	}

	// 提前一段时间过期，避免边界上拿到失效凭证
	ttl := time.Duration(result.ExpiresIn-accessTokenSafety) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := c.redis.Set(ctx, accessTokenKey, result.AccessToken, ttl); err != nil {
		logger.Warn("failed to cache access token: %v", err)
	}

	return result.AccessToken, nil
}

// GetSubscriberInfo 通过openid拉取关注者信息
func (c *wechatClient) GetSubscriberInfo(ctx context.Context, openID string) (*model.WechatUserInfo, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	infoURL := fmt.Sprintf("%s/cgi-bin/user/info?access_token=%s&openid=%s&lang=zh_CN",
		wechatAPIBase, url.QueryEscape(token), url.QueryEscape(openID))

	var info model.WechatUserInfo
	if err := c.getJSON(ctx, infoURL, &info); err != nil {
		return nil, err
	}
	if info.ErrCode != 0 {
		return nil, fmt.Errorf("%w: errcode=%d errmsg=%s", ErrProviderUnavailable, info.ErrCode, info.ErrMsg)
	}
	return &info, nil
}

// createQRTicket 调用二维码接口，48001返回ErrQRCodeUnauthorized
func (c *wechatClient) createQRTicket(ctx context.Context, payload map[string]interface{}) (*model.WechatQRTicketResponse, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	qrURL := fmt.Sprintf("%s/cgi-bin/qrcode/create?access_token=%s", wechatAPIBase, url.QueryEscape(token))

	var result model.WechatQRTicketResponse
	if err := c.postJSON(ctx, qrURL, payload, &result); err != nil {
		return nil, err
	}
	if result.ErrCode == 48001 {
		return nil, fmt.Errorf("%w: errmsg=%s", ErrQRCodeUnauthorized, result.ErrMsg)
	}
	if result.ErrCode != 0 || result.Ticket == "" {
		return nil, fmt.Errorf("%w: errcode=%d errmsg=%s", ErrProviderUnavailable, result.ErrCode, result.ErrMsg)
	}
	return &result, nil
}

// CreateTempQRTicket 创建临时场景二维码ticket
func (c *wechatClient) CreateTempQRTicket(ctx context.Context, sceneValue string, expireSeconds int) (*model.WechatQRTicketResponse, error) {
	return c.createQRTicket(ctx, map[string]interface{}{
		"expire_seconds": expireSeconds,
		"action_name":    "QR_STR_SCENE",
		"action_info": map[string]interface{}{
			"scene": map[string]interface{}{"scene_str": sceneValue},
		},
	})
}

// CreatePermanentQRTicket 创建永久场景二维码ticket
func (c *wechatClient) CreatePermanentQRTicket(ctx context.Context, sceneValue string) (*model.WechatQRTicketResponse, error) {
	return c.createQRTicket(ctx, map[string]interface{}{
		"action_name": "QR_LIMIT_STR_SCENE",
		"action_info": map[string]interface{}{
			"scene": map[string]interface{}{"scene_str": sceneValue},
		},
	})
}

// BuildAuthURL 构造网页授权跳转地址
func (c *wechatClient) BuildAuthURL(scope, state string) (string, error) {
	if !c.IsConfigured() || c.cfg.RedirectURI == "" {
		return "", ErrWechatNotConfigured
	}
	if scope == "" {
		scope = "snsapi_userinfo"
	}

	return fmt.Sprintf("%s/connect/oauth2/authorize?appid=%s&redirect_uri=%s&response_type=code&scope=%s&state=%s#wechat_redirect",
		wechatOpenBase,
		url.QueryEscape(c.cfg.AppID),
		url.QueryEscape(c.cfg.RedirectURI),
		url.QueryEscape(scope),
		url.QueryEscape(state)), nil
}

// GetOAuthToken 通过网页授权code换取access_token
func (c *wechatClient) GetOAuthToken(ctx context.Context, code string) (*model.WechatOAuthTokenResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrWechatNotConfigured
	}

	tokenURL := fmt.Sprintf("%s/sns/oauth2/access_token?appid=%s&secret=%s&code=%s&grant_type=authorization_code",
		wechatAPIBase, url.QueryEscape(c.cfg.AppID), url.QueryEscape(c.cfg.AppSecret), url.QueryEscape(code))

	var result model.WechatOAuthTokenResponse
	if err := c.getJSON(ctx, tokenURL, &result); err != nil {
		return nil, err
	}
	if result.ErrCode != 0 || result.AccessToken == "" {
		return nil, fmt.Errorf("%w: errcode=%d errmsg=%s", ErrProviderUnavailable, result.ErrCode, result.ErrMsg)
	}
	return &result, nil
}

// GetOAuthUserInfo 用网页授权access_token拉取用户信息
func (c *wechatClient) GetOAuthUserInfo(ctx context.Context, accessToken, openID string) (*model.WechatUserInfo, error) {
	infoURL := fmt.Sprintf("%s/sns/userinfo?access_token=%s&openid=%s&lang=zh_CN",
		wechatAPIBase, url.QueryEscape(accessToken), url.QueryEscape(openID))

	var info model.WechatUserInfo
	if err := c.getJSON(ctx, infoURL, &info); err != nil {
		return nil, err
	}
	if info.ErrCode != 0 {
		return nil, fmt.Errorf("%w: errcode=%d errmsg=%s", ErrProviderUnavailable, info.ErrCode, info.ErrMsg)
	}
	return &info, nil
}

// QRCodeURL 由ticket拼出二维码图片地址
func (c *wechatClient) QRCodeURL(ticket string) string {
	return fmt.Sprintf("%s?ticket=%s", wechatShowQRURL, url.QueryEscape(ticket))
}

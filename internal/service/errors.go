package service

import "errors"

var (
	// ErrWechatNotConfigured 微信配置缺失
	ErrWechatNotConfigured = errors.New("wechat configuration not complete")
	// ErrProviderUnavailable 微信接口不可用
	ErrProviderUnavailable = errors.New("wechat api unavailable")
	// ErrQRCodeUnauthorized 账号无二维码接口权限（errcode 48001）
	ErrQRCodeUnauthorized = errors.New("qrcode api unauthorized")
	// ErrMalformedPayload 回调消息体无法解析
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrSceneNotFoundOrExpired 场景不存在或已过期
	ErrSceneNotFoundOrExpired = errors.New("scene not found or expired")
	// ErrSceneAlreadyScanned 场景已被扫码
	ErrSceneAlreadyScanned = errors.New("scene already scanned")
	// ErrUserDisabled 用户已被禁用
	ErrUserDisabled = errors.New("user is disabled")
)

package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SceneStatus 登录场景状态
type SceneStatus string

const (
	// ScenePending 等待扫码
	ScenePending SceneStatus = "pending"
	// SceneScanned 已扫码，结果已写入
	SceneScanned SceneStatus = "scanned"
	// SceneExpired 已过期
	SceneExpired SceneStatus = "expired"
)

// LoginScene 登录场景记录，浏览器轮询与微信回调在此汇合。
// 状态只能单向前进：pending→scanned 或 pending→expired，
// scanned 和 expired 都是终态。
type LoginScene struct {
	ID        string      `json:"id" gorm:"primaryKey;type:uuid"`
	SceneID   string      `json:"scene_id" gorm:"column:scene_id;type:varchar(100);uniqueIndex"`
	Status    SceneStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	UserInfo  string      `json:"user_info" gorm:"type:jsonb"`
	Tokens    string      `json:"tokens" gorm:"type:jsonb"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	ScannedAt *time.Time  `json:"scanned_at"`
}

// BeforeCreate GORM的钩子，在创建记录前自动生成UUID
func (s *LoginScene) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// IsExpired 判断场景在给定时刻是否已过期
func (s *LoginScene) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// EffectiveStatus 计算读取时刻应对外呈现的状态：
// pending 但已过期的记录按 expired 返回（读时淘汰）。
func (s *LoginScene) EffectiveStatus(now time.Time) SceneStatus {
	if s.Status == ScenePending && s.IsExpired(now) {
		return SceneExpired
	}
	return s.Status
}

// QRCodeResponse 创建二维码的响应
type QRCodeResponse struct {
	Ticket        string       `json:"ticket"`
	ExpireSeconds int          `json:"expire_seconds"`
	URL           string       `json:"url"`
	QRCodeURL     string       `json:"qr_code_url"`
	SceneValue    string       `json:"scene_value"`
	IsMock        bool         `json:"is_mock,omitempty"`
	ErrorInfo     *QRErrorInfo `json:"error_info,omitempty"`
	Fallback      *QRFallback  `json:"fallback,omitempty"`
}

// QRErrorInfo 降级模式下携带的错误说明
type QRErrorInfo struct {
	Code        int      `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// QRFallback 降级模式下的替代方案
type QRFallback struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// SceneStatusResponse 轮询接口的响应
type SceneStatusResponse struct {
	Status    SceneStatus     `json:"status"`
	UserInfo  *UserSimpleInfo `json:"user_info,omitempty"`
	Tokens    *TokenPair      `json:"tokens,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
	ScannedAt *time.Time      `json:"scanned_at,omitempty"`
	Message   string          `json:"message,omitempty"`
}

package model

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserStatus 用户状态
type UserStatus int

const (
	UserStatusDisabled UserStatus = iota // 禁用
	UserStatusEnabled                    // 启用
)

// User 用户模型，通过微信身份关联本地账户
type User struct {
	ID        string     `json:"id" gorm:"primaryKey;type:uuid"`
	Username  string     `json:"username" gorm:"type:varchar(100);uniqueIndex"`
	Password  string     `json:"-" gorm:"type:varchar(100)"`
	Nickname  string     `json:"nickname" gorm:"type:varchar(100)"`
	Email     string     `json:"email" gorm:"type:varchar(100)"`
	Avatar    string     `json:"avatar" gorm:"type:varchar(500)"`
	Status    UserStatus `json:"status" gorm:"type:int;default:1"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// 微信身份字段：openid全局唯一，unionid跨公众号关联（可能为空）
	OpenID         string     `json:"open_id" gorm:"column:open_id;type:varchar(64);uniqueIndex"`
	UnionID        string     `json:"union_id" gorm:"column:union_id;type:varchar(64);index"`
	Subscribed     bool       `json:"subscribed" gorm:"default:false"`
	SubscribeTime  *time.Time `json:"subscribe_time"`
	SubscribeScene string     `json:"subscribe_scene" gorm:"type:varchar(50)"`
	QRScene        string     `json:"qr_scene" gorm:"column:qr_scene;type:varchar(100)"`
	QRSceneStr     string     `json:"qr_scene_str" gorm:"column:qr_scene_str;type:varchar(100)"`
	Language       string     `json:"language" gorm:"type:varchar(10)"`
	Province       string     `json:"province" gorm:"type:varchar(50)"`
	City           string     `json:"city" gorm:"type:varchar(50)"`
	Country        string     `json:"country" gorm:"type:varchar(50)"`
	Remark         string     `json:"remark" gorm:"type:varchar(100)"`

	LastLoginAt *time.Time `json:"last_login_at"`
}

// BeforeCreate GORM的钩子，在创建记录前自动生成UUID和加密密码
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.Password = string(hashedPassword)
	}
	return nil
}

// SimpleInfo 返回附加到登录场景结果中的用户摘要
func (u *User) SimpleInfo() *UserSimpleInfo {
	return &UserSimpleInfo{
		ID:       u.ID,
		Name:     u.Username,
		Email:    u.Email,
		Nickname: u.Nickname,
		Avatar:   u.Avatar,
	}
}

// UserSimpleInfo 用户摘要信息（轮询接口返回）
type UserSimpleInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

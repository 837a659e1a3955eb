package model

import "encoding/xml"

// WechatMessage 微信推送的XML消息体
type WechatMessage struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	Event        string   `xml:"Event"`
	EventKey     string   `xml:"EventKey"`
	Ticket       string   `xml:"Ticket"`
	Content      string   `xml:"Content"`
	MsgID        string   `xml:"MsgId"`
}

// WechatAPIError 微信API统一的错误字段
type WechatAPIError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// WechatUserInfo 微信用户信息（cgi-bin/user/info 与 sns/userinfo 的并集）
type WechatUserInfo struct {
	WechatAPIError
	OpenID         string `json:"openid"`
	Nickname       string `json:"nickname"`
	Sex            int    `json:"sex"`
	Province       string `json:"province"`
	City           string `json:"city"`
	Country        string `json:"country"`
	HeadImgURL     string `json:"headimgurl"`
	UnionID        string `json:"unionid"`
	Subscribe      int    `json:"subscribe"`
	SubscribeTime  int64  `json:"subscribe_time"`
	SubscribeScene string `json:"subscribe_scene"`
	QRScene        int    `json:"qr_scene"`
	QRSceneStr     string `json:"qr_scene_str"`
	Language       string `json:"language"`
	Remark         string `json:"remark"`
}

// WechatAccessTokenResponse 公众号接口调用凭证响应
type WechatAccessTokenResponse struct {
	WechatAPIError
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// WechatOAuthTokenResponse 网页授权access_token响应
type WechatOAuthTokenResponse struct {
	WechatAPIError
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	Scope        string `json:"scope"`
	UnionID      string `json:"unionid"`
}

// WechatQRTicketResponse 二维码ticket响应
type WechatQRTicketResponse struct {
	WechatAPIError
	Ticket        string `json:"ticket"`
	ExpireSeconds int    `json:"expire_seconds"`
	URL           string `json:"url"`
}

// WechatLoginResponse 网页授权登录成功后的响应
type WechatLoginResponse struct {
	User      *UserSimpleInfo `json:"user"`
	Tokens    *TokenPair      `json:"tokens"`
	ExpiresIn int64           `json:"expires_in"`
}

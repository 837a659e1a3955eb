package service

import (
	"context"
	"encoding/xml"
	"errors"
	"strings"
	"time"

	"wxauth/internal/model"
	"wxauth/pkg/logger"
)

// EventType 回调消息的归类结果
type EventType string

const (
	EventSubscribe   EventType = "subscribe"
	EventUnsubscribe EventType = "unsubscribe"
	EventScan        EventType = "scan"
	EventClick       EventType = "click"
	EventText        EventType = "text"
	EventUnknown     EventType = "unknown"
)

// Event 归类后的回调事件
type Event struct {
	Type     EventType
	OpenID   string // 发送方openid
	Account  string // 公众号原始ID
	EventKey string
	Ticket   string
	Content  string
	Raw      *model.WechatMessage
}

// EventDispatcher 回调事件分发器。解析XML消息体，按事件类型路由，
// 并产出应答体。未知事件一律应答success，不向微信侧暴露错误。
type EventDispatcher interface {
	// Parse 解析XML消息体并归类
	Parse(raw []byte) (*Event, error)

	// Dispatch 处理事件并返回应答体（"success"或被动回复XML）
	Dispatch(ctx context.Context, ev *Event) string
}

type eventDispatcher struct {
	login  LoginService
	client WechatClient
}

// NewEventDispatcher 创建回调事件分发器
func NewEventDispatcher(login LoginService, client WechatClient) EventDispatcher {
	return &eventDispatcher{login: login, client: client}
}

// Parse 解析XML消息体并归类
func (d *eventDispatcher) Parse(raw []byte) (*Event, error) {
	var msg model.WechatMessage
	if err := xml.Unmarshal(raw, &msg); err != nil {
		return nil, ErrMalformedPayload
	}
	if msg.FromUserName == "" && msg.MsgType == "" {
		return nil, ErrMalformedPayload
	}

	ev := &Event{
		Type:     EventUnknown,
		OpenID:   msg.FromUserName,
		Account:  msg.ToUserName,
		EventKey: msg.EventKey,
		Ticket:   msg.Ticket,
		Content:  msg.Content,
		Raw:      &msg,
	}

	switch msg.MsgType {
	case "event":
		switch msg.Event {
		case "subscribe":
			ev.Type = EventSubscribe
		case "unsubscribe":
			ev.Type = EventUnsubscribe
		case "SCAN":
			ev.Type = EventScan
		case "CLICK":
			ev.Type = EventClick
		}
	case "text":
		ev.Type = EventText
	}

	return ev, nil
}

// Dispatch 处理事件并返回应答体
func (d *eventDispatcher) Dispatch(ctx context.Context, ev *Event) string {
	logger.Info("[Webhook] event: type=%s openid=%s key=%s", ev.Type, ev.OpenID, ev.EventKey)

	switch ev.Type {
	case EventSubscribe:
		return d.handleSubscribe(ctx, ev)
	case EventUnsubscribe:
		return d.handleUnsubscribe(ctx, ev)
	case EventScan:
		return d.handleScan(ctx, ev)
	case EventClick:
		return d.handleClick(ctx, ev)
	case EventText:
		return d.handleText(ctx, ev)
	default:
		// 未知事件直接确认，避免微信侧重试
		return "success"
	}
}

// handleSubscribe 关注事件：落库用户，扫码关注的登录场景顺带完成登录
func (d *eventDispatcher) handleSubscribe(ctx context.Context, ev *Event) string {
	info, err := d.client.GetSubscriberInfo(ctx, ev.OpenID)
	if err != nil {
		logger.Warn("[Webhook] failed to fetch subscriber info for %s: %v", ev.OpenID, err)
		info = &model.WechatUserInfo{OpenID: ev.OpenID, Subscribe: 1}
	}
	if _, err := d.login.ResolveWechatUser(ctx, info); err != nil {
		logger.Error("[Webhook] failed to upsert subscriber %s: %v", ev.OpenID, err)
		return "success"
	}

	// 关注事件的场景值带qrscene_前缀
	sceneKey := NormalizeSceneKey(ev.EventKey)
	if IsLoginScene(sceneKey) {
		if err := d.login.CompleteLogin(ctx, ev.OpenID, sceneKey); err != nil &&
			!errors.Is(err, ErrSceneAlreadyScanned) {
			logger.Error("[Webhook] login scene %s failed on subscribe: %v", sceneKey, err)
		}
	}

	return buildTextReply(ev.Account, ev.OpenID, "欢迎关注我们的公众号！感谢您的支持！")
}

// handleUnsubscribe 取消关注：保留账号，翻转关注标记
func (d *eventDispatcher) handleUnsubscribe(ctx context.Context, ev *Event) string {
	if err := d.login.MarkUnsubscribed(ctx, ev.OpenID); err != nil {
		logger.Error("[Webhook] failed to handle unsubscribe for %s: %v", ev.OpenID, err)
	}
	return "success"
}

// handleScan 已关注用户扫码：登录场景完成登录汇合
func (d *eventDispatcher) handleScan(ctx context.Context, ev *Event) string {
	if IsLoginScene(ev.EventKey) {
		err := d.login.CompleteLogin(ctx, ev.OpenID, ev.EventKey)
		// 重复投递的回调按成功答复，结果早已写入
		if err != nil && !errors.Is(err, ErrSceneAlreadyScanned) {
			logger.Error("[Webhook] login scene %s failed on scan: %v", ev.EventKey, err)
			return buildTextReply(ev.Account, ev.OpenID, "登录失败，请重试。")
		}
		return buildTextReply(ev.Account, ev.OpenID, "登录成功！您可以关闭此页面。")
	}
	return buildTextReply(ev.Account, ev.OpenID, "扫码成功！")
}

// handleClick 自定义菜单点击
func (d *eventDispatcher) handleClick(ctx context.Context, ev *Event) string {
	switch ev.EventKey {
	case "MENU_LOGIN":
		authURL, err := d.client.BuildAuthURL("snsapi_userinfo", "menu_login")
		if err != nil {
			logger.Warn("[Webhook] failed to build auth url: %v", err)
			return "success"
		}
		return buildTextReply(ev.Account, ev.OpenID, "请点击链接进行登录："+authURL)
	default:
		return buildTextReply(ev.Account, ev.OpenID, "感谢您的操作！")
	}
}

// handleText 文本消息自动回复
func (d *eventDispatcher) handleText(ctx context.Context, ev *Event) string {
	reply := "感谢您的消息！"
	switch {
	case strings.Contains(ev.Content, "登录"):
		authURL, err := d.client.BuildAuthURL("snsapi_userinfo", "text_login")
		if err == nil {
			reply = "请点击链接进行登录：" + authURL
		}
	case strings.Contains(ev.Content, "帮助"):
		reply = "您可以发送\"登录\"获取登录链接，或者通过菜单进行操作。"
	}
	return buildTextReply(ev.Account, ev.OpenID, reply)
}

// charData CDATA包裹的文本节点
type charData struct {
	Text string `xml:",cdata"`
}

// textReply 被动回复的文本消息
type textReply struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   charData `xml:"ToUserName"`
	FromUserName charData `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      charData `xml:"MsgType"`
	Content      charData `xml:"Content"`
}

// buildTextReply 构造被动回复XML；序列化失败时退化为success确认
func buildTextReply(fromUser, toUser, content string) string {
	reply := textReply{
		ToUserName:   charData{Text: toUser},
		FromUserName: charData{Text: fromUser},
		CreateTime:   time.Now().Unix(),
		MsgType:      charData{Text: "text"},
		Content:      charData{Text: content},
	}
	data, err := xml.Marshal(reply)
	if err != nil {
		logger.Warn("[Webhook] failed to marshal text reply: %v", err)
		return "success"
	}
	return string(data)
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"wxauth/internal/model"
)

// newTestDispatcher 组装分发器与真实登录服务（内存依赖）
func newTestDispatcher() (EventDispatcher, LoginService, *fakeSceneRepo, *fakeUserRepo) {
	login, scenes, users, _, client := newTestLoginService()
	return NewEventDispatcher(login, client), login, scenes, users
}

func subscribeXML(openID, eventKey string) []byte {
	return []byte(`<xml>
  <ToUserName><![CDATA[gh_123456]]></ToUserName>
  <FromUserName><![CDATA[` + openID + `]]></FromUserName>
  <CreateTime>1700000000</CreateTime>
  <MsgType><![CDATA[event]]></MsgType>
  <Event><![CDATA[subscribe]]></Event>
  <EventKey><![CDATA[` + eventKey + `]]></EventKey>
  <Ticket><![CDATA[TICKET]]></Ticket>
</xml>`)
}

func scanXML(openID, eventKey string) []byte {
	return []byte(`<xml>
  <ToUserName><![CDATA[gh_123456]]></ToUserName>
  <FromUserName><![CDATA[` + openID + `]]></FromUserName>
  <CreateTime>1700000000</CreateTime>
  <MsgType><![CDATA[event]]></MsgType>
  <Event><![CDATA[SCAN]]></Event>
  <EventKey><![CDATA[` + eventKey + `]]></EventKey>
  <Ticket><![CDATA[TICKET]]></Ticket>
</xml>`)
}

func TestParseSubscribeEvent(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	ev, err := d.Parse(subscribeXML("oOpenID0000000001", "qrscene_login_123_abc"))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if ev.Type != EventSubscribe {
		t.Errorf("expected subscribe type, got %q", ev.Type)
	}
	if ev.OpenID != "oOpenID0000000001" {
		t.Errorf("unexpected openid %q", ev.OpenID)
	}
	if ev.EventKey != "qrscene_login_123_abc" {
		t.Errorf("unexpected event key %q", ev.EventKey)
	}
}

func TestParseTextMessage(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	raw := []byte(`<xml><ToUserName><![CDATA[gh_123456]]></ToUserName><FromUserName><![CDATA[oOpenID0000000001]]></FromUserName><CreateTime>1700000000</CreateTime><MsgType><![CDATA[text]]></MsgType><Content><![CDATA[帮助]]></Content><MsgId>10001</MsgId></xml>`)
	ev, err := d.Parse(raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if ev.Type != EventText {
		t.Errorf("expected text type, got %q", ev.Type)
	}
	if ev.Content != "帮助" {
		t.Errorf("unexpected content %q", ev.Content)
	}
}

func TestParseUnknownEventType(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	raw := []byte(`<xml><ToUserName><![CDATA[gh_123456]]></ToUserName><FromUserName><![CDATA[oOpenID0000000001]]></FromUserName><MsgType><![CDATA[event]]></MsgType><Event><![CDATA[LOCATION]]></Event></xml>`)
	ev, err := d.Parse(raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if ev.Type != EventUnknown {
		t.Errorf("expected unknown type, got %q", ev.Type)
	}
}

func TestParseMalformedPayload(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	if _, err := d.Parse([]byte("this is not xml")); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
	if _, err := d.Parse([]byte("<xml></xml>")); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for empty message, got %v", err)
	}
}

func TestDispatchUnknownAcksSuccess(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	reply := d.Dispatch(context.Background(), &Event{Type: EventUnknown, OpenID: "oOpenID0000000001"})
	if reply != "success" {
		t.Errorf("expected success ack for unknown event, got %q", reply)
	}
}

func TestDispatchScanCompletesLogin(t *testing.T) {
	d, login, _, _ := newTestDispatcher()
	ctx := context.Background()

	created, err := login.BeginLogin(ctx, "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}

	ev, err := d.Parse(scanXML("oOpenID0000000001", created.SceneValue))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	reply := d.Dispatch(ctx, ev)
	if !strings.Contains(reply, "登录成功") {
		t.Errorf("expected success reply, got %q", reply)
	}
	if !strings.HasPrefix(reply, "<xml") {
		t.Errorf("expected xml reply, got %q", reply)
	}

	status, _ := login.Poll(ctx, created.SceneValue)
	if status.Status != model.SceneScanned {
		t.Errorf("expected scene scanned after dispatch, got %q", status.Status)
	}
}

func TestDispatchDuplicateScanStillRepliesSuccess(t *testing.T) {
	d, login, _, _ := newTestDispatcher()
	ctx := context.Background()

	created, err := login.BeginLogin(ctx, "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}

	ev, _ := d.Parse(scanXML("oOpenID0000000001", created.SceneValue))
	first := d.Dispatch(ctx, ev)
	second := d.Dispatch(ctx, ev)

	if !strings.Contains(first, "登录成功") {
		t.Errorf("expected success reply, got %q", first)
	}
	// 重复投递对用户侧仍表现为成功
	if !strings.Contains(second, "登录成功") {
		t.Errorf("expected success reply for duplicate delivery, got %q", second)
	}
}

func TestDispatchScanExpiredSceneRepliesFailure(t *testing.T) {
	d, login, scenes, _ := newTestDispatcher()
	ctx := context.Background()

	created, err := login.BeginLogin(ctx, "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}
	scenes.expire(created.SceneValue)

	ev, _ := d.Parse(scanXML("oOpenID0000000001", created.SceneValue))
	reply := d.Dispatch(ctx, ev)
	if !strings.Contains(reply, "登录失败") {
		t.Errorf("expected failure reply for expired scene, got %q", reply)
	}
}

func TestDispatchSubscribeWithLoginScene(t *testing.T) {
	d, login, _, users := newTestDispatcher()
	ctx := context.Background()

	created, err := login.BeginLogin(ctx, "", 0)
	if err != nil {
		t.Fatalf("BeginLogin error: %v", err)
	}

	// 关注事件场景值带qrscene_前缀
	ev, err := d.Parse(subscribeXML("oOpenID0000000001", "qrscene_"+created.SceneValue))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	reply := d.Dispatch(ctx, ev)
	if !strings.Contains(reply, "欢迎关注") {
		t.Errorf("expected welcome reply, got %q", reply)
	}

	status, _ := login.Poll(ctx, created.SceneValue)
	if status.Status != model.SceneScanned {
		t.Errorf("expected scene scanned after subscribe, got %q", status.Status)
	}
	if count, _ := users.Count(ctx); count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestDispatchPlainSubscribe(t *testing.T) {
	d, _, _, users := newTestDispatcher()
	ctx := context.Background()

	ev, _ := d.Parse(subscribeXML("oOpenID0000000001", ""))
	reply := d.Dispatch(ctx, ev)
	if !strings.Contains(reply, "欢迎关注") {
		t.Errorf("expected welcome reply, got %q", reply)
	}
	if count, _ := users.Count(ctx); count != 1 {
		t.Errorf("expected subscriber upserted, got %d users", count)
	}
}

func TestDispatchUnsubscribe(t *testing.T) {
	d, login, _, users := newTestDispatcher()
	ctx := context.Background()

	if _, err := login.ResolveWechatUser(ctx, &model.WechatUserInfo{
		OpenID:    "oOpenID0000000001",
		Subscribe: 1,
	}); err != nil {
		t.Fatalf("ResolveWechatUser error: %v", err)
	}

	raw := []byte(`<xml><ToUserName><![CDATA[gh_123456]]></ToUserName><FromUserName><![CDATA[oOpenID0000000001]]></FromUserName><MsgType><![CDATA[event]]></MsgType><Event><![CDATA[unsubscribe]]></Event></xml>`)
	ev, _ := d.Parse(raw)
	if reply := d.Dispatch(ctx, ev); reply != "success" {
		t.Errorf("expected success ack, got %q", reply)
	}

	user, _ := users.GetByOpenID(ctx, "oOpenID0000000001")
	if user == nil || user.Subscribed {
		t.Error("expected subscribed flag cleared and account kept")
	}
}

func TestDispatchClickMenuLogin(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	ev := &Event{Type: EventClick, OpenID: "oOpenID0000000001", Account: "gh_123456", EventKey: "MENU_LOGIN"}
	reply := d.Dispatch(context.Background(), ev)
	if !strings.Contains(reply, "oauth2/authorize") {
		t.Errorf("expected auth url in reply, got %q", reply)
	}
}

func TestDispatchTextAutoReply(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	ctx := context.Background()

	login := d.Dispatch(ctx, &Event{Type: EventText, OpenID: "o1", Account: "gh", Content: "我要登录"})
	if !strings.Contains(login, "oauth2/authorize") {
		t.Errorf("expected auth url for login keyword, got %q", login)
	}

	help := d.Dispatch(ctx, &Event{Type: EventText, OpenID: "o1", Account: "gh", Content: "帮助"})
	if !strings.Contains(help, "登录") {
		t.Errorf("expected help reply, got %q", help)
	}

	other := d.Dispatch(ctx, &Event{Type: EventText, OpenID: "o1", Account: "gh", Content: "你好"})
	if !strings.Contains(other, "感谢您的消息") {
		t.Errorf("expected default reply, got %q", other)
	}
}

func TestSceneKeyHelpers(t *testing.T) {
	if got := NormalizeSceneKey("qrscene_login_123_abc"); got != "login_123_abc" {
		t.Errorf("NormalizeSceneKey = %q", got)
	}
	if got := NormalizeSceneKey("login_123_abc"); got != "login_123_abc" {
		t.Errorf("NormalizeSceneKey without prefix = %q", got)
	}
	if !IsLoginScene("login_123_abc") {
		t.Error("expected login scene")
	}
	if IsLoginScene("promo_2024") {
		t.Error("expected non-login scene")
	}
	if IsLoginScene("qrscene_login_123") {
		t.Error("qrscene_ prefix must be stripped before the login check")
	}
}

func TestBuildTextReplyEscapesViaCDATA(t *testing.T) {
	reply := buildTextReply("gh_123456", "oOpenID0000000001", "a<b&c")
	if !strings.Contains(reply, "<![CDATA[a<b&c]]>") {
		t.Errorf("expected CDATA wrapped content, got %q", reply)
	}
	if !strings.Contains(reply, "<![CDATA[text]]>") {
		t.Errorf("expected text msgtype, got %q", reply)
	}
}

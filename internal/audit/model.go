package audit

import "time"

// 事件处理结果
const (
	OutcomeHandled   = "handled"   // 正常处理
	OutcomeIgnored   = "ignored"   // 未识别或无需处理，已向微信确认
	OutcomeRejected  = "rejected"  // 签名校验失败
	OutcomeMalformed = "malformed" // 消息体无法解析
)

// WebhookEvent 一次微信回调的审计记录
type WebhookEvent struct {
	Method     string    `bson:"method" json:"method"`
	MsgType    string    `bson:"msg_type" json:"msg_type"`
	Event      string    `bson:"event" json:"event"`
	EventKey   string    `bson:"event_key" json:"event_key"`
	OpenID     string    `bson:"open_id" json:"open_id"`
	SceneID    string    `bson:"scene_id" json:"scene_id"`
	Outcome    string    `bson:"outcome" json:"outcome"`
	Remark     string    `bson:"remark,omitempty" json:"remark,omitempty"`
	RawPayload string    `bson:"raw_payload,omitempty" json:"raw_payload,omitempty"`
	ReceivedAt time.Time `bson:"received_at" json:"received_at"`
}

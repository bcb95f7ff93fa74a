package tools

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PayloadKind 标识工具结果载荷的形态。
type PayloadKind string

const (
	PayloadEmpty    PayloadKind = ""
	PayloadText     PayloadKind = "text"
	PayloadDocument PayloadKind = "document"
	PayloadBlob     PayloadKind = "blob"
)

// Payload 是工具成功结果的和类型：文本、结构化文档或二进制块三选一。
// 引擎不解释载荷内容，只在合成边界通过 AsText 做显式转换。
type Payload struct {
	Kind     PayloadKind    `json:"kind"`
	Text     string         `json:"text,omitempty"`
	Document map[string]any `json:"document,omitempty"`
	Blob     []byte         `json:"blob,omitempty"`
}

// TextPayload 构造文本载荷。
func TextPayload(text string) Payload {
	return Payload{Kind: PayloadText, Text: text}
}

// DocumentPayload 构造结构化文档载荷。
func DocumentPayload(document map[string]any) Payload {
	return Payload{Kind: PayloadDocument, Document: document}
}

// BlobPayload 构造二进制载荷。
func BlobPayload(blob []byte) Payload {
	return Payload{Kind: PayloadBlob, Blob: blob}
}

// IsEmpty 判断载荷是否为空。
func (p Payload) IsEmpty() bool {
	return p.Kind == PayloadEmpty
}

// AsText 把载荷转换为可供合成阶段使用的文本。文档序列化为紧凑 JSON，
// 二进制块转为 base64。转换失败时返回占位描述而不是错误，
// 保证合成阶段总能拿到文本输入。
func (p Payload) AsText() string {
	switch p.Kind {
	case PayloadText:
		return p.Text
	case PayloadDocument:
		encoded, err := json.Marshal(p.Document)
		if err != nil {
			return fmt.Sprintf("(unencodable document: %v)", err)
		}
		return string(encoded)
	case PayloadBlob:
		return base64.StdEncoding.EncodeToString(p.Blob)
	default:
		return ""
	}
}

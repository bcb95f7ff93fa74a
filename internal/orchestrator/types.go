package orchestrator

import (
	"strings"

	"OpenAgent-Loop/internal/reasoning"
)

// UserRequest 是一次编排运行的输入。
type UserRequest struct {
	// Input 是用户的原始请求文本。
	Input string `json:"input"`
	// SessionID 为空时引擎会生成新会话。
	SessionID string `json:"session_id,omitempty"`
}

// NewUserRequest 构造一次新会话的请求。
func NewUserRequest(input string) UserRequest {
	return UserRequest{Input: strings.TrimSpace(input)}
}

// WithSession 返回绑定了既有会话的请求拷贝。
func (r UserRequest) WithSession(sessionID string) UserRequest {
	r.SessionID = sessionID
	return r
}

// ResponseType 表示最终回复的性质。
type ResponseType string

const (
	// ResponseSuccess 表示所有工具调用都成功。
	ResponseSuccess ResponseType = "success"
	// ResponseWarning 表示部分调用失败但仍给出了有用回复。
	ResponseWarning ResponseType = "warning"
	// ResponseError 表示运行失败，内容描述失败原因。
	ResponseError ResponseType = "error"
	// ResponseInformation 表示未执行任何工具、直接作答。
	ResponseInformation ResponseType = "information"
)

// Stage 表示运行在状态机中的位置。
type Stage string

const (
	StageCreated         Stage = "created"
	StageInputValidated  Stage = "input_validated"
	StageIntentAnalyzed  Stage = "intent_analyzed"
	StageIterating       Stage = "iterating"
	StageSynthesizing    Stage = "synthesizing"
	StageOutputValidated Stage = "output_validated"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

// AgentResponse 是一次运行的最终产物。
type AgentResponse struct {
	Content  string            `json:"content"`
	Type     ResponseType      `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AgentSession 记录一次运行的会话级信息，供存储层归档。
type AgentSession struct {
	ID         string               `json:"id"`
	Input      string               `json:"input"`
	Intent     reasoning.UserIntent `json:"intent"`
	Stage      Stage                `json:"stage"`
	Iterations int                  `json:"iterations"`
	CreatedAt  int64                `json:"created_at"`
	UpdatedAt  int64                `json:"updated_at"`
}

package tools

import (
	"fmt"
	"strings"
	"time"
)

// ParamSpec 描述工具的一个命名参数。
type ParamSpec struct {
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"`
	Required bool     `json:"required" yaml:"required"`
	Default  any      `json:"default,omitempty" yaml:"default,omitempty"`
	Enum     []string `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// ToolDefinition 描述工具目录中的一个条目。名称在一次目录快照内唯一，
// 在一次编排运行期间视为只读。
type ToolDefinition struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Params      []ParamSpec `json:"params,omitempty" yaml:"params,omitempty"`
}

// Validate 检查定义是否自洽。
func (d ToolDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	seen := make(map[string]struct{}, len(d.Params))
	for _, param := range d.Params {
		name := strings.TrimSpace(param.Name)
		if name == "" {
			return fmt.Errorf("tool %s: parameter name cannot be empty", d.Name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("tool %s: duplicate parameter %s", d.Name, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// ToolCall 是推理能力提出的一次具体调用提案，引擎自身从不构造它。
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CloneArguments 返回参数映射的浅拷贝。
func (c ToolCall) CloneArguments() map[string]any {
	if c.Arguments == nil {
		return nil
	}
	cloned := make(map[string]any, len(c.Arguments))
	for key, value := range c.Arguments {
		cloned[key] = value
	}
	return cloned
}

// ToolExecution 记录一次工具调用的成功结果。失败的调用通过
// result.Result 的错误通道表达，不会产生 ToolExecution。
type ToolExecution struct {
	SessionID   string        `json:"session_id,omitempty"`
	Call        ToolCall      `json:"call"`
	Payload     Payload       `json:"payload"`
	Duration    time.Duration `json:"duration"`
	CompletedAt int64         `json:"completed_at"`
}

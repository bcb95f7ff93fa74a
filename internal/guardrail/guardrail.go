package guardrail

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"OpenAgent-Loop/internal/result"
	"OpenAgent-Loop/internal/tools"
)

// Policy 是守护策略的声明式描述。零值策略放行一切。
type Policy struct {
	// DeniedTools 列出禁止调用的工具名，匹配不区分大小写。
	DeniedTools []string `yaml:"denied_tools" json:"denied_tools"`
	// MaxInputChars 限制用户输入长度，0 表示不限制。
	MaxInputChars int `yaml:"max_input_chars" json:"max_input_chars"`
	// BlockedPhrases 中任意短语出现在输入或输出中都会被拒绝，
	// 匹配不区分大小写。
	BlockedPhrases []string `yaml:"blocked_phrases" json:"blocked_phrases"`
}

// LoadPolicy 从 YAML 文件加载守护策略。
func LoadPolicy(path string) (Policy, error) {
	var policy Policy
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read guardrail policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parse guardrail policy %s: %w", path, err)
	}
	return policy, nil
}

// Gate 在编排循环的三个检查点执行策略。
type Gate struct {
	policy      Policy
	deniedTools map[string]struct{}
}

// NewGate 根据策略构造检查闸门。
func NewGate(policy Policy) *Gate {
	denied := make(map[string]struct{}, len(policy.DeniedTools))
	for _, name := range policy.DeniedTools {
		denied[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	return &Gate{policy: policy, deniedTools: denied}
}

// ValidateInput 校验用户输入。返回 nil 表示放行。
func (g *Gate) ValidateInput(input string) *result.ResultError {
	if strings.TrimSpace(input) == "" {
		return result.NewError(result.CodeValidationFailed, "input cannot be empty")
	}
	if g.policy.MaxInputChars > 0 && len([]rune(input)) > g.policy.MaxInputChars {
		return result.NewError(result.CodeGuardrailInputRejected,
			fmt.Sprintf("input exceeds %d characters", g.policy.MaxInputChars),
			result.WithMetadata("limit", fmt.Sprintf("%d", g.policy.MaxInputChars)))
	}
	if phrase := g.matchBlockedPhrase(input); phrase != "" {
		return result.NewError(result.CodeGuardrailInputRejected,
			"input contains a blocked phrase",
			result.WithMetadata("phrase", phrase))
	}
	return nil
}

// IsActionAllowed 校验一次工具调用提案。返回 nil 表示放行。
func (g *Gate) IsActionAllowed(call tools.ToolCall) *result.ResultError {
	if _, denied := g.deniedTools[strings.ToLower(call.Name)]; denied {
		return result.NewError(result.CodeGuardrailActionBlocked,
			fmt.Sprintf("tool %s is denied by policy", call.Name),
			result.WithMetadata("tool", call.Name))
	}
	return nil
}

// ValidateOutput 校验最终输出。返回 nil 表示放行。
func (g *Gate) ValidateOutput(output string) *result.ResultError {
	if phrase := g.matchBlockedPhrase(output); phrase != "" {
		return result.NewError(result.CodeGuardrailOutputRejected,
			"output contains a blocked phrase",
			result.WithMetadata("phrase", phrase))
	}
	return nil
}

func (g *Gate) matchBlockedPhrase(text string) string {
	lowered := strings.ToLower(text)
	for _, phrase := range g.policy.BlockedPhrases {
		trimmed := strings.TrimSpace(phrase)
		if trimmed == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(trimmed)) {
			return trimmed
		}
	}
	return ""
}

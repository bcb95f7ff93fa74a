package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// BuiltinHandlers 返回内置工具的执行函数表，键为工具名。
// 清单文件中的定义通过同名条目与这里的实现配对。
func BuiltinHandlers() map[string]Handler {
	return map[string]Handler{
		"echo":         echoHandler,
		"current_time": currentTimeHandler,
		"word_count":   wordCountHandler,
		"json_format":  jsonFormatHandler,
	}
}

// BuiltinDefinitions 返回内置工具的默认目录定义，供未配置清单目录时使用。
func BuiltinDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "echo",
			Description: "原样返回输入文本。",
			Params: []ParamSpec{
				{Name: "text", Type: "string", Required: true},
			},
		},
		{
			Name:        "current_time",
			Description: "返回当前时间，支持指定格式。",
			Params: []ParamSpec{
				{Name: "format", Type: "string", Default: time.RFC3339},
			},
		},
		{
			Name:        "word_count",
			Description: "统计输入文本的字符数与词数。",
			Params: []ParamSpec{
				{Name: "text", Type: "string", Required: true},
			},
		},
		{
			Name:        "json_format",
			Description: "格式化 JSON 文本，便于阅读。",
			Params: []ParamSpec{
				{Name: "text", Type: "string", Required: true},
			},
		},
	}
}

// RegisterBuiltins 把全部内置工具登记到本地网关。
func RegisterBuiltins(gateway *LocalGateway) error {
	handlers := BuiltinHandlers()
	for _, def := range BuiltinDefinitions() {
		if err := gateway.Register(def, handlers[def.Name]); err != nil {
			return err
		}
	}
	return nil
}

// RegisterManifest 按清单登记工具，实现函数取自内置表。
// 清单中出现未实现的工具名视为配置错误。
func RegisterManifest(gateway *LocalGateway, manifest *Manifest) error {
	handlers := BuiltinHandlers()
	for _, def := range manifest.Tools {
		handler, ok := handlers[def.Name]
		if !ok {
			return fmt.Errorf("tool %s has no builtin implementation", def.Name)
		}
		if err := gateway.Register(def, handler); err != nil {
			return err
		}
	}
	return nil
}

func echoHandler(_ context.Context, args map[string]any) (Payload, error) {
	text, _ := args["text"].(string)
	return TextPayload(text), nil
}

func currentTimeHandler(_ context.Context, args map[string]any) (Payload, error) {
	format, _ := args["format"].(string)
	if format == "" {
		format = time.RFC3339
	}
	return TextPayload(time.Now().Format(format)), nil
}

func wordCountHandler(_ context.Context, args map[string]any) (Payload, error) {
	text, _ := args["text"].(string)
	return DocumentPayload(map[string]any{
		"characters": utf8.RuneCountInString(text),
		"words":      len(strings.Fields(text)),
	}), nil
}

func jsonFormatHandler(_ context.Context, args map[string]any) (Payload, error) {
	text, _ := args["text"].(string)
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Payload{}, fmt.Errorf("invalid json input: %w", err)
	}
	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return Payload{}, err
	}
	return TextPayload(string(pretty)), nil
}

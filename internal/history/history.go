package history

import (
	"OpenAgent-Loop/internal/result"
	"OpenAgent-Loop/internal/tools"
)

// Entry 是历史中的一条记录：一次工具调用的成败结果。
type Entry = result.Result[tools.ToolExecution]

// History 是一次会话内按时间顺序追加的执行历史。
// 追加是唯一的写操作，所有分析函数都不修改历史本身。
type History []Entry

// Append 返回追加了新条目的历史。底层数组可能被复用，
// 调用方应以返回值为准。
func (h History) Append(entries ...Entry) History {
	return append(h, entries...)
}

// Successes 返回所有成功条目的执行记录，保持原有顺序。
func (h History) Successes() []tools.ToolExecution {
	executions := make([]tools.ToolExecution, 0, len(h))
	for _, entry := range h {
		if value, ok := entry.Value(); ok {
			executions = append(executions, value)
		}
	}
	return executions
}

// Failures 返回所有失败条目的错误，保持原有顺序。
func (h History) Failures() []*result.ResultError {
	errs := make([]*result.ResultError, 0)
	for _, entry := range h {
		if entry.IsFailure() {
			errs = append(errs, entry.Err())
		}
	}
	return errs
}

// ByTool 按工具名过滤历史。成功条目按调用名匹配，
// 失败条目按错误元数据中记录的工具名匹配。
func (h History) ByTool(name string) History {
	filtered := make(History, 0)
	for _, entry := range h {
		if value, ok := entry.Value(); ok {
			if value.Call.Name == name {
				filtered = append(filtered, entry)
			}
			continue
		}
		if err := entry.Err(); err != nil && err.Metadata["tool"] == name {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// BySession 按会话标识过滤历史。失败条目按错误元数据匹配。
func (h History) BySession(sessionID string) History {
	filtered := make(History, 0)
	for _, entry := range h {
		if value, ok := entry.Value(); ok {
			if value.SessionID == sessionID {
				filtered = append(filtered, entry)
			}
			continue
		}
		if err := entry.Err(); err != nil && err.Metadata["session_id"] == sessionID {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

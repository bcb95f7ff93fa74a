package history

import (
	"math"
	"sort"
	"time"

	"OpenAgent-Loop/internal/result"
	"OpenAgent-Loop/internal/retry"
)

// Summary 汇总一段历史的成败分布与总体耗时。
type Summary struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	// 耗时只统计成功条目，失败条目没有耗时。
	TotalDuration time.Duration `json:"total_duration"`
	MeanDuration  time.Duration `json:"mean_duration"`
}

// DurationStats 描述一组执行的耗时分布。Tool 为空时表示
// 跨全部工具的总体分布。
type DurationStats struct {
	Tool   string        `json:"tool,omitempty"`
	Count  int           `json:"count"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	Median time.Duration `json:"median"`
	StdDev time.Duration `json:"std_dev"`
}

// ErrorReport 按错误码与分类拆解失败条目。
type ErrorReport struct {
	Total      int                    `json:"total"`
	ByCode     map[result.Code]int    `json:"by_code"`
	ByCategory map[retry.Category]int `json:"by_category"`
	Retryable  int                    `json:"retryable"`
	Permanent  int                    `json:"permanent"`
	ByTool     map[string]int         `json:"by_tool,omitempty"`
	// ErrorRate 是失败条目占整段历史的比例。
	ErrorRate float64 `json:"error_rate"`
	// MostCommonCode 是出现最多的错误码，并列时取字典序靠前者。
	MostCommonCode result.Code `json:"most_common_code,omitempty"`
}

// Summarize 统计历史的成败计数与总体耗时。空历史的成功率为 0。
func Summarize(h History) Summary {
	summary := Summary{Total: len(h)}
	for _, entry := range h {
		if execution, ok := entry.Value(); ok {
			summary.Succeeded++
			summary.TotalDuration += execution.Duration
		} else {
			summary.Failed++
		}
	}
	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Succeeded) / float64(summary.Total)
	}
	if summary.Succeeded > 0 {
		summary.MeanDuration = summary.TotalDuration / time.Duration(summary.Succeeded)
	}
	return summary
}

// Measure 按工具聚合成功条目的耗时分布，结果按工具名排序。
// 失败条目没有耗时，不参与统计。
func Measure(h History) []DurationStats {
	durations := make(map[string][]time.Duration)
	for _, execution := range h.Successes() {
		name := execution.Call.Name
		durations[name] = append(durations[name], execution.Duration)
	}

	names := make([]string, 0, len(durations))
	for name := range durations {
		names = append(names, name)
	}
	sort.Strings(names)

	stats := make([]DurationStats, 0, len(names))
	for _, name := range names {
		stats = append(stats, measureTool(name, durations[name]))
	}
	return stats
}

// MeasureAll 聚合全部成功条目的总体耗时分布，不区分工具。
// 没有成功条目时返回零值。
func MeasureAll(h History) DurationStats {
	successes := h.Successes()
	if len(successes) == 0 {
		return DurationStats{}
	}
	samples := make([]time.Duration, 0, len(successes))
	for _, execution := range successes {
		samples = append(samples, execution.Duration)
	}
	return measureTool("", samples)
}

func measureTool(name string, samples []time.Duration) DurationStats {
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	stat := DurationStats{
		Tool:  name,
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
	}

	var total time.Duration
	for _, sample := range sorted {
		total += sample
	}
	stat.Mean = total / time.Duration(len(sorted))

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		stat.Median = sorted[mid]
	} else {
		stat.Median = (sorted[mid-1] + sorted[mid]) / 2
	}

	// 样本标准差使用 n-1 自由度，单样本时为 0。
	if len(sorted) > 1 {
		mean := float64(stat.Mean)
		var sumSquares float64
		for _, sample := range sorted {
			diff := float64(sample) - mean
			sumSquares += diff * diff
		}
		stat.StdDev = time.Duration(math.Sqrt(sumSquares / float64(len(sorted)-1)))
	}
	return stat
}

// AnalyzeErrors 按错误码、重试分类与工具统计失败条目。
func AnalyzeErrors(h History) ErrorReport {
	report := ErrorReport{
		ByCode:     make(map[result.Code]int),
		ByCategory: make(map[retry.Category]int),
		ByTool:     make(map[string]int),
	}
	for _, err := range h.Failures() {
		report.Total++
		report.ByCode[err.Code]++
		report.ByCategory[retry.CategoryOf(err.Code)]++
		if retry.Retryable(err.Code) {
			report.Retryable++
		} else {
			report.Permanent++
		}
		if tool := err.Metadata["tool"]; tool != "" {
			report.ByTool[tool]++
		}
	}
	if len(report.ByTool) == 0 {
		report.ByTool = nil
	}
	if len(h) > 0 {
		report.ErrorRate = float64(report.Total) / float64(len(h))
	}
	for code, count := range report.ByCode {
		top := report.ByCode[report.MostCommonCode]
		if count > top || (count == top && (report.MostCommonCode == "" || code < report.MostCommonCode)) {
			report.MostCommonCode = code
		}
	}
	return report
}

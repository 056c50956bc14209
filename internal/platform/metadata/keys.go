package metadata

// --- Keys ---
// 这些键既用作 metadata 表的 key 列，也（加上 RedisPrefix 前缀）用作Redis键。
const (
	// LastWeeklyCloseKey 存储最近一次周结算所在的ISO周，例如 "2026-W42"。
	// 同一周内的第二次触发会被跳过。
	LastWeeklyCloseKey = "last_weekly_close"

	// LastReplenishKey 存储最近一次每日补充投票的日期，例如 "2026-10-14"。
	LastReplenishKey = "last_replenish"
)

// RedisPrefix 是Redis后端下元数据键的前缀
const RedisPrefix = "meta:"

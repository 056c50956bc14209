// Package schedule 负责两个周期任务：每日补充投票和每周结算。
// 时钟只存在于这里，计分核心不读取当前时间。
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Schedule 根据当前时刻计算下一次触发时刻
type Schedule interface {
	Next(now time.Time) time.Time
	String() string
}

// Clock 是一天中的时刻
type Clock struct {
	Hour, Minute int
}

// ParseClock 解析 "HH:MM" 格式的时刻
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("无效的时刻 %q，应为 HH:MM: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) on(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// ParseWeekday 解析英文星期名（大小写不敏感，可用前三个字母）
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("无效的星期 %q", s)
}

type daily struct {
	at  Clock
	loc *time.Location
}

// DailyAt 返回每天在 loc 时区的 at 时刻触发的计划
func DailyAt(at Clock, loc *time.Location) Schedule {
	return daily{at: at, loc: loc}
}

func (d daily) Next(now time.Time) time.Time {
	now = now.In(d.loc)
	next := d.at.on(now, d.loc)
	if !next.After(now) {
		next = d.at.on(now.AddDate(0, 0, 1), d.loc)
	}
	return next
}

func (d daily) String() string {
	return fmt.Sprintf("每天 %s (%s)", d.at, d.loc)
}

type weekly struct {
	day time.Weekday
	at  Clock
	loc *time.Location
}

// WeeklyAt 返回每周 day 在 loc 时区的 at 时刻触发的计划
func WeeklyAt(day time.Weekday, at Clock, loc *time.Location) Schedule {
	return weekly{day: day, at: at, loc: loc}
}

func (w weekly) Next(now time.Time) time.Time {
	now = now.In(w.loc)
	ahead := (int(w.day) - int(now.Weekday()) + 7) % 7
	next := w.at.on(now.AddDate(0, 0, ahead), w.loc)
	if !next.After(now) {
		next = w.at.on(now.AddDate(0, 0, ahead+7), w.loc)
	}
	return next
}

func (w weekly) String() string {
	return fmt.Sprintf("每周%s %s (%s)", w.day, w.at, w.loc)
}

// WeekKey 返回 t 所在的ISO周，例如 "2026-W42"
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// DayKey 返回 t 的日期，例如 "2026-10-14"
func DayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

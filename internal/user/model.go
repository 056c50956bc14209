package user

import (
	"time"
)

// DefaultVotes 是新用户初始拥有的投票数
const DefaultVotes = 1

// User 是一个群成员的信誉记录。
// Seq 即表的自增主键，记录注册先后，是注册表遍历顺序的依据；
// UserID 是聊天平台上的用户ID，业务逻辑只通过它定位记录。
type User struct {
	Seq uint `gorm:"column:id;primaryKey;autoIncrement" json:"seq"`

	UserID      int64  `gorm:"uniqueIndex;not null" json:"id"`
	DisplayName string `gorm:"not null" json:"displayName"`

	// ReputationScore 是历史累计的净得票，可以为负
	ReputationScore int `gorm:"not null" json:"reputationScore"`

	// VotesRemaining 是当前可用的投票额度，每日补充
	VotesRemaining int `gorm:"not null" json:"votesRemaining"`

	// WeeklyChampionCount 是获得周冠军的次数
	WeeklyChampionCount int `gorm:"not null" json:"weeklyChampionCount"`

	// WeeklyScore 是自上次周结算以来的净得票
	WeeklyScore int `gorm:"not null" json:"weeklyScore"`

	Level int `gorm:"not null" json:"level"`
	XP    int `gorm:"column:xp;not null" json:"xp"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewUser 返回一个带默认值的新记录
func NewUser(id int64, displayName string) User {
	return User{
		UserID:         id,
		DisplayName:    displayName,
		VotesRemaining: DefaultVotes,
	}
}

// SyncName 在名字非空且有变化时更新显示名，返回是否发生了修改
func (u *User) SyncName(displayName string) bool {
	if displayName == "" || u.DisplayName == displayName {
		return false
	}
	u.DisplayName = displayName
	return true
}

package model

import (
	"time"
)

// GroupActivity 分组活动消息（持久化，供聊天面板展示）
type GroupActivity struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	GroupID      string    `json:"groupId" gorm:"size:8;index;not null"`
	UserID       int64     `json:"userId" gorm:"index"`
	Username     string    `json:"username" gorm:"size:64"`
	ActivityType string    `json:"activityType" gorm:"size:32;not null"`
	Content      string    `json:"content" gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"index"`
}

// TableName 指定表名
func (GroupActivity) TableName() string {
	return "group_activities"
}

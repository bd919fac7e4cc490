package models

import (
	"encoding/json"
	"time"
)

const (
	RemovalReasonExpired   = "expired"
	RemovalReasonCancelled = "cancelled"
)

const (
	RemovalStatusProcessing      = "processing"
	RemovalStatusSuccess         = "success"
	RemovalStatusFailed          = "failed"
	RemovalStatusWhitelisted     = "whitelisted"
	RemovalStatusNoMemberID      = "no_member_id"
	RemovalStatusInvalidMemberID = "invalid_member_id"
	RemovalStatusError           = "error"
)

// RemovalLog is the append-only audit trail of sweep decisions. Multiple
// entries may exist for the same subscription across runs; SweepRunID groups
// the entries of one run.
type RemovalLog struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	SweepRunID        string    `gorm:"type:varchar(36);not null;index" json:"sweep_run_id"`
	Email             string    `gorm:"type:varchar(255);not null;index" json:"email"`
	TelegramUserID    string    `gorm:"type:varchar(32);default:''" json:"telegram_user_id"`
	Reason            string    `gorm:"type:varchar(16);not null" json:"reason"`
	Status            string    `gorm:"type:varchar(32);not null;index" json:"status"`
	GroupsRemovedJSON string    `gorm:"type:text" json:"groups_removed_json"`
	Notified          bool      `gorm:"default:false" json:"notified"`
	ErrorText         string    `gorm:"type:text" json:"error_text"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// SetGroupsRemoved stores the list of group ids the member was removed from.
func (l *RemovalLog) SetGroupsRemoved(groupIDs []int64) {
	if len(groupIDs) == 0 {
		l.GroupsRemovedJSON = "[]"
		return
	}
	b, err := json.Marshal(groupIDs)
	if err != nil {
		l.GroupsRemovedJSON = "[]"
		return
	}
	l.GroupsRemovedJSON = string(b)
}

// GroupsRemoved decodes the stored group id list.
func (l *RemovalLog) GroupsRemoved() []int64 {
	var ids []int64
	if l.GroupsRemovedJSON == "" {
		return ids
	}
	_ = json.Unmarshal([]byte(l.GroupsRemovedJSON), &ids)
	return ids
}

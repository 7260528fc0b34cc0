package model

import "time"

// BalanceSnapshot is append-only; one row per successful balance query.
type BalanceSnapshot struct {
	ID        uint64 `json:"id" gorm:"primaryKey"`
	Day       int    `json:"day" gorm:"index"`
	Balance   int64  `json:"balance"`
	CreatedAt time.Time
}

// MaterialStock tracks on-hand units per raw material plus finished goods.
type MaterialStock struct {
	ID        uint64 `json:"id" gorm:"primaryKey"`
	Material  string `json:"material" gorm:"size:64;uniqueIndex"`
	Units     int    `json:"units"`
	UpdatedAt time.Time
}

// FinishedGoods is the material name used for production output rows.
const FinishedGoods = "finished-goods"

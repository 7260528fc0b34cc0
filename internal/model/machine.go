package model

import "time"

type Machine struct {
	ID           uint64 `json:"id" gorm:"primaryKey"`
	Model        string `json:"model" gorm:"size:128"`
	Cost         int64  `json:"cost"`
	OutputPerDay int    `json:"output_per_day"`
	Status       string `json:"status" gorm:"size:32;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	MachineOK      = "OK"
	MachineBroken  = "BROKEN"
	MachineRetired = "RETIRED"
)

// Package db is the sqlite persistence layer: conversion history and
// session preferences.
package db

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/castlemill/convertd/internal/store"
)

// Open opens (or creates) the sqlite database and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	g, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := g.AutoMigrate(&ConversionRecord{}, &Preference{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return g, nil
}

// Recorder persists settled tasks as history rows. It satisfies
// store.Recorder.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(g *gorm.DB) *Recorder {
	return &Recorder{db: g}
}

func (r *Recorder) RecordConversion(t store.Task, elapsed time.Duration) {
	rec := ConversionRecord{
		TaskID:       t.ID.String(),
		SourceName:   t.SourceName,
		SourceExt:    t.SourceExt,
		TargetExt:    t.TargetExt,
		Status:       string(t.Status),
		ErrorMessage: t.ErrorMessage,
		OutputSize:   int64(len(t.ResultBytes)),
		DurationMs:   elapsed.Milliseconds(),
	}
	// History is best-effort; a write failure must not disturb the run.
	_ = r.db.Create(&rec).Error
}

// ListRecords returns history rows, newest first.
func ListRecords(g *gorm.DB, status string, limit, offset int) ([]ConversionRecord, int64, error) {
	q := g.Model(&ConversionRecord{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var rows []ConversionRecord
	err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&rows).Error
	return rows, count, err
}

// GetStats aggregates the history table.
func GetStats(g *gorm.DB) (Stats, error) {
	var s Stats
	if err := g.Model(&ConversionRecord{}).Count(&s.Total).Error; err != nil {
		return s, err
	}
	if err := g.Model(&ConversionRecord{}).Where("status = ?", "complete").Count(&s.Succeeded).Error; err != nil {
		return s, err
	}
	err := g.Model(&ConversionRecord{}).Where("status = ?", "error").Count(&s.Failed).Error
	return s, err
}

// Package repository persists session result sets.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/almariscal/criptohacienda/internal/models"
)

// SessionRecord is one stored session row. The full result set is kept as
// a JSON payload: sessions are immutable blobs, never queried field-wise.
type SessionRecord struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Payload   []byte    `gorm:"column:payload"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (SessionRecord) TableName() string {
	return "sessions"
}

// SessionRepository stores and loads complete session result sets.
type SessionRepository interface {
	Save(id string, data *models.SessionData) error
	Load(id string) (*models.SessionData, error)
	Delete(id string) (bool, error)
	Exists(id string) bool
}

type gormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository migrates the sessions table and returns a
// gorm-backed repository.
func NewGormSessionRepository(db *gorm.DB) (SessionRepository, error) {
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sessions table: %w", err)
	}
	return &gormSessionRepository{db: db}, nil
}

func (r *gormSessionRepository) Save(id string, data *models.SessionData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serialize session %s: %w", id, err)
	}
	record := SessionRecord{ID: id, Payload: payload, UpdatedAt: time.Now()}
	return r.db.Save(&record).Error
}

func (r *gormSessionRepository) Load(id string) (*models.SessionData, error) {
	var record SessionRecord
	err := r.db.First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var data models.SessionData
	if err := json.Unmarshal(record.Payload, &data); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	return &data, nil
}

func (r *gormSessionRepository) Delete(id string) (bool, error) {
	result := r.db.Delete(&SessionRecord{}, "id = ?", id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormSessionRepository) Exists(id string) bool {
	var count int64
	if err := r.db.Model(&SessionRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

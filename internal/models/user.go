package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Phone       string `json:"phone" gorm:"size:20"`
	DisplayName string `json:"displayName" gorm:"size:100"`
	Email       string `json:"email" gorm:"size:100"`
	// 安全 PIN 哈希；为空表示未设置，取消会话时不校验
	SafetyPINHash string    `json:"-" gorm:"size:100"`
	CreatedAt     time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// 受信任联系人（用户档案层，会话启动时快照到会话内）
type TrustedContact struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       uint      `json:"userId" gorm:"index"`
	Name         string    `json:"name" gorm:"size:100"`
	Phone        string    `json:"phone" gorm:"size:20"`
	Relationship string    `json:"relationship" gorm:"size:50"` // 如：sister、friend、neighbor
	Priority     int       `json:"priority"`
	NotifyVia    string    `json:"notifyVia" gorm:"size:20;default:SMS"`
	Safe         bool      `json:"safe" gorm:"default:true"` // 标记为不安全的联系人不会被通知
	CreatedAt    time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// GetUser 获取用户
func GetUser(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetSafeTrustedContacts 获取用户的安全联系人，按优先级排序
func GetSafeTrustedContacts(db *gorm.DB, userID uint) ([]TrustedContact, error) {
	var contacts []TrustedContact
	if err := db.Where("user_id = ? AND safe = ?", userID, true).
		Order("priority asc, id asc").Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

// SetSafetyPIN 设置用户的安全 PIN（bcrypt 哈希存储）
func SetSafetyPIN(db *gorm.DB, userID uint, pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.Model(&User{}).Where("id = ?", userID).
		Update("safety_pin_hash", string(hash)).Error
}

// VerifySafetyPIN 校验 PIN；bcrypt 比较本身是恒定时间安全的
func VerifySafetyPIN(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

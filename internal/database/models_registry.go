package database

import "sameem/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.UsernameReservation{},
		&models.UserBlock{},
		&models.Friendship{},
		&models.Message{},
		&models.MessageHide{},
		&models.CallLog{},
		&models.Report{},
	}
}

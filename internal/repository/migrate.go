package repository

import "gorm.io/gorm"

// AutoMigrate creates the schema from the entities. Production uses the goose
// migrations in /migrations; this is for sqlite tests and local runs.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ContactEntity{},
		&ThreadEntity{},
		&MessageEntity{},
		&OutboxJobEntity{},
		&AutomationRuleEntity{},
		&TagEntity{},
		&ThreadTagEntity{},
		&ThreadNoteEntity{},
		&ReplyTemplateEntity{},
		&HeartbeatEntity{},
		&DeliveryReportEntity{},
	)
}

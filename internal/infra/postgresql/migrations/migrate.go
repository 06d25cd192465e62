package migrations

import (
	"github.com/bifrost-cms/bifrost/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_sites_users",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.SiteModel{}, &repository.UserModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				if err := tx.Migrator().DropTable(&repository.UserModel{}); err != nil {
					return err
				}
				return tx.Migrator().DropTable(&repository.SiteModel{})
			},
		},
		{
			ID: "000002_create_contents",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ContentModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_contents_site_id ON contents (site_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ContentModel{})
			},
		},
		{
			ID: "000003_create_collection_items",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.CollectionItemModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_collection_items_site_type ON collection_items (site_id, collection_type, position)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.CollectionItemModel{})
			},
		},
		{
			ID: "000004_create_content_history",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.HistoryModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_history_site_changed ON content_history (site_id, changed_at DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_history_field ON content_history (site_id, field_key, changed_at DESC) WHERE field_key IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_history_item ON content_history (item_id, changed_at DESC) WHERE item_id IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.HistoryModel{})
			},
		},
		{
			ID: "000005_create_webhook_logs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.WebhookLogModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_webhook_logs_site_created ON webhook_logs (site_id, created_at DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_webhook_logs_due ON webhook_logs (next_attempt_at) WHERE status = 'pending'`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.WebhookLogModel{})
			},
		},
	})

	return m.Migrate()
}

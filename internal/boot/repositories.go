package boot

import (
	"wxauth/internal/repository"
	"wxauth/pkg/database"

	"gorm.io/gorm"
)

// Repositories 包含所有仓储实例
type Repositories struct {
	UserRepo         repository.UserRepository
	SceneRepo        repository.SceneRepository
	WebhookEventRepo repository.WebhookEventRepository
}

// InitRepositories 初始化所有仓储实例
func InitRepositories(db *gorm.DB, mongodb *database.MongoClient) *Repositories {
	return &Repositories{
		UserRepo:         repository.NewUserRepository(db),
		SceneRepo:        repository.NewSceneRepository(db),
		WebhookEventRepo: repository.NewWebhookEventRepository(mongodb),
	}
}

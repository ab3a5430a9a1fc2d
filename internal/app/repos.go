package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

func wireRepos(db *gorm.DB, log *logger.Logger) repos.Repos {
	log.Info("Wiring repos...")
	return repos.NewRepos(db, log)
}

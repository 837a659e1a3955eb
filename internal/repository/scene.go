package repository

import (
	"context"
	"errors"
	"time"

	"wxauth/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrSceneExists 场景值冲突
	ErrSceneExists = errors.New("scene already exists")
)

// MarkScannedResult 条件更新的结果
type MarkScannedResult int

const (
	// MarkScannedSuccess 本次调用完成了 pending→scanned 转移
	MarkScannedSuccess MarkScannedResult = iota
	// MarkScannedAlready 场景已被其他调用标记，结果未被覆盖
	MarkScannedAlready
	// MarkScannedNotFoundOrExpired 场景不存在或已过期
	MarkScannedNotFoundOrExpired
)

// SceneRepository 登录场景仓储接口
type SceneRepository interface {
	// Create 创建待扫码场景
	Create(ctx context.Context, scene *model.LoginScene) error

	// GetBySceneID 获取场景记录；pending但已过期的记录会先落库为expired（读时淘汰）
	GetBySceneID(ctx context.Context, sceneID string) (*model.LoginScene, error)

	// MarkScanned 原子条件转移 pending→scanned，并写入扫码结果。
	// 同一场景并发调用时恰好一次成功，其余观察到 AlreadyScanned；
	// 过期后到达的扫码一律拒绝。
	MarkScanned(ctx context.Context, sceneID, userInfo, tokens string) (MarkScannedResult, error)

	// DeleteExpired 删除已过期的场景记录（存储清理，非正确性要求）
	DeleteExpired(ctx context.Context) (int64, error)
}

// sceneRepository 登录场景仓储实现
type sceneRepository struct {
	db *gorm.DB
}

// NewSceneRepository 创建登录场景仓储实例
func NewSceneRepository(db *gorm.DB) SceneRepository {
	return &sceneRepository{db: db}
}

// Create 创建待扫码场景
func (r *sceneRepository) Create(ctx context.Context, scene *model.LoginScene) error {
	if scene.Status == "" {
		scene.Status = model.ScenePending
	}
	err := r.db.WithContext(ctx).Create(scene).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrSceneExists
	}
	return err
}

// GetBySceneID 获取场景记录
func (r *sceneRepository) GetBySceneID(ctx context.Context, sceneID string) (*model.LoginScene, error) {
	var scene model.LoginScene
	if err := r.db.WithContext(ctx).Where("scene_id = ?", sceneID).First(&scene).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	// 读时淘汰：pending且已过期的记录落库为expired再返回
	if scene.Status == model.ScenePending && scene.IsExpired(time.Now()) {
		r.db.WithContext(ctx).Model(&model.LoginScene{}).
			Where("scene_id = ? AND status = ?", sceneID, model.ScenePending).
			Update("status", model.SceneExpired)
		scene.Status = model.SceneExpired
	}

	return &scene, nil
}

// MarkScanned 原子条件转移 pending→scanned
func (r *sceneRepository) MarkScanned(ctx context.Context, sceneID, userInfo, tokens string) (MarkScannedResult, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&model.LoginScene{}).
		Where("scene_id = ? AND status = ? AND expires_at > ?", sceneID, model.ScenePending, now).
		Updates(map[string]interface{}{
			"status":     model.SceneScanned,
			"user_info":  userInfo,
			"tokens":     tokens,
			"scanned_at": now,
		})
	if result.Error != nil {
		return MarkScannedNotFoundOrExpired, result.Error
	}
	if result.RowsAffected > 0 {
		return MarkScannedSuccess, nil
	}

	// 零行更新：回读一次区分"已被扫"与"不存在或过期"
	var scene model.LoginScene
	err := r.db.WithContext(ctx).Where("scene_id = ?", sceneID).First(&scene).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return MarkScannedNotFoundOrExpired, nil
		}
		return MarkScannedNotFoundOrExpired, err
	}
	if scene.Status == model.SceneScanned {
		return MarkScannedAlready, nil
	}
	return MarkScannedNotFoundOrExpired, nil
}

// DeleteExpired 删除已过期的场景记录
func (r *sceneRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&model.LoginScene{})
	return result.RowsAffected, result.Error
}

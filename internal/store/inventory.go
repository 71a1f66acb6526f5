package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

type InventoryRepo struct {
	s *Store
}

// Quantity returns how many of an item type a team holds.
func (r *InventoryRepo) Quantity(ctx context.Context, teamID uint, itemType string) (int, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var item models.InventoryItem
	err := r.s.db.WithContext(ctx).
		Where("team_id = ? AND item_type = ?", teamID, itemType).
		First(&item).Error
	if err != nil {
		if Classify(err) == ErrNotFound {
			return 0, nil
		}
		return 0, Classify(err)
	}
	return item.Quantity, nil
}

// Consume decrements one item, guarded so the count never goes negative.
// Zero rows means the team ran out since eligibility was checked.
func (r *InventoryRepo) Consume(ctx context.Context, teamID uint, itemType string) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res := r.s.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("team_id = ? AND item_type = ? AND quantity > 0", teamID, itemType).
		Update("quantity", gorm.Expr("quantity - 1"))
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: team %d has no %s item", ErrConflict, teamID, itemType)
	}
	return nil
}

// Grant adds items, inserting the row when the team has none yet.
func (r *InventoryRepo) Grant(ctx context.Context, teamID uint, itemType string, quantity int) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	err := r.s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}, {Name: "item_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"quantity": gorm.Expr("quantity + ?", quantity)}),
	}).Create(&models.InventoryItem{
		TeamID:   teamID,
		ItemType: itemType,
		Quantity: quantity,
	}).Error
	return Classify(err)
}

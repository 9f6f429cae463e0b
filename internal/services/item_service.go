// internal/services/item_service.go
package services

import (
	"context"
	"fmt"

	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// ItemService 管理本局背包与装备，道具必须存在于当前主题的道具定义中
type ItemService struct {
	session *SessionService
	themes  *ThemeService
	logger  *utils.Logger
}

// NewItemService 创建道具服务
func NewItemService(session *SessionService, themes *ThemeService, logger *utils.Logger) *ItemService {
	return &ItemService{
		session: session,
		themes:  themes,
		logger:  logger.With("item"),
	}
}

// GetItem 在当前主题的道具定义中查找
func (s *ItemService) GetItem(ctx context.Context, itemType, itemID string) (*models.ItemDefinition, error) {
	themeID := s.session.CurrentTheme()
	if themeID == "" {
		return nil, apperrors.NewValidationError("没有进行中的游戏", nil)
	}
	for _, def := range s.themes.FetchAndCacheItemData(ctx, themeID, itemType) {
		if def.ID == itemID {
			if def.ItemType == "" {
				def.ItemType = itemType
			}
			return &def, nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("道具不存在: %s/%s", itemType, itemID), nil)
}

// AddItem 向背包添加道具，同一道具合并数量
func (s *ItemService) AddItem(ctx context.Context, itemType, itemID string, quantity int) error {
	if quantity <= 0 {
		return apperrors.NewValidationError("数量必须大于0", nil)
	}
	if _, err := s.GetItem(ctx, itemType, itemID); err != nil {
		return err
	}

	err := s.session.UpdateInventory(func(items []models.InventoryItem, _ models.EquippedItems) ([]models.InventoryItem, error) {
		for i := range items {
			if items[i].ItemID == itemID {
				items[i].Quantity += quantity
				return items, nil
			}
		}
		return append(items, models.InventoryItem{ItemID: itemID, ItemType: itemType, Quantity: quantity}), nil
	})
	if err == nil {
		s.logger.Debug("获得道具", map[string]interface{}{"item_id": itemID, "quantity": quantity})
	}
	return err
}

// RemoveItem 减少道具数量，数量归零时移出背包并卸下
func (s *ItemService) RemoveItem(itemID string, quantity int) error {
	if quantity <= 0 {
		return apperrors.NewValidationError("数量必须大于0", nil)
	}
	return s.session.UpdateInventory(func(items []models.InventoryItem, equipped models.EquippedItems) ([]models.InventoryItem, error) {
		for i := range items {
			if items[i].ItemID != itemID {
				continue
			}
			if items[i].Quantity < quantity {
				return nil, apperrors.NewValidationError(fmt.Sprintf("道具数量不足: %s", itemID), nil)
			}
			items[i].Quantity -= quantity
			if items[i].Quantity == 0 {
				items = append(items[:i], items[i+1:]...)
				for slot, equippedID := range equipped {
					if equippedID == itemID {
						delete(equipped, slot)
					}
				}
			}
			return items, nil
		}
		return nil, apperrors.NewNotFoundError("背包中没有该道具: "+itemID, nil)
	})
}

// Equip 装备背包中的道具到其定义的槽位，替换槽位上原有的道具
func (s *ItemService) Equip(ctx context.Context, itemID string) (string, error) {
	var owned *models.InventoryItem
	for _, item := range s.session.CurrentInventory() {
		if item.ItemID == itemID {
			owned = &item
			break
		}
	}
	if owned == nil {
		return "", apperrors.NewNotFoundError("背包中没有该道具: "+itemID, nil)
	}
	def, err := s.GetItem(ctx, owned.ItemType, itemID)
	if err != nil {
		return "", err
	}
	if def.Slot == "" {
		return "", apperrors.NewValidationError("该道具不可装备: "+itemID, nil)
	}

	err = s.session.UpdateInventory(func(items []models.InventoryItem, equipped models.EquippedItems) ([]models.InventoryItem, error) {
		equipped[def.Slot] = itemID
		return items, nil
	})
	return def.Slot, err
}

// Unequip 清空槽位
func (s *ItemService) Unequip(slot string) error {
	return s.session.UpdateInventory(func(items []models.InventoryItem, equipped models.EquippedItems) ([]models.InventoryItem, error) {
		if _, ok := equipped[slot]; !ok {
			return nil, apperrors.NewNotFoundError("槽位为空: "+slot, nil)
		}
		delete(equipped, slot)
		return items, nil
	})
}

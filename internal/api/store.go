// internal/api/store.go
package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/services"
	"github.com/Corphon/SceneIntruderClient/internal/storage"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// 存储层错误
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
)

const (
	accountsFile         = "accounts.json"
	defaultLoreInterval  = 10
	defaultUsageLimit    = 500
	defaultAccountTier   = "free"
	loreExcerptMaxRunes  = 160
	gameStatesDir        = "gamestates"
	progressDir          = "progress"
	unlocksFile          = "unlocks.json"
	minPasswordLength    = 6
	maxStoredTurnsPerRun = 2000
)

// Account 开发后端的账户记录
type Account struct {
	ID           string               `json:"id"`
	Email        string               `json:"email"`
	Username     string               `json:"username"`
	Tier         string               `json:"tier"`
	PasswordHash string               `json:"password_hash"`
	CreatedAt    time.Time            `json:"created_at"`
	APIUsage     models.APIUsageStats `json:"api_usage"`
}

type accountBook struct {
	Accounts map[string]*Account `json:"accounts"`
}

// StoredGameState 磁盘上的存档
type StoredGameState struct {
	models.LoadedGameState
	TurnsSinceLore int       `json:"turns_since_lore"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type unlockedWorlds struct {
	Themes []string `json:"themes"`
}

// StoreOptions 存储配置
type StoreOptions struct {
	DataDir      string
	LoreInterval int
	BcryptCost   int
	Logger       *utils.Logger
}

// Store 以 JSON 文件保存账户、存档与成长记录
type Store struct {
	files        *storage.FileStorage
	locks        *services.LockManager
	loreInterval int
	bcryptCost   int
	logger       *utils.Logger
}

// NewStore 创建存储
func NewStore(opts StoreOptions) (*Store, error) {
	files, err := storage.NewFileStorage(opts.DataDir)
	if err != nil {
		return nil, err
	}
	if opts.LoreInterval <= 0 {
		opts.LoreInterval = defaultLoreInterval
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Store{
		files:        files,
		locks:        services.NewLockManager(),
		loreInterval: opts.LoreInterval,
		bcryptCost:   opts.BcryptCost,
		logger:       opts.Logger.With("store"),
	}, nil
}

// Authenticate 校验邮箱与密码；邮箱未注册时自动创建账户
func (s *Store) Authenticate(email, password string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email", ErrInvalidCredentials)
	}

	var book accountBook
	var result Account
	err := s.files.UpdateJSONFile("", accountsFile, &book, func(bool) error {
		if book.Accounts == nil {
			book.Accounts = make(map[string]*Account)
		}
		if existing, ok := book.Accounts[email]; ok {
			if err := bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash), []byte(password)); err != nil {
				return ErrInvalidCredentials
			}
			result = *existing
			return nil
		}

		if utf8.RuneCountInString(password) < minPasswordLength {
			return fmt.Errorf("%w: password too short", ErrInvalidCredentials)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		username, _, _ := strings.Cut(email, "@")
		account := &Account{
			ID:           uuid.NewString(),
			Email:        email,
			Username:     username,
			Tier:         defaultAccountTier,
			PasswordHash: string(hash),
			CreatedAt:    time.Now(),
			APIUsage:     models.APIUsageStats{Limit: defaultUsageLimit, ModelUsage: map[string]int{}},
		}
		book.Accounts[email] = account
		result = *account
		s.logger.Info("已注册新账户", map[string]interface{}{"user_id": account.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SaveGameState 追加增量回合并覆盖其余字段。
// 已存储的回合ID会被跳过，重复提交同一增量不会产生重复历史。
func (s *Store) SaveGameState(userID string, payload models.GameStatePayload) (*models.SaveGameStateResponse, error) {
	response := &models.SaveGameStateResponse{}
	var newTurns []models.Turn

	err := s.locks.WithLock(userID+"/"+payload.ThemeID, func() error {
		var state StoredGameState
		err := s.files.UpdateJSONFile(gameStatesDir+"/"+userID, payload.ThemeID+".json", &state, func(bool) error {
			seen := make(map[string]struct{}, len(state.GameHistory))
			for _, turn := range state.GameHistory {
				seen[turn.ID] = struct{}{}
			}
			for _, turn := range payload.GameHistoryDelta {
				if _, dup := seen[turn.ID]; dup {
					continue
				}
				seen[turn.ID] = struct{}{}
				state.GameHistory = append(state.GameHistory, turn)
				newTurns = append(newTurns, turn)
			}
			if overflow := len(state.GameHistory) - maxStoredTurnsPerRun; overflow > 0 {
				state.GameHistory = state.GameHistory[overflow:]
			}

			state.ThemeID = payload.ThemeID
			state.LastDashboardUpdates = payload.LastDashboardUpdates
			state.LastGameStateIndicators = payload.LastGameStateIndicators
			state.CurrentPromptType = payload.CurrentPromptType
			state.LastSuggestedActions = payload.LastSuggestedActions
			state.PanelStates = payload.PanelStates
			state.CurrentInventory = payload.CurrentInventory
			state.EquippedItems = payload.EquippedItems
			runStats := payload.RunStats
			state.RunStats = &runStats
			state.IsBoonSelectionPending = payload.IsBoonSelectionPending
			state.ModelName = payload.ModelName
			state.UpdatedAt = time.Now()

			state.TurnsSinceLore += len(newTurns)
			if state.TurnsSinceLore >= s.loreInterval {
				lore := evolveLore(state.ThemeID, state.GameHistory)
				state.EvolvedLore = lore
				state.TurnsSinceLore = 0
				response.EvolvedLore = &lore
			}
			response.TurnsStored = len(state.GameHistory)
			return nil
		})
		if err != nil {
			return err
		}

		if payload.PlayerProgress != nil {
			progress := payload.PlayerProgress.Clone()
			progress.UserID = userID
			progress.ThemeID = payload.ThemeID
			if err := s.files.SaveJSONFile(progressDir+"/"+userID, payload.ThemeID+".json", progress); err != nil {
				return err
			}
		}
		if payload.NewWorldUnlock != "" {
			if err := s.recordUnlock(userID, payload.NewWorldUnlock); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordUsage(userID, payload.ModelName, newTurns); err != nil {
		s.logger.Warn("更新用量失败", map[string]interface{}{"user_id": userID, "error": err.Error()})
	}
	s.logger.Debug("存档已保存", map[string]interface{}{
		"user_id": userID, "theme_id": payload.ThemeID, "appended": len(newTurns), "turns": response.TurnsStored,
	})
	return response, nil
}

func (s *Store) recordUnlock(userID, themeID string) error {
	var unlocks unlockedWorlds
	return s.files.UpdateJSONFile(progressDir+"/"+userID, unlocksFile, &unlocks, func(bool) error {
		for _, existing := range unlocks.Themes {
			if existing == themeID {
				return nil
			}
		}
		unlocks.Themes = append(unlocks.Themes, themeID)
		return nil
	})
}

// recordUsage 按模型统计新存入的模型回合数量
func (s *Store) recordUsage(userID, modelName string, turns []models.Turn) error {
	modelTurns := 0
	for _, turn := range turns {
		if turn.Role == models.RoleModel {
			modelTurns++
		}
	}
	if modelTurns == 0 {
		return nil
	}
	if modelName == "" {
		modelName = "unknown"
	}

	var book accountBook
	return s.files.UpdateJSONFile("", accountsFile, &book, func(bool) error {
		for _, account := range book.Accounts {
			if account.ID != userID {
				continue
			}
			if account.APIUsage.ModelUsage == nil {
				account.APIUsage.ModelUsage = map[string]int{}
			}
			account.APIUsage.Used += modelTurns
			account.APIUsage.ModelUsage[modelName] += modelTurns
			return nil
		}
		return nil
	})
}

// LoadGameState 读取存档，不存在时返回 ErrNotFound
func (s *Store) LoadGameState(userID, themeID string) (*models.LoadedGameState, error) {
	var state StoredGameState
	if err := s.files.LoadJSONFile(gameStatesDir+"/"+userID, themeID+".json", &state); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if state.GameHistory == nil {
		state.GameHistory = []models.Turn{}
	}
	return &state.LoadedGameState, nil
}

// LoadProgress 读取成长记录，不存在时返回 ErrNotFound
func (s *Store) LoadProgress(userID, themeID string) (*models.UserThemeProgress, error) {
	var progress models.UserThemeProgress
	if err := s.files.LoadJSONFile(progressDir+"/"+userID, themeID+".json", &progress); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &progress, nil
}

// UnlockedWorlds 用户已解锁的主题
func (s *Store) UnlockedWorlds(userID string) ([]string, error) {
	var unlocks unlockedWorlds
	if err := s.files.LoadJSONFile(progressDir+"/"+userID, unlocksFile, &unlocks); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	return unlocks.Themes, nil
}

// evolveLore 根据最近的叙事生成一段简短的世界记述
func evolveLore(themeID string, history []models.Turn) string {
	excerpt := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleModel {
			excerpt = strings.TrimSpace(history[i].Text())
			break
		}
	}
	if utf8.RuneCountInString(excerpt) > loreExcerptMaxRunes {
		excerpt = string([]rune(excerpt)[:loreExcerptMaxRunes]) + "…"
	}
	lore := fmt.Sprintf("Chronicle of %s, %d turns recorded.", themeID, len(history))
	if excerpt != "" {
		lore += " Last heard: " + excerpt
	}
	return lore
}

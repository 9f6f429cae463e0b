// cmd/client/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Corphon/SceneIntruderClient/internal/app"
	"github.com/Corphon/SceneIntruderClient/internal/config"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/services"
)

var reader = bufio.NewReader(os.Stdin)

func main() {
	fmt.Println("🚀 SceneIntruder Console Client")
	fmt.Println("=================================")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, app.Options{Config: cfg, LogOutput: os.Stderr})
	if err != nil {
		log.Fatalf("❌ 初始化失败: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("⚠️ 退出时出现错误: %v\n", err)
		}
	}()

	events := a.Persistence().Events().Subscribe()
	defer a.Persistence().Events().Unsubscribe(events)
	go printSaveEvents(events)

	if !a.Themes().LoadManifestAll(ctx) {
		fmt.Println("⚠️ 部分主题资源加载失败，对应主题暂不可用")
	}

	for {
		showMenu(a)
		switch choice := prompt("请选择"); choice {
		case "1", "themes":
			listThemes(a)
		case "2", "login":
			signIn(ctx, a)
		case "3", "play":
			activate(ctx, a)
		case "4", "continue":
			play(ctx, a)
		case "5", "stats":
			showStats(a)
		case "6", "lang":
			a.Session().SetAppLanguage(prompt("语言代码"))
		case "7", "logout":
			if err := a.Users().SignOut(ctx); err != nil {
				fmt.Printf("⚠️ %v\n", err)
			}
		case "0", "quit", "exit":
			fmt.Println("👋 再见")
			return
		default:
			fmt.Println("❓ 未知选项")
		}
	}
}

func showMenu(a *app.App) {
	session := a.Session()
	status := "未登录"
	if user := session.CurrentUser(); user != nil {
		status = user.Email
	}
	fmt.Printf("\n[%s | 主题: %s | 语言: %s]\n", status, orDash(session.CurrentTheme()), session.AppLanguage())
	fmt.Println("1. 主题列表   2. 登录   3. 开始主题   4. 继续游戏")
	fmt.Println("5. 角色属性   6. 切换语言   7. 登出   0. 退出")
}

func listThemes(a *app.App) {
	lang := a.Session().AppLanguage()
	for _, desc := range a.Themes().Manifest().All() {
		name, ok := a.Themes().GetText(desc.ID, "theme_name", lang)
		if !ok {
			name = desc.ID
		}
		flags := []string{}
		if !desc.Playable {
			flags = append(flags, "即将推出")
		}
		if desc.LockedForAnonymous {
			flags = append(flags, "需登录")
		}
		if !a.Themes().IsReady(desc.ID) {
			flags = append(flags, "资源未就绪")
		}
		fmt.Printf("  %-16s %s %v\n", desc.ID, name, flags)
	}
}

func signIn(ctx context.Context, a *app.App) {
	email := prompt("邮箱")
	password := prompt("密码")
	user, err := a.Users().SignIn(ctx, email, password)
	if err != nil {
		fmt.Printf("❌ 登录失败: %v\n", err)
		return
	}
	fmt.Printf("✅ 欢迎, %s\n", orDash(user.Username))
	if usage := a.Session().APIUsage(); usage != nil {
		fmt.Printf("   用量 %d/%d\n", usage.Used, usage.Limit)
	}
}

func activate(ctx context.Context, a *app.App) {
	themeID := prompt("主题ID")
	if err := a.Game().SwitchTheme(ctx, themeID); err != nil {
		fmt.Printf("❌ 无法开始主题: %v\n", err)
		return
	}
	fmt.Printf("✅ %s\n", a.Game().ThemeText("theme_name"))
	if text, ok := a.Themes().GetLoadedPromptText(themeID, a.Session().CurrentPromptType()); ok {
		fmt.Println(text)
	}
	for _, turn := range tail(a.Session().GameHistory(), 5) {
		printTurn(turn)
	}
}

// play 读取玩家行动直到 /back。
// /narrate 文本 [xp] 记录一段叙事，/boon 类型 [特质] 选择恩赐，/name 名字 设置角色名，
// /inv 查看背包，/equip 道具ID 装备道具。
func play(ctx context.Context, a *app.App) {
	if a.Session().CurrentTheme() == "" {
		fmt.Println("⚠️ 请先开始一个主题")
		return
	}
	fmt.Println("输入行动，/back 返回菜单")
	for {
		line := prompt(">")
		switch {
		case line == "/back" || line == "":
			return
		case strings.HasPrefix(line, "/narrate "):
			text, xp := splitTrailingInt(strings.TrimPrefix(line, "/narrate "))
			report(a.Game().RecordNarration(ctx, services.Narration{Text: text, XPAwarded: xp}))
		case strings.HasPrefix(line, "/boon "):
			fields := strings.Fields(strings.TrimPrefix(line, "/boon "))
			selection := models.BoonSelection{Type: fields[0]}
			if len(fields) > 1 {
				selection.TraitKey = fields[1]
			}
			report(a.Game().ChooseBoon(ctx, selection))
		case strings.HasPrefix(line, "/equip "):
			slot, err := a.Items().Equip(ctx, strings.TrimPrefix(line, "/equip "))
			if err == nil {
				fmt.Printf("🛡️ 已装备到 %s\n", slot)
			}
			report(err)
		case line == "/inv":
			for _, item := range a.Session().CurrentInventory() {
				fmt.Printf("  %s x%d (%s)\n", item.ItemID, item.Quantity, item.ItemType)
			}
			fmt.Printf("  装备: %v\n", a.Session().EquippedItems())
		case strings.HasPrefix(line, "/name "):
			report(a.Progress().SetCharacterName(strings.TrimPrefix(line, "/name ")))
		default:
			report(a.Game().SubmitPlayerAction(ctx, line))
		}
		if a.Session().IsBoonSelectionPending() {
			fmt.Println("⭐ 升级！使用 /boon max_integrity|max_willpower|aptitude|resilience|trait <key>")
		}
	}
}

func showStats(a *app.App) {
	s := a.Session()
	if s.CurrentTheme() == "" {
		fmt.Println("没有进行中的游戏")
		return
	}
	stats := s.RunStats()
	fmt.Printf("等级 %d\n", s.PlayerLevel())
	fmt.Printf("完整度 %d/%d  意志 %d/%d\n", stats.CurrentIntegrity, s.EffectiveMaxIntegrity(), stats.CurrentWillpower, s.EffectiveMaxWillpower())
	fmt.Printf("天资 %d  韧性 %d  压力 %d\n", s.EffectiveAptitude(), s.EffectiveResilience(), s.CurrentStrainLevel())
	fmt.Printf("特质 %v  状态 %v\n", s.AcquiredTraitKeys(), s.ActiveConditions())
	fmt.Printf("历史 %d 回合，未保存 %d\n", len(s.GameHistory()), len(s.UnsavedDelta()))
	if lore := s.EvolvedLore(); lore != "" {
		fmt.Printf("📜 %s\n", lore)
	}
}

func printSaveEvents(events <-chan services.SaveEvent) {
	for event := range events {
		switch event.Status {
		case services.SaveStatusSaved:
			fmt.Printf("\n💾 已保存 %d 回合\n", event.Turns)
		case services.SaveStatusFailed:
			fmt.Printf("\n⚠️ 保存失败，%d 回合稍后重试: %s\n", event.Turns, event.Message)
		}
	}
}

func printTurn(turn models.Turn) {
	switch turn.Role {
	case models.RoleUser:
		fmt.Printf("🧍 %s\n", turn.Text())
	case models.RoleModel:
		fmt.Printf("📖 %s\n", turn.Text())
	default:
		fmt.Printf("ℹ️ %s\n", turn.Text())
	}
}

func report(err error) {
	if err != nil {
		fmt.Printf("❌ %v\n", err)
	}
}

func prompt(label string) string {
	fmt.Printf("%s: ", label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// splitTrailingInt 把 "text 50" 拆成文本和经验值
func splitTrailingInt(s string) (string, int) {
	idx := strings.LastIndex(s, " ")
	if idx < 0 {
		return s, 0
	}
	n, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return s, 0
	}
	return strings.TrimSpace(s[:idx]), n
}

func tail(turns []models.Turn, n int) []models.Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

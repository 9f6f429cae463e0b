// internal/storage/migrations/migrations.go
package migrations

import "embed"

// FS 内嵌的偏好库迁移脚本
//
//go:embed *.sql
var FS embed.FS

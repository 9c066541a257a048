// Package loader registers cache drivers via blank imports.
//
// Usage in main.go:
//
//	import _ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache/loader"
package loader

import (
	// Register the memory cache driver
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache/memory"

	// Register the redis cache driver
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache/redis"
)

// Package loader registers pub/sub drivers via blank imports.
package loader

import (
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub/memory"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub/redis"
)

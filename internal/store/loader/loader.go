// Package loader registers store drivers via blank imports.
package loader

import (
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/store/json"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/store/memory"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/store/mongodb"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/store/postgres"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/store/sqlite"
)

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/migration"
	"github.com/prompthive/costlens/internal/observability"
	"github.com/prompthive/costlens/internal/scheduler"
	"github.com/prompthive/costlens/internal/server"
	"github.com/prompthive/costlens/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,

		server.Module,
		migration.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

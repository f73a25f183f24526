package main

import (
	"github.com/bazaarhq/paygate/internal/config"
	"github.com/bazaarhq/paygate/internal/logger"
	"github.com/bazaarhq/paygate/internal/payment"
	"github.com/bazaarhq/paygate/internal/server"
	"github.com/bazaarhq/paygate/internal/wallet"
	"github.com/bazaarhq/paygate/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,

		wallet.Module,
		payment.Module,

		server.Module,
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

package main

import (
	"github.com/EHS-Labs/sage/backend/internal/server"
	"github.com/EHS-Labs/sage/backend/internal/util"
	"github.com/EHS-Labs/sage/backend/pkg/logger"
	"github.com/EHS-Labs/sage/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}

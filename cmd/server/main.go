package main

import (
	"github.com/helmsman-ai/concierge/internal/server"
	"github.com/helmsman-ai/concierge/internal/util"
	"github.com/helmsman-ai/concierge/pkg/logger"
	"github.com/helmsman-ai/concierge/pkg/logger/console"

	_ "github.com/lib/pq"
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

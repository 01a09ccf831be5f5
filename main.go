package main

import (
	"github.com/joho/godotenv"

	"github.com/bnnchamploo/bandle-garden/config"
	"github.com/bnnchamploo/bandle-garden/models"
	"github.com/bnnchamploo/bandle-garden/routes"
	"github.com/bnnchamploo/bandle-garden/utils"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.User{}, &models.Post{}, &models.Reply{}, &models.Like{})

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

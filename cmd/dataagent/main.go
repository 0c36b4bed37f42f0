package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/dataagent/dataagent/internal/cli/dataagent"
)

func main() {
	_ = godotenv.Load()
	os.Exit(int(dataagent.Run()))
}

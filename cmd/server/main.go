package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information (set by build script)
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Set Gin to release mode by default (can be overridden by GIN_MODE env var)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	var configPath string
	rootCmd := &cobra.Command{
		Use:     "consent-engine",
		Short:   "Open Banking consent engine",
		Version: fmt.Sprintf("%s (built %s)", version, buildDate),
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"),
		"path to deployment.yaml (searched in repository/conf and configs when empty)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(expireCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

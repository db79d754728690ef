// Команда token выпускает JWT для локальной разработки и ручной проверки API.
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/token -tg 123456 -name "Анна"
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/config"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/jwt"
)

func main() {
	var (
		telegramID int64
		name       string
		ttl        time.Duration
	)
	flag.Int64Var(&telegramID, "tg", 0, "telegram account id (sub claim)")
	flag.StringVar(&name, "name", "", "display name")
	flag.DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to jwttoken.token_ttl from config")
	flag.Parse()

	if telegramID <= 0 {
		exitWithError(errors.New("-tg must be a positive telegram id"))
	}

	cfg := config.MustLoad()
	if cfg.JWTSecretKey == "" {
		exitWithError(errors.New("jwttoken.jwt_secret_key is not set"))
	}
	if ttl <= 0 {
		ttl = cfg.TokenTTL
	}

	token, err := jwt.NewJWTMaker(cfg.JWTSecretKey, ttl).GenerateToken(telegramID, name)
	if err != nil {
		exitWithError(err)
	}
	fmt.Println(token)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "token:", err)
	os.Exit(1)
}

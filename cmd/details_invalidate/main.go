package main

import (
	"context"
	"flag"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/coachprogress/internal/config"
	"github.com/2beens/coachprogress/internal/logging"
	"github.com/2beens/coachprogress/internal/progress"
	"github.com/2beens/coachprogress/internal/progress/details"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// details_invalidate drops cached item details after catalog edits. Running services
// drop their local copies as well.
func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with secrets")
	categoryName := flag.String("category", "", "catalog of the items [fitness | nutrition]")
	idsList := flag.String("ids", "", "comma separated item ids")
	flag.Parse()

	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	closeLogs := logging.Setup(logging.LoggerSetupParams{
		LogToStdout: true,
		LogLevel:    cfg.LogLevel,
		Environment: cfg.Environment,
	})
	defer closeLogs()

	category := progress.ParseCategory(*categoryName)
	if !category.IsValid() {
		log.Fatalf("invalid category [%s], use -category fitness|nutrition", *categoryName)
	}
	ids, err := parseIDs(*idsList)
	if err != nil {
		log.Fatalf("item ids [%s]: %s", *idsList, err)
	}
	if len(ids) == 0 {
		log.Fatalln("no item ids set, use -ids")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: os.Getenv("COACHPROGRESS_REDIS_PASS"),
		DB:       0, // use default DB
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Errorf("close redis client: %s", err)
		}
	}()

	// lookups never happen here, the catalog is not needed
	cache := details.NewCache(rdb, nil, cfg.ItemDetailsCacheTTL(), nil)
	if err := cache.Invalidate(ctx, category, ids...); err != nil {
		log.Errorf("invalidate %s items %v: %s", category, ids, err)
		os.Exit(1)
	}
	log.Infof("invalidated %s item details %v", category, ids)
}

func parseIDs(list string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

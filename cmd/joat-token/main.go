package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	joat "github.com/bionicotaku/lingo-utils-joat"
)

type config struct {
	Provider     string        `env:"JOAT_PROVIDER"`
	ClientID     string        `env:"JOAT_CLIENT_ID"`
	MasterSecret string        `env:"JOAT_MASTER_SECRET"`
	RedisURL     string        `env:"JOAT_REDIS_URL"`
	SaltPrefix   string        `env:"JOAT_SALT_PREFIX"`
	Codec        string        `env:"JOAT_CODEC" envDefault:"jwx"`
	Lifetime     time.Duration `env:"JOAT_LIFETIME" envDefault:"1h"`
	Timeout      time.Duration `env:"JOAT_TIMEOUT" envDefault:"5s"`
	Debug        bool          `env:"JOAT_DEBUG"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	envPath := defaultEnvPath()
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("warning: load %s: %v", envPath, err)
	}
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse environment: %v", err)
	}

	switch command {
	case "issue":
		runIssue(cfg, args)
	case "verify":
		runVerify(cfg, args)
	case "provision", "rotate", "revoke":
		runSalt(cfg, command, args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: joat-token <issue|verify|provision|rotate|revoke> [flags]")
}

func defaultEnvPath() string {
	if path := os.Getenv("JOAT_ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}

func commonFlags(fset *flag.FlagSet, cfg *config) {
	fset.StringVar(&cfg.Provider, "provider", cfg.Provider, "Provider name / issuer (env JOAT_PROVIDER)")
	fset.StringVar(&cfg.Codec, "codec", cfg.Codec, "Token codec: jwx or golang-jwt (env JOAT_CODEC)")
	fset.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for per-user salts (env JOAT_REDIS_URL)")
	fset.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout for secret derivation")
	fset.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Log rejected tokens at debug level")
}

func runIssue(cfg config, args []string) {
	fset := flag.NewFlagSet("issue", flag.ExitOnError)
	commonFlags(fset, &cfg)
	client := fset.String("client", cfg.ClientID, "Client id / audience (env JOAT_CLIENT_ID)")
	user := fset.String("user", "", "User id / subject")
	scope := fset.String("scope", "", "Comma separated scope list")
	lifetime := fset.Duration("lifetime", cfg.Lifetime, "Token lifetime (env JOAT_LIFETIME)")
	jti := fset.String("jti", "", `Token id; "auto" generates one`)
	_ = fset.Parse(args)

	authority, closeFn := newAuthority(cfg)
	defer closeFn()

	if *jti == "auto" {
		*jti = joat.NewTokenID()
	}
	req := joat.IssueRequest{
		ClientID: *client,
		UserID:   *user,
		Scope:    splitScope(*scope),
		Lifetime: joat.Lifetime(*lifetime),
		TokenID:  *jti,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	token, err := authority.Issue(ctx, req)
	if err != nil {
		log.Fatalf("issue failed: %v", err)
	}
	fmt.Println(token)
}

func runVerify(cfg config, args []string) {
	fset := flag.NewFlagSet("verify", flag.ExitOnError)
	commonFlags(fset, &cfg)
	token := fset.String("token", os.Getenv("JOAT_TOKEN"), "Token to verify (env JOAT_TOKEN)")
	_ = fset.Parse(args)

	if *token == "" {
		fset.Usage()
		log.Fatal("token is required")
	}

	authority, closeFn := newAuthority(cfg)
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	payload, err := authority.Verify(ctx, *token)
	if err != nil {
		if joat.IsExpired(err) {
			log.Fatalf("token expired: %v", err)
		}
		log.Fatalf("verification failed: %v", err)
	}
	printPayload(payload)
}

func runSalt(cfg config, command string, args []string) {
	fset := flag.NewFlagSet(command, flag.ExitOnError)
	commonFlags(fset, &cfg)
	user := fset.String("user", "", "User id whose salt to change")
	_ = fset.Parse(args)

	if cfg.RedisURL == "" || *user == "" {
		fset.Usage()
		log.Fatal("redis-url and user are required")
	}
	rdb, deriver := newRedisDeriver(cfg)
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	var err error
	switch command {
	case "provision":
		err = deriver.Provision(ctx, *user)
	case "rotate":
		err = deriver.Rotate(ctx, *user)
	case "revoke":
		err = deriver.Revoke(ctx, *user)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
	log.Printf("%s: salt updated for user %q", command, *user)
}

func newAuthority(cfg config) (*joat.Authority, func()) {
	if cfg.MasterSecret == "" {
		log.Fatal("JOAT_MASTER_SECRET is required")
	}

	var (
		deriver joat.SecretDeriver = joat.HKDFDeriver{Master: []byte(cfg.MasterSecret)}
		closeFn                    = func() {}
	)
	if cfg.RedisURL != "" {
		rdb, redisDeriver := newRedisDeriver(cfg)
		deriver = redisDeriver
		closeFn = func() { _ = rdb.Close() }
	}

	var codec joat.Codec
	switch cfg.Codec {
	case "", "jwx":
		codec = joat.NewJWXCodec()
	case "golang-jwt":
		codec = joat.NewGolangJWTCodec()
	default:
		log.Fatalf("unknown codec %q", cfg.Codec)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	authority, err := joat.New(joat.Config{
		Provider: cfg.Provider,
		ClientID: cfg.ClientID,
		Lifetime: cfg.Lifetime,
		Deriver:  deriver,
		Codec:    codec,
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	})
	if err != nil {
		closeFn()
		log.Fatalf("create authority: %v", err)
	}
	return authority, closeFn
}

func newRedisDeriver(cfg config) (*redis.Client, *joat.RedisSaltDeriver) {
	if cfg.MasterSecret == "" {
		log.Fatal("JOAT_MASTER_SECRET is required")
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	deriver, err := joat.NewRedisSaltDeriver(rdb, []byte(cfg.MasterSecret), cfg.SaltPrefix)
	if err != nil {
		_ = rdb.Close()
		log.Fatalf("create redis deriver: %v", err)
	}
	return rdb, deriver
}

func splitScope(raw string) []string {
	scope := []string{}
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scope = append(scope, s)
		}
	}
	return scope
}

func printPayload(payload *joat.Payload) {
	fmt.Println("== Access Token Verified ==")
	fmt.Printf("client_id    : %s\n", payload.ClientID)
	fmt.Printf("user_id      : %s\n", payload.UserID)
	fmt.Printf("scope        : %s\n", strings.Join(payload.AuthorizedScope, " "))
	if payload.TokenID != "" {
		fmt.Printf("token_id     : %s\n", payload.TokenID)
	}
	fmt.Printf("issued_at    : %s\n", payload.IssuedAt.Format(time.RFC3339))
	fmt.Printf("expires_at   : %s\n", payload.ExpiresAt.Format(time.RFC3339))
}

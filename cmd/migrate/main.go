package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/angelmondragon/giftflow-backend/pkg/boot"
	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db"
	"github.com/angelmondragon/giftflow-backend/pkg/migrate"
	"github.com/angelmondragon/giftflow-backend/pkg/security"
)

const usage = "up|down|status|version|create|validate|seal"

func main() {
	cmd := flag.String("cmd", "up", "migration command: "+usage)
	dir := flag.String("dir", migrate.SourceDir, "migration source directory for create and validate")
	name := flag.String("name", "", "migration name (create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	p := boot.Start("migrate")
	ctx := p.Log.WithFields(context.Background(), map[string]any{
		"env": p.Config.App.Env,
		"cmd": *cmd,
	})

	switch *cmd {
	case "create":
		path, err := migrate.Create(*dir, *name, time.Now())
		p.Must("create migration", err)
		fmt.Println(path)
		return
	case "validate":
		p.Must("validate migrations", migrate.Validate(*dir))
		p.Log.Info(ctx, "migrations valid")
		return
	case "seal":
		sealed, err := sealStdin(p.Config.Security, os.Stdin)
		p.Must("seal", err)
		fmt.Println(sealed)
		return
	}

	client, err := db.New(ctx, p.Config.DB, p.Log)
	p.Must("database", err)
	p.OnClose("database", client.Close)
	sqlDB, err := client.DB().DB()
	p.Must("sql handle", err)
	m, err := migrate.New(sqlDB, p.Log)
	p.Must("migrator", err)

	p.Run(ctx, func(ctx context.Context) error {
		switch *cmd {
		case "up":
			return m.Up(ctx)
		case "down":
			return m.Down(ctx)
		case "status":
			pending, err := m.Status(ctx)
			if err == nil {
				p.Log.Info(p.Log.WithField(ctx, "pending", pending), "status complete")
			}
			return err
		case "version":
			if *version == "" {
				return errors.New("-version is required")
			}
			return m.To(ctx, *version)
		default:
			return fmt.Errorf("unknown -cmd %q (want %s)", *cmd, usage)
		}
	})
}

// sealStdin encrypts one secret, such as a marketplace password, for storage.
func sealStdin(cfg config.SecurityConfig, in io.Reader) (string, error) {
	sealer, err := security.NewSealer(cfg)
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	secret := bytes.TrimRight(raw, "\r\n")
	if len(secret) == 0 {
		return "", errors.New("nothing to seal on stdin")
	}
	return sealer.Seal(secret)
}

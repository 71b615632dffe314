package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mathemusician/church-volunteers/internal/db"
	"github.com/mathemusician/church-volunteers/internal/logger"
	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/mathemusician/church-volunteers/internal/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const demoAPIKey = "11111111111111111111111111111111"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo organization with a weekly Sunday Service template",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.OpenMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		ctx := cmd.Context()
		org := model.Organization{Name: "Grace Chapel", APIKey: demoAPIKey, Status: "active"}
		org.Slug = util.Slugify(org.Name)
		orgID, err := seedOrganization(ctx, sqlDB, org)
		if err != nil {
			return err
		}

		tplID, err := seedTemplate(ctx, sqlDB, orgID, "Sunday Service", nextWeekday(time.Now(), time.Sunday))
		if err != nil {
			return err
		}
		if err := seedList(ctx, sqlDB, tplID, "Greeters", 2); err != nil {
			return err
		}

		logger.Log.Info("seed completed",
			zap.Int64("organization_id", orgID),
			zap.Int64("template_id", tplID),
			zap.String("api_key", demoAPIKey),
		)
		return nil
	},
}

func seedOrganization(ctx context.Context, dbx *sqlx.DB, o model.Organization) (int64, error) {
	const q = `
INSERT INTO organizations (name, slug, api_key, status, created_at, updated_at)
VALUES (?, ?, ?, ?, NOW(), NOW())
ON DUPLICATE KEY UPDATE name = VALUES(name), status = VALUES(status), updated_at = NOW()
`
	if _, err := dbx.ExecContext(ctx, q, o.Name, o.Slug, o.APIKey, o.Status); err != nil {
		return 0, fmt.Errorf("upsert organization: %w", err)
	}
	var id int64
	if err := dbx.GetContext(ctx, &id, `SELECT id FROM organizations WHERE api_key = ?`, o.APIKey); err != nil {
		return 0, fmt.Errorf("select organization: %w", err)
	}
	return id, nil
}

func seedTemplate(ctx context.Context, dbx *sqlx.DB, orgID int64, title string, anchor time.Time) (int64, error) {
	slug := util.Slugify(title)
	var id int64
	err := dbx.GetContext(ctx, &id, `SELECT id FROM events WHERE organization_id = ? AND slug = ?`, orgID, slug)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("select template: %w", err)
	}

	res, err := dbx.ExecContext(ctx, `
INSERT INTO events (organization_id, slug, title, description, is_recurring, is_active, anchor_date, created_at, updated_at)
VALUES (?, ?, ?, '', 1, 1, ?, NOW(), NOW())
`, orgID, slug, title, anchor.Format(model.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("insert template: %w", err)
	}
	return res.LastInsertId()
}

func seedList(ctx context.Context, dbx *sqlx.DB, eventID int64, title string, max int) error {
	var n int
	if err := dbx.GetContext(ctx, &n, `SELECT COUNT(*) FROM lists WHERE event_id = ? AND title = ?`, eventID, title); err != nil {
		return fmt.Errorf("count lists: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err := dbx.ExecContext(ctx, `
INSERT INTO lists (event_id, title, description, max_slots, is_locked, position, created_at)
VALUES (?, ?, '', ?, 0, 0, NOW())
`, eventID, title, max)
	if err != nil {
		return fmt.Errorf("insert list: %w", err)
	}
	return nil
}

// nextWeekday returns the first date on or after t falling on wd.
func nextWeekday(t time.Time, wd time.Weekday) time.Time {
	d := model.DateOf(t)
	return d.AddDate(0, 0, (int(wd)-int(d.Weekday())+7)%7)
}

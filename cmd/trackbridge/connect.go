package main

import (
	"context"
	"fmt"

	"github.com/trackbridge/trackbridge/internal/config"
	"github.com/trackbridge/trackbridge/internal/gforge"
	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/target"
	"github.com/trackbridge/trackbridge/internal/telemetry"
)

// openTarget builds the GitHub client. A bare repository name is owned by
// the authenticated user. The result is wrapped for telemetry.
func openTarget(ctx context.Context, cfg *config.Config) (target.Target, error) {
	owner, repo := github.SplitRepo(cfg.Target.Repo)
	if repo == "" {
		return nil, fmt.Errorf("target.repo %q has no repository name", cfg.Target.Repo)
	}
	client := github.NewClient(cfg.Target.Token, owner, repo)
	if cfg.Target.Endpoint != "" {
		client = client.WithBaseURL(cfg.Target.Endpoint)
	}
	if owner == "" {
		me, err := client.CurrentUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving repository owner: %w", err)
		}
		client = client.WithOwner(me.Login)
		logger.Debug("repository owner defaulted to token user", "owner", me.Login)
	}
	return telemetry.WrapTarget(client), nil
}

// openSource logs into GForge and resolves the project.
func openSource(ctx context.Context, cfg *config.Config) (*gforge.Session, error) {
	client := gforge.NewClient(cfg.Source.Endpoint, cfg.Source.Namespace)
	session, err := gforge.Open(ctx, client, cfg.Source.Login, cfg.Source.Password, cfg.Source.Project)
	if err != nil {
		return nil, fmt.Errorf("connecting to GForge: %w", err)
	}
	logger.Debug("gforge session open", "project", cfg.Source.Project, "user_id", session.UserID())
	return session, nil
}

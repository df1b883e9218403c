package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
)

// Single-record pushes used after local mutations. Each is a no-op when
// no session is active. They read the record fresh from the store, so a
// push that runs after a later edit sends the later state.

// PushArticle uploads the article and backfills its cloud id.
func (e *Engine) PushArticle(ctx context.Context, id int64) error {
	userID, ok := e.userID()
	if !ok {
		return nil
	}

	_, err := e.pushArticle(ctx, userID, id)

	return err
}

func (e *Engine) pushArticle(ctx context.Context, userID string, id int64) (string, error) {
	a, err := e.store.Article(id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil
		}

		return "", err
	}

	row, err := e.remote.UpsertArticle(ctx, *a, userID)
	if err != nil {
		return "", fmt.Errorf("pushing article %d: %w", id, err)
	}

	if a.CloudID == "" {
		if err := e.store.SetArticleCloudID(id, row.ID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return "", fmt.Errorf("saving cloud id of article %d: %w", id, err)
		}
	}

	return row.ID, nil
}

// PushArticleDelete removes the remote article. The cloud id must be
// captured before the local delete.
func (e *Engine) PushArticleDelete(ctx context.Context, cloudID string) error {
	if _, ok := e.userID(); !ok || cloudID == "" {
		return nil
	}

	removed, err := e.remote.DeleteArticle(ctx, cloudID)
	if err != nil {
		return fmt.Errorf("pushing article delete %s: %w", cloudID, err)
	}

	e.logger.Debug("article delete pushed", slog.String("cloud_id", cloudID), slog.Bool("removed", removed))

	return nil
}

// PushList uploads a user list and backfills its cloud id. Default
// lists are skipped.
func (e *Engine) PushList(ctx context.Context, id int64) error {
	userID, ok := e.userID()
	if !ok {
		return nil
	}

	_, err := e.pushList(ctx, userID, id)

	return err
}

func (e *Engine) pushList(ctx context.Context, userID string, id int64) (string, error) {
	l, err := e.store.List(id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil
		}

		return "", err
	}

	if l.IsDefault {
		return "", nil
	}

	row, err := e.remote.UpsertList(ctx, *l, userID)
	if err != nil {
		return "", fmt.Errorf("pushing list %d: %w", id, err)
	}

	if row == nil {
		return "", nil
	}

	if l.CloudID == "" {
		if err := e.store.SetListCloudID(id, row.ID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return "", fmt.Errorf("saving cloud id of list %d: %w", id, err)
		}
	}

	return row.ID, nil
}

// PushListDelete removes the remote list.
func (e *Engine) PushListDelete(ctx context.Context, cloudID string) error {
	if _, ok := e.userID(); !ok || cloudID == "" {
		return nil
	}

	if _, err := e.remote.DeleteList(ctx, cloudID); err != nil {
		return fmt.Errorf("pushing list delete %s: %w", cloudID, err)
	}

	return nil
}

// PushMembership uploads the membership of articleID in listID. An
// endpoint that has not been uploaded yet is uploaded first.
func (e *Engine) PushMembership(ctx context.Context, articleID, listID int64) error {
	userID, ok := e.userID()
	if !ok {
		return nil
	}

	a, err := e.store.Article(articleID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}

		return err
	}

	l, err := e.store.List(listID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}

		return err
	}

	if l.IsDefault {
		return nil
	}

	articleCloudID := a.CloudID
	if articleCloudID == "" {
		if articleCloudID, err = e.pushArticle(ctx, userID, articleID); err != nil {
			return err
		}
	}

	listCloudID := l.CloudID
	if listCloudID == "" {
		if listCloudID, err = e.pushList(ctx, userID, listID); err != nil {
			return err
		}
	}

	if articleCloudID == "" || listCloudID == "" {
		return nil
	}

	if _, err := e.remote.UpsertMembership(ctx, articleCloudID, listCloudID); err != nil {
		return fmt.Errorf("pushing membership %d/%d: %w", articleID, listID, err)
	}

	return nil
}

// PushMembershipDelete removes the remote pair. Both ids are cloud ids
// captured before the local delete.
func (e *Engine) PushMembershipDelete(ctx context.Context, articleCloudID, listCloudID string) error {
	if _, ok := e.userID(); !ok {
		return nil
	}

	if _, err := e.remote.DeleteMembership(ctx, articleCloudID, listCloudID); err != nil {
		return fmt.Errorf("pushing membership delete: %w", err)
	}

	return nil
}

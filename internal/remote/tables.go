package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/alexjbarnes/marginalio/internal/models"
	"github.com/google/uuid"
)

const (
	articlesPath    = "/rest/v1/articles"
	listsPath       = "/rest/v1/lists"
	membershipsPath = "/rest/v1/article_lists"

	// membershipQueryChunk bounds the number of ids in one in.(...)
	// filter so the request line stays well under proxy limits.
	membershipQueryChunk = 100
)

// UpsertArticle writes the article for userID. An article without a
// cloud id gets a fresh UUID; one with a cloud id overwrites that row.
func (c *Client) UpsertArticle(ctx context.Context, a models.Article, userID string) (*ArticleRow, error) {
	row := NewArticleRow(a, userID, c.now())
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	var out []ArticleRow

	err := c.do(ctx, apiRequest{
		method: http.MethodPost,
		path:   articlesPath,
		query:  url.Values{"on_conflict": {"id"}},
		prefer: preferUpsert,
		body:   row,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("upserting article %s: %w", row.URL, err)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("upserting article %s: empty representation: %w", row.URL, apperrors.ErrRemoteResponse)
	}

	return &out[0], nil
}

// UpsertList writes a user list. Default lists are never uploaded and
// yield a nil row. A list that has never been uploaded is keyed by
// (user_id, name) so two devices creating the same list converge on one
// row; an uploaded list is keyed by its id so renames carry over.
func (c *Client) UpsertList(ctx context.Context, l models.List, userID string) (*ListRow, error) {
	if l.IsDefault {
		return nil, nil
	}

	row := NewListRow(l, userID, c.now())

	conflict := "id"
	if row.ID == "" {
		row.ID = uuid.NewString()
		conflict = "user_id,name"
	}

	var out []ListRow

	err := c.do(ctx, apiRequest{
		method: http.MethodPost,
		path:   listsPath,
		query:  url.Values{"on_conflict": {conflict}},
		prefer: preferUpsert,
		body:   row,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("upserting list %q: %w", row.Name, err)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("upserting list %q: empty representation: %w", row.Name, apperrors.ErrRemoteResponse)
	}

	return &out[0], nil
}

// UpsertMembership writes the (article, list) pair. Both arguments are
// remote ids.
func (c *Client) UpsertMembership(ctx context.Context, articleCloudID, listCloudID string) (*MembershipRow, error) {
	if articleCloudID == "" || listCloudID == "" {
		return nil, fmt.Errorf("upserting membership: %w", apperrors.ErrMissingCloudID)
	}

	var out []MembershipRow

	err := c.do(ctx, apiRequest{
		method: http.MethodPost,
		path:   membershipsPath,
		query:  url.Values{"on_conflict": {"article_id,list_id"}},
		prefer: preferUpsert,
		body:   MembershipRow{ArticleID: articleCloudID, ListID: listCloudID},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("upserting membership %s/%s: %w", articleCloudID, listCloudID, err)
	}

	if len(out) == 0 {
		return &MembershipRow{ArticleID: articleCloudID, ListID: listCloudID}, nil
	}

	return &out[0], nil
}

// DeleteArticle removes the article row and reports whether one existed.
func (c *Client) DeleteArticle(ctx context.Context, cloudID string) (bool, error) {
	if cloudID == "" {
		return false, nil
	}

	return c.delete(ctx, articlesPath, url.Values{"id": {"eq." + cloudID}})
}

// DeleteList removes the list row and reports whether one existed.
func (c *Client) DeleteList(ctx context.Context, cloudID string) (bool, error) {
	if cloudID == "" {
		return false, nil
	}

	return c.delete(ctx, listsPath, url.Values{"id": {"eq." + cloudID}})
}

// DeleteMembership removes the pair and reports whether it existed.
func (c *Client) DeleteMembership(ctx context.Context, articleCloudID, listCloudID string) (bool, error) {
	if articleCloudID == "" || listCloudID == "" {
		return false, nil
	}

	return c.delete(ctx, membershipsPath, url.Values{
		"article_id": {"eq." + articleCloudID},
		"list_id":    {"eq." + listCloudID},
	})
}

func (c *Client) delete(ctx context.Context, path string, filter url.Values) (bool, error) {
	var out []json.RawMessage

	err := c.do(ctx, apiRequest{
		method: http.MethodDelete,
		path:   path,
		query:  filter,
		prefer: preferRepresentation,
	}, &out)
	if err != nil {
		return false, fmt.Errorf("deleting from %s: %w", path, err)
	}

	return len(out) > 0, nil
}

// ListArticles returns every article row owned by userID, newest first.
func (c *Client) ListArticles(ctx context.Context, userID string) ([]ArticleRow, error) {
	var out []ArticleRow

	err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   articlesPath,
		query: url.Values{
			"select":  {"*"},
			"user_id": {"eq." + userID},
			"order":   {"created_at.desc"},
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}

	return out, nil
}

// ListLists returns every list row owned by userID, oldest first.
func (c *Client) ListLists(ctx context.Context, userID string) ([]ListRow, error) {
	var out []ListRow

	err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   listsPath,
		query: url.Values{
			"select":  {"*"},
			"user_id": {"eq." + userID},
			"order":   {"created_at.asc"},
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}

	return out, nil
}

// ListMemberships returns the membership rows of every article owned by
// userID. Membership rows have no owner column, so the article ids are
// fetched first.
func (c *Client) ListMemberships(ctx context.Context, userID string) ([]MembershipRow, error) {
	var ids []struct {
		ID string `json:"id"`
	}

	err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   articlesPath,
		query: url.Values{
			"select":  {"id"},
			"user_id": {"eq." + userID},
		},
	}, &ids)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}

	var out []MembershipRow

	for start := 0; start < len(ids); start += membershipQueryChunk {
		end := min(start+membershipQueryChunk, len(ids))

		chunk := make([]string, 0, end-start)
		for _, row := range ids[start:end] {
			chunk = append(chunk, row.ID)
		}

		var rows []MembershipRow

		err := c.do(ctx, apiRequest{
			method: http.MethodGet,
			path:   membershipsPath,
			query: url.Values{
				"select":     {"*"},
				"article_id": {"in.(" + strings.Join(chunk, ",") + ")"},
			},
		}, &rows)
		if err != nil {
			return nil, fmt.Errorf("listing memberships: %w", err)
		}

		out = append(out, rows...)
	}

	return out, nil
}

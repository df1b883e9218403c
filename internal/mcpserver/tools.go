// Package mcpserver registers MCP tools that expose library operations.
// It adapts the library package to the MCP SDK's tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/alexjbarnes/marginalio/internal/errors"
	"github.com/alexjbarnes/marginalio/internal/library"
	"github.com/alexjbarnes/marginalio/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools adds all library tools to the given MCP server.
func RegisterTools(server *mcp.Server, lib *library.Library) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_articles",
		Description: "List saved articles, newest first. Optional filters: search (title or publication), read status, starred only, tags (any match), and list_id.",
	}, articlesHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_save_url",
		Description: "Save a web page by URL. Title, summary, reading time and suggested tags are extracted automatically. A URL that is already saved returns the existing article with duplicate=true.",
	}, saveURLHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_add_article",
		Description: "Save an article with caller-supplied metadata, without calling the extractor.",
	}, addArticleHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_update_article",
		Description: "Change an article's read or starred flags, title, or tags. Omitted fields are left unchanged.",
	}, updateArticleHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_delete_article",
		Description: "Delete an article and remove it from every list.",
	}, deleteArticleHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_lists",
		Description: "List every list with its article count. All Articles and Favorites are built in and cannot be changed.",
	}, listsHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_create_list",
		Description: "Create a list. Names are 1 to 50 characters after trimming surrounding space and must be unique. Case is significant.",
	}, createListHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_rename_list",
		Description: "Rename a user list.",
	}, renameListHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_delete_list",
		Description: "Delete a user list. Its articles are kept.",
	}, deleteListHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_add_to_list",
		Description: "Put an article in a user list. Adding an article that is already there does nothing.",
	}, addToListHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_remove_from_list",
		Description: "Take an article out of a user list.",
	}, removeFromListHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_set_currently_reading",
		Description: "Mark one list as currently being read. At most one list carries the flag; list_id 0 clears it.",
	}, currentlyReadingHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_tags",
		Description: "List every tag in use, sorted.",
	}, tagsHandler(lib))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_sync",
		Description: "Run a full two-way sync with the cloud backend. Fails when no account is connected.",
	}, syncHandler(lib))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// ArticlesInput holds parameters for library_articles.
type ArticlesInput struct {
	Search      string   `json:"search,omitempty" jsonschema:"case-insensitive match on title or publication"`
	Read        string   `json:"read,omitempty" jsonschema:"read or unread, empty for both"`
	StarredOnly bool     `json:"starred_only,omitempty" jsonschema:"only starred articles"`
	Tags        []string `json:"tags,omitempty" jsonschema:"articles carrying any of these tags"`
	ListID      int64    `json:"list_id,omitempty" jsonschema:"only articles in this user list"`
}

// SaveURLInput holds parameters for library_save_url.
type SaveURLInput struct {
	URL string `json:"url" jsonschema:"http or https URL of the page"`
}

// AddArticleInput holds parameters for library_add_article.
type AddArticleInput struct {
	URL         string   `json:"url" jsonschema:"http or https URL of the page"`
	Title       string   `json:"title,omitempty"`
	Publication string   `json:"publication,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	ReadingTime int      `json:"reading_time,omitempty" jsonschema:"minutes, defaults to 5"`
	Tags        []string `json:"tags,omitempty"`
}

// UpdateArticleInput holds parameters for library_update_article.
type UpdateArticleInput struct {
	ID        int64     `json:"id"`
	Title     *string   `json:"title,omitempty"`
	Tags      *[]string `json:"tags,omitempty" jsonschema:"replaces all tags"`
	IsRead    *bool     `json:"is_read,omitempty"`
	IsStarred *bool     `json:"is_starred,omitempty"`
}

// IDInput names a single article or list.
type IDInput struct {
	ID int64 `json:"id"`
}

// NameInput holds parameters for library_create_list.
type NameInput struct {
	Name string `json:"name"`
}

// RenameInput holds parameters for library_rename_list.
type RenameInput struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MembershipInput names an article and a user list.
type MembershipInput struct {
	ArticleID int64 `json:"article_id"`
	ListID    int64 `json:"list_id"`
}

// CurrentlyReadingInput holds parameters for library_set_currently_reading.
type CurrentlyReadingInput struct {
	ListID int64 `json:"list_id" jsonschema:"list to flag, 0 clears the flag"`
}

// EmptyInput has no parameters.
type EmptyInput struct{}

// --- Output types ---

// Article is the tool view of a saved article.
type Article struct {
	ID          int64    `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Publication string   `json:"publication"`
	Summary     string   `json:"summary"`
	ReadingTime int      `json:"reading_time"`
	Tags        []string `json:"tags"`
	IsRead      bool     `json:"is_read"`
	IsStarred   bool     `json:"is_starred"`
	Synced      bool     `json:"synced"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func articleView(a models.Article) Article {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}

	return Article{
		ID:          a.ID,
		URL:         a.URL,
		Title:       a.Title,
		Publication: a.Publication,
		Summary:     a.Summary,
		ReadingTime: a.ReadingTime,
		Tags:        tags,
		IsRead:      a.IsRead,
		IsStarred:   a.IsStarred,
		Synced:      a.CloudID != "",
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   a.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// ArticlesResult is returned by library_articles.
type ArticlesResult struct {
	Total    int       `json:"total"`
	Articles []Article `json:"articles"`
}

// ArticleResult wraps a single article.
type ArticleResult struct {
	Article   Article `json:"article"`
	Duplicate bool    `json:"duplicate,omitempty"`
}

// List is the tool view of a list.
type List struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	IsDefault          bool   `json:"is_default"`
	IsCurrentlyReading bool   `json:"is_currently_reading"`
	ArticleCount       int    `json:"article_count"`
}

// ListsResult is returned by library_lists.
type ListsResult struct {
	Lists []List `json:"lists"`
}

// ListResult wraps a single list.
type ListResult struct {
	List List `json:"list"`
}

// TagsResult is returned by library_tags.
type TagsResult struct {
	Tags []string `json:"tags"`
}

// OKResult acknowledges a mutation.
type OKResult struct {
	OK bool `json:"ok"`
}

// SyncResult summarises a full sync.
type SyncResult struct {
	Skipped  bool   `json:"skipped"`
	Uploaded int    `json:"uploaded"`
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Failures int    `json:"failures"`
	Duration string `json:"duration"`
}

// --- Handlers ---

func articlesHandler(lib *library.Library) mcp.ToolHandlerFor[ArticlesInput, *ArticlesResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ArticlesInput) (*mcp.CallToolResult, *ArticlesResult, error) {
		var read library.ReadStatus

		switch input.Read {
		case "":
			read = library.ReadAny
		case "read":
			read = library.Read
		case "unread":
			read = library.Unread
		default:
			return nil, nil, fmt.Errorf("read must be \"read\", \"unread\" or empty, got %q", input.Read)
		}

		articles, err := lib.Articles(library.Filter{
			Search:      input.Search,
			Read:        read,
			StarredOnly: input.StarredOnly,
			Tags:        input.Tags,
			ListID:      input.ListID,
		})
		if err != nil {
			return nil, nil, err
		}

		result := &ArticlesResult{Total: len(articles), Articles: make([]Article, 0, len(articles))}
		for _, a := range articles {
			result.Articles = append(result.Articles, articleView(a))
		}

		return textResult(result), result, nil
	}
}

func saveURLHandler(lib *library.Library) mcp.ToolHandlerFor[SaveURLInput, *ArticleResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SaveURLInput) (*mcp.CallToolResult, *ArticleResult, error) {
		id, err := lib.SaveURL(ctx, input.URL)

		return articleResult(lib, id, err)
	}
}

func addArticleHandler(lib *library.Library) mcp.ToolHandlerFor[AddArticleInput, *ArticleResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input AddArticleInput) (*mcp.CallToolResult, *ArticleResult, error) {
		id, err := lib.AddArticle(models.Article{
			URL:         input.URL,
			Title:       input.Title,
			Publication: input.Publication,
			Summary:     input.Summary,
			ReadingTime: input.ReadingTime,
			Tags:        input.Tags,
		})

		return articleResult(lib, id, err)
	}
}

// articleResult reports a saved article. A duplicate URL is a success
// carrying the existing article.
func articleResult(lib *library.Library, id int64, err error) (*mcp.CallToolResult, *ArticleResult, error) {
	duplicate := errors.Is(err, apperrors.ErrDuplicateURL) && id != 0
	if err != nil && !duplicate {
		return nil, nil, err
	}

	a, err := lib.Article(id)
	if err != nil {
		return nil, nil, err
	}

	result := &ArticleResult{Article: articleView(*a), Duplicate: duplicate}

	return textResult(result), result, nil
}

func updateArticleHandler(lib *library.Library) mcp.ToolHandlerFor[UpdateArticleInput, *ArticleResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input UpdateArticleInput) (*mcp.CallToolResult, *ArticleResult, error) {
		a, err := lib.UpdateArticle(input.ID, library.ArticleChanges{
			Title:     input.Title,
			Tags:      input.Tags,
			IsRead:    input.IsRead,
			IsStarred: input.IsStarred,
		})
		if err != nil {
			return nil, nil, err
		}

		result := &ArticleResult{Article: articleView(*a)}

		return textResult(result), result, nil
	}
}

func deleteArticleHandler(lib *library.Library) mcp.ToolHandlerFor[IDInput, *OKResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, *OKResult, error) {
		if err := lib.DeleteArticle(input.ID); err != nil {
			return nil, nil, err
		}

		return okResult()
	}
}

func listsHandler(lib *library.Library) mcp.ToolHandlerFor[EmptyInput, *ListsResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *ListsResult, error) {
		lists, err := lib.Lists()
		if err != nil {
			return nil, nil, err
		}

		result := &ListsResult{Lists: make([]List, 0, len(lists))}
		for _, l := range lists {
			result.Lists = append(result.Lists, List{
				ID:                 l.ID,
				Name:               l.Name,
				IsDefault:          l.IsDefault,
				IsCurrentlyReading: l.IsCurrentlyReading,
				ArticleCount:       l.ArticleCount,
			})
		}

		return textResult(result), result, nil
	}
}

func createListHandler(lib *library.Library) mcp.ToolHandlerFor[NameInput, *ListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input NameInput) (*mcp.CallToolResult, *ListResult, error) {
		id, err := lib.CreateList(input.Name)
		if err != nil {
			return nil, nil, err
		}

		l, err := lib.List(id)
		if err != nil {
			return nil, nil, err
		}

		result := &ListResult{List: List{ID: l.ID, Name: l.Name}}

		return textResult(result), result, nil
	}
}

func renameListHandler(lib *library.Library) mcp.ToolHandlerFor[RenameInput, *ListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input RenameInput) (*mcp.CallToolResult, *ListResult, error) {
		l, err := lib.RenameList(input.ID, input.Name)
		if err != nil {
			return nil, nil, err
		}

		result := &ListResult{List: List{ID: l.ID, Name: l.Name, IsCurrentlyReading: l.IsCurrentlyReading}}

		return textResult(result), result, nil
	}
}

func deleteListHandler(lib *library.Library) mcp.ToolHandlerFor[IDInput, *OKResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input IDInput) (*mcp.CallToolResult, *OKResult, error) {
		if err := lib.DeleteList(input.ID); err != nil {
			return nil, nil, err
		}

		return okResult()
	}
}

func addToListHandler(lib *library.Library) mcp.ToolHandlerFor[MembershipInput, *OKResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input MembershipInput) (*mcp.CallToolResult, *OKResult, error) {
		if err := lib.AddToList(input.ArticleID, input.ListID); err != nil {
			return nil, nil, err
		}

		return okResult()
	}
}

func removeFromListHandler(lib *library.Library) mcp.ToolHandlerFor[MembershipInput, *OKResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input MembershipInput) (*mcp.CallToolResult, *OKResult, error) {
		if err := lib.RemoveFromList(input.ArticleID, input.ListID); err != nil {
			return nil, nil, err
		}

		return okResult()
	}
}

func currentlyReadingHandler(lib *library.Library) mcp.ToolHandlerFor[CurrentlyReadingInput, *OKResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input CurrentlyReadingInput) (*mcp.CallToolResult, *OKResult, error) {
		if err := lib.SetCurrentlyReading(input.ListID); err != nil {
			return nil, nil, err
		}

		return okResult()
	}
}

func tagsHandler(lib *library.Library) mcp.ToolHandlerFor[EmptyInput, *TagsResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *TagsResult, error) {
		tags, err := lib.AllTags()
		if err != nil {
			return nil, nil, err
		}

		result := &TagsResult{Tags: tags}

		return textResult(result), result, nil
	}
}

func syncHandler(lib *library.Library) mcp.ToolHandlerFor[EmptyInput, *SyncResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *SyncResult, error) {
		res, err := lib.Sync(ctx)
		if err != nil {
			return nil, nil, err
		}

		result := &SyncResult{
			Skipped:  res.Skipped,
			Uploaded: res.ArticlesUploaded + res.ListsUploaded + res.MembershipsUploaded,
			Inserted: res.ArticlesInserted + res.ListsInserted + res.MembershipsInserted,
			Updated:  res.ArticlesUpdated + res.ListsUpdated,
			Failures: res.Failures,
			Duration: res.Duration.String(),
		}

		return textResult(result), result, nil
	}
}

func okResult() (*mcp.CallToolResult, *OKResult, error) {
	result := &OKResult{OK: true}
	return textResult(result), result, nil
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

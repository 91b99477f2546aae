package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/driveindex/driveindex/internal/nodeid"
	"github.com/driveindex/driveindex/internal/tree"
)

// listChildrenPageSize is the limit value sent with listing requests.
const listChildrenPageSize = 500

// nodeResponse mirrors one element of a folder listing. Exactly one of
// Folder and File is set for nodes the cache tracks; anything else carries
// its type name in Type.
type nodeResponse struct {
	ID         string       `json:"id"`
	ShareID    string       `json:"shareId"`
	VolumeID   string       `json:"volumeId"`
	ParentID   string       `json:"parentId"`
	Name       string       `json:"name"`
	Type       string       `json:"type"`
	ModifiedAt string       `json:"modifiedAt"`
	Folder     *folderFacet `json:"folder"`
	File       *fileFacet   `json:"file"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type fileFacet struct {
	MediaType  string `json:"mediaType"`
	Size       int64  `json:"size"`
	RevisionID string `json:"revisionId"`
}

type listChildrenResponse struct {
	Value    []nodeResponse `json:"value"`
	NextLink string         `json:"nextLink"`
}

// toEntry converts a listing element into a tree entry. Identity fields
// the server omits stay empty and are inherited from the parent later.
func (n *nodeResponse) toEntry(logger *slog.Logger) tree.Entry {
	id := nodeid.New(n.ID, n.ShareID, n.VolumeID)
	modified := parseTimestamp(n.ModifiedAt, n.ID, logger)

	switch {
	case n.Folder != nil:
		return tree.Entry{Folder: &tree.FolderNode{
			Identity:   id,
			ParentID:   n.ParentID,
			Name:       n.Name,
			ModifiedAt: modified,
		}}
	case n.File != nil:
		return tree.Entry{File: &tree.FileNode{
			Identity:   id,
			ParentID:   n.ParentID,
			Name:       n.Name,
			MediaType:  n.File.MediaType,
			Size:       n.File.Size,
			ModifiedAt: modified,
			RevisionID: n.File.RevisionID,
		}}
	default:
		typ := n.Type
		if typ == "" {
			typ = "unknown"
		}

		return tree.Entry{OtherType: typ}
	}
}

// parseTimestamp parses an RFC3339 time. Missing or invalid values yield
// the zero time; the record codec stores that as absent.
func parseTimestamp(raw, nodeID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, ignoring",
			slog.String("node_id", nodeID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	return t
}

// ChildrenPath returns the listing path of a folder.
func ChildrenPath(id nodeid.Identity) string {
	return fmt.Sprintf("/volumes/%s/shares/%s/folders/%s/children",
		url.PathEscape(id.VolumeID), url.PathEscape(id.ShareID), url.PathEscape(id.NodeID))
}

// ListChildren returns every child of the folder, following next links.
// Concurrent calls for the same folder share one set of requests.
func (c *Client) ListChildren(ctx context.Context, id nodeid.Identity) ([]tree.Entry, error) {
	if !id.Complete() {
		return nil, fmt.Errorf("remote: listing children of incomplete identity %s", id)
	}

	ch := c.listings.DoChan(id.Key(), func() (any, error) {
		return c.fetchAllChildren(ctx, id)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("remote: request canceled: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		entries, _ := res.Val.([]tree.Entry)
		if res.Shared {
			// Each caller gets its own slice header over shared entries.
			entries = append([]tree.Entry(nil), entries...)
		}

		return entries, nil
	}
}

func (c *Client) fetchAllChildren(ctx context.Context, id nodeid.Identity) ([]tree.Entry, error) {
	c.logger.Debug("listing children", slog.String("folder", id.String()))

	var entries []tree.Entry

	apiPath := fmt.Sprintf("%s?limit=%d", ChildrenPath(id), listChildrenPageSize)
	page := 1

	for apiPath != "" {
		pageEntries, next, err := c.listChildrenPage(ctx, apiPath, page)
		if err != nil {
			return nil, err
		}

		entries = append(entries, pageEntries...)
		apiPath = next
		page++
	}

	c.logger.Debug("listed children",
		slog.String("folder", id.String()),
		slog.Int("total_items", len(entries)),
	)

	return entries, nil
}

func (c *Client) listChildrenPage(ctx context.Context, path string, page int) ([]tree.Entry, string, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lcr listChildrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lcr); err != nil {
		return nil, "", fmt.Errorf("remote: decoding children response: %w", err)
	}

	entries := make([]tree.Entry, 0, len(lcr.Value))
	for i := range lcr.Value {
		entries = append(entries, lcr.Value[i].toEntry(c.logger))
	}

	c.logger.Debug("fetched children page",
		slog.Int("page", page),
		slog.Int("count", len(entries)),
	)

	var next string
	if lcr.NextLink != "" {
		next, err = c.stripBaseURL(lcr.NextLink)
		if err != nil {
			return nil, "", err
		}
	}

	return entries, next, nil
}

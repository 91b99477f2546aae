package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/driveindex/driveindex/internal/nodeid"
)

// Volume is one storage volume of the account.
type Volume struct {
	ID      string `json:"volumeId"`
	Name    string `json:"name"`
	State   string `json:"state"`
	ShareID string `json:"shareId"` // main share of the volume
}

// Share is a shared entry point into a volume's tree.
type Share struct {
	ID         string `json:"shareId"`
	VolumeID   string `json:"volumeId"`
	RootNodeID string `json:"rootNodeId"`
	Name       string `json:"name"`
}

type volumesResponse struct {
	Volumes []Volume `json:"volumes"`
}

// Volumes lists the account's volumes in server order.
func (c *Client) Volumes(ctx context.Context) ([]Volume, error) {
	var vr volumesResponse
	if err := c.getJSON(ctx, "/volumes", &vr); err != nil {
		return nil, err
	}

	return vr.Volumes, nil
}

// Share fetches one share.
func (c *Client) Share(ctx context.Context, shareID string) (*Share, error) {
	var s Share
	if err := c.getJSON(ctx, "/shares/"+url.PathEscape(shareID), &s); err != nil {
		return nil, err
	}

	if s.RootNodeID == "" {
		return nil, fmt.Errorf("remote: share %s has no root node", shareID)
	}

	return &s, nil
}

// RootIdentity resolves the traversal root. An empty volumeID picks the
// first volume; an empty shareID picks that volume's main share.
func (c *Client) RootIdentity(ctx context.Context, volumeID, shareID string) (nodeid.Identity, error) {
	if volumeID == "" || shareID == "" {
		vols, err := c.Volumes(ctx)
		if err != nil {
			return nodeid.Identity{}, err
		}

		vol, err := pickVolume(vols, volumeID)
		if err != nil {
			return nodeid.Identity{}, err
		}

		volumeID = vol.ID

		if shareID == "" {
			shareID = vol.ShareID
		}
	}

	share, err := c.Share(ctx, shareID)
	if err != nil {
		return nodeid.Identity{}, err
	}

	if share.VolumeID != "" && share.VolumeID != volumeID {
		return nodeid.Identity{}, fmt.Errorf("remote: share %s belongs to volume %s, not %s",
			shareID, share.VolumeID, volumeID)
	}

	root := nodeid.New(share.RootNodeID, shareID, volumeID)

	c.logger.Info("resolved root",
		slog.String("volume_id", root.VolumeID),
		slog.String("share_id", root.ShareID),
		slog.String("node_id", root.NodeID),
	)

	return root, nil
}

func pickVolume(vols []Volume, volumeID string) (Volume, error) {
	if len(vols) == 0 {
		return Volume{}, ErrNoVolumes
	}

	if volumeID == "" {
		return vols[0], nil
	}

	for _, v := range vols {
		if v.ID == volumeID {
			return v, nil
		}
	}

	return Volume{}, fmt.Errorf("remote: volume %s: %w", volumeID, ErrNotFound)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decoding %s response: %w", path, err)
	}

	return nil
}

package lakefs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/poiesic/embedsync/objectstore"
)

type commitRequest struct {
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type commitResponse struct {
	ID string `json:"id"`
}

type apiError struct {
	Message string `json:"message"`
}

// Commit creates a commit on the branch through the lakeFS REST API.
func (s *Store) Commit(ctx context.Context, message string, metadata map[string]string) (string, error) {
	body, err := json.Marshal(commitRequest{Message: message, Metadata: metadata})
	if err != nil {
		return "", objectstore.NewError("commit", "", objectstore.KindFatal, err)
	}
	endpoint := fmt.Sprintf("%s/repositories/%s/branches/%s/commits",
		s.apiBase, url.PathEscape(s.cfg.Repository), url.PathEscape(s.cfg.Branch))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", objectstore.NewError("commit", "", objectstore.KindFatal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.cfg.AccessKey, s.cfg.SecretKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", objectstore.NewError("commit", "", objectstore.KindTransient, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", objectstore.NewError("commit", "", objectstore.KindTransient, err)
	}

	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK {
		var out commitResponse
		if err := json.Unmarshal(payload, &out); err != nil {
			return "", objectstore.NewError("commit", "", objectstore.KindFatal, fmt.Errorf("decode commit response: %w", err))
		}
		s.logger.Info("committed", "commit", out.ID)
		return out.ID, nil
	}
	return "", commitError(resp.StatusCode, payload)
}

// commitError maps an unsuccessful REST response to an error kind. lakeFS
// reports an empty commit as a 400 whose message mentions "no changes".
func commitError(status int, payload []byte) error {
	var apiErr apiError
	msg := strings.TrimSpace(string(payload))
	if json.Unmarshal(payload, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	cause := fmt.Errorf("status %d: %s", status, msg)

	switch {
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "no changes"):
		return objectstore.NewError("commit", "", objectstore.KindNoChanges, cause)
	case status == http.StatusNotFound:
		return objectstore.NewError("commit", "", objectstore.KindNotFound, cause)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return objectstore.NewError("commit", "", objectstore.KindTransient, cause)
	}
	return objectstore.NewError("commit", "", objectstore.KindFatal, cause)
}

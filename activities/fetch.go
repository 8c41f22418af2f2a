package activities

import (
	"context"
	"fmt"
	"net/http"

	"go.temporal.io/sdk/temporal"

	"github.com/vertesia/dslflow/engine"
)

// FetchContent resolves one fetch sub-query against the content store and
// returns the matched object. The resolved query map is forwarded as-is; the
// store owns its query language. A miss is NoDocumentFound, which the default
// retry policy treats as fatal: re-running the same query will not make the
// document appear.
func (s *Service) FetchContent(ctx context.Context, p engine.ActivityPayload) (map[string]any, error) {
	result := map[string]any{}
	resp, err := s.request(p).
		SetContext(ctx).
		SetBody(p.Params).
		SetResult(&result).
		Post(p.Config.StoreURL + "/api/v1/objects/find")
	if err != nil {
		return nil, fmt.Errorf("content fetch failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("no object matches fetch query %v", p.Params),
			engine.ErrNoDocumentFound, nil)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("content fetch returned %s", resp.Status())
	}
	return result, nil
}

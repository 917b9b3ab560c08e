package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"
)

// RequestClient talks to the booking service over HTTP. It backs the
// offline queue on clients that have no direct database access: Create and
// FindActive satisfy the queue's submitter and conflict-store contracts, so
// the same sync logic runs against any deployment of the API.
type RequestClient struct {
	http *HttpClient
}

func NewRequestClient(baseURL string, timeout time.Duration) *RequestClient {
	return &RequestClient{
		http: NewHttpClient(baseURL, timeout),
	}
}

// Create submits a draft. The taxonomy matters to callers: validation and
// conflict failures are terminal, transport failures are transient.
func (c *RequestClient) Create(ctx context.Context, draft *model.BookingDraft) (*model.BookingRequest, error) {
	resp, err := c.http.POST(ctx, "/api/v1/requests", draft)
	if err != nil {
		return nil, apperrors.Transient("booking service unreachable", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, c.asAppError(resp)
	}

	var body struct {
		Data model.BookingRequest `json:"data"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, fmt.Errorf("failed to decode create response: %w", err)
	}
	return &body.Data, nil
}

// FindActive returns the pending/approved requests for a classroom on a
// date, which is exactly what the conflict checker consumes.
func (c *RequestClient) FindActive(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error) {
	path := fmt.Sprintf("/api/v1/requests/availability?classroom_id=%s&date=%s",
		url.QueryEscape(classroomID), url.QueryEscape(date))

	resp, err := c.http.GET(ctx, path)
	if err != nil {
		return nil, apperrors.Transient("booking service unreachable", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.asAppError(resp)
	}

	var body struct {
		Data []*model.BookingRequest `json:"data"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, fmt.Errorf("failed to decode availability response: %w", err)
	}
	return body.Data, nil
}

// asAppError rebuilds the error taxonomy from the wire response.
func (c *RequestClient) asAppError(resp *Response) error {
	message := GetErrorMessage(resp)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return apperrors.InvalidInput(message)
	case http.StatusUnprocessableEntity:
		return apperrors.Validation(message, nil)
	case http.StatusConflict:
		return apperrors.Conflict(message)
	case http.StatusNotFound:
		return apperrors.NotFound(message)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusBadGateway:
		return apperrors.Transient(message, nil)
	default:
		return apperrors.Internal(fmt.Sprintf("booking service returned %d: %s", resp.StatusCode, message), nil)
	}
}
